package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Spok95/tutorcenter/internal/models"
)

const departmentCols = `id, name, code, description, is_active, form_ids, created_at`

func scanDepartment(s scanner) (models.Department, error) {
	var d models.Department
	err := s.Scan(&d.ID, &d.Name, &d.Code, &d.Description, &d.IsActive, pq.Array(&d.FormIDs), &d.CreatedAt)
	return d, err
}

func (t *pgTx) CreateDepartment(ctx context.Context, d *models.Department) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO departments (name, code, description, is_active, form_ids)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, d.Name, d.Code, d.Description, d.IsActive, pq.Array(d.FormIDs)).Scan(&d.ID, &d.CreatedAt)
	return mapErr("department", err)
}

func (t *pgTx) GetDepartment(ctx context.Context, id int64) (*models.Department, error) {
	d, err := scanDepartment(t.tx.QueryRowContext(ctx, `SELECT `+departmentCols+` FROM departments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("department", id, err)
	}
	return &d, nil
}

func (t *pgTx) FindDepartment(ctx context.Context, name, code string) (*models.Department, error) {
	d, err := scanDepartment(t.tx.QueryRowContext(ctx, `
		SELECT `+departmentCols+` FROM departments
		WHERE ($1 <> '' AND lower(name) = lower($1)) OR ($2 <> '' AND code = upper($2))
		ORDER BY id LIMIT 1`, name, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *pgTx) UpdateDepartment(ctx context.Context, d *models.Department) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE departments SET name = $2, code = $3, description = $4, is_active = $5, form_ids = $6
		WHERE id = $1
	`, d.ID, d.Name, d.Code, d.Description, d.IsActive, pq.Array(d.FormIDs))
	if err != nil {
		return mapErr("department", err)
	}
	return requireRow(res, "department", d.ID)
}

func (t *pgTx) DeleteDepartment(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return mapErr("department", err)
	}
	return requireRow(res, "department", id)
}

func (t *pgTx) ListDepartments(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	q := `SELECT ` + departmentCols + ` FROM departments`
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := t.tx.QueryContext(ctx, q+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDepartment)
}
