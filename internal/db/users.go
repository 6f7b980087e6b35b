package db

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

const userCols = `id, username, email, password_hash, full_name, phone, role, department_id,
	is_active, is_approved, permissions, hourly_rate, telegram_chat_id, total_classes_taught,
	feedback_rating, feedback_count, failed_login_attempts, last_login, created_at`

func scanUser(s scanner) (models.User, error) {
	var u models.User
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role,
		&u.DepartmentID, &u.IsActive, &u.IsApproved, pq.Array(&u.Permissions), &u.HourlyRate,
		&u.TelegramChatID, &u.TotalClassesTaught, &u.FeedbackRating, &u.FeedbackCount,
		&u.FailedLoginAttempts, &u.LastLogin, &u.CreatedAt)
	return u, err
}

func (t *pgTx) CreateUser(ctx context.Context, u *models.User) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, phone, role, department_id,
			is_active, is_approved, permissions, hourly_rate, telegram_chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`, u.Username, u.Email, u.PasswordHash, u.FullName, u.Phone, u.Role, u.DepartmentID,
		u.IsActive, u.IsApproved, pq.Array(u.Permissions), u.HourlyRate, u.TelegramChatID,
	).Scan(&u.ID, &u.CreatedAt)
	return mapErr("user", err)
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return &u, nil
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return &u, nil
}

func (t *pgTx) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `
		SELECT `+userCols+` FROM users
		WHERE lower(username) = lower($1) OR (email <> '' AND lower(email) = lower($1))
		ORDER BY id LIMIT 1`, login))
	if err != nil {
		return nil, notFound("user", login, err)
	}
	return &u, nil
}

func (t *pgTx) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE users SET email = $2, password_hash = $3, full_name = $4, phone = $5, role = $6,
			department_id = $7, is_active = $8, is_approved = $9, permissions = $10, hourly_rate = $11,
			telegram_chat_id = $12, total_classes_taught = $13, feedback_rating = $14,
			feedback_count = $15, failed_login_attempts = $16, last_login = $17
		WHERE id = $1
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.Phone, u.Role, u.DepartmentID, u.IsActive,
		u.IsApproved, pq.Array(u.Permissions), u.HourlyRate, u.TelegramChatID, u.TotalClassesTaught,
		u.FeedbackRating, u.FeedbackCount, u.FailedLoginAttempts, u.LastLogin)
	if err != nil {
		return mapErr("user", err)
	}
	return requireRow(res, "user", u.ID)
}

func userWhere(f models.UserFilter) *where {
	w := &where{}
	if f.Role != "" {
		w.add("role = $%d", f.Role)
	}
	if f.DepartmentID != nil {
		w.add("department_id = $%d", *f.DepartmentID)
	}
	if f.ActiveOnly {
		w.raw("is_active")
	}
	if f.PendingOnly {
		w.raw("NOT is_approved")
	}
	return w
}

func (t *pgTx) ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, error) {
	w := userWhere(f)
	rows, err := t.tx.QueryContext(ctx, `SELECT `+userCols+` FROM users`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}

func (t *pgTx) CountUsers(ctx context.Context, f models.UserFilter) (int, error) {
	w := userWhere(f)
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT count(*) FROM users`+w.String(), w.args...).Scan(&n)
	return n, err
}

// requireRow reports NotFound when an UPDATE/DELETE touched nothing.
func requireRow(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}
