package db

import (
	"context"

	"github.com/Spok95/tutorcenter/internal/models"
)

// installments

const installmentCols = `id, fee_id, installment_number, amount, due_date, status, payment_id,
	payment_date, payment_method, transaction_id, processed_by, created_at`

func scanInstallment(s scanner) (models.FeeInstallment, error) {
	var i models.FeeInstallment
	err := s.Scan(&i.ID, &i.FeeID, &i.Number, &i.Amount, &i.DueDate, &i.Status, &i.PaymentID,
		&i.PaymentDate, &i.PaymentMethod, &i.TransactionID, &i.ProcessedBy, &i.CreatedAt)
	return i, err
}

func (t *pgTx) CreateInstallment(ctx context.Context, i *models.FeeInstallment) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO fee_installments (fee_id, installment_number, amount, due_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, i.FeeID, i.Number, i.Amount, i.DueDate, i.Status).Scan(&i.ID, &i.CreatedAt)
	return mapErr("installment", err)
}

func (t *pgTx) LockInstallment(ctx context.Context, id int64) (*models.FeeInstallment, error) {
	i, err := scanInstallment(t.tx.QueryRowContext(ctx,
		`SELECT `+installmentCols+` FROM fee_installments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound("installment", id, err)
	}
	return &i, nil
}

func (t *pgTx) UpdateInstallment(ctx context.Context, i *models.FeeInstallment) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE fee_installments SET status = $2, payment_id = $3, payment_date = $4,
			payment_method = $5, transaction_id = $6, processed_by = $7
		WHERE id = $1
	`, i.ID, i.Status, i.PaymentID, i.PaymentDate, i.PaymentMethod, i.TransactionID, i.ProcessedBy)
	if err != nil {
		return mapErr("installment", err)
	}
	return requireRow(res, "installment", i.ID)
}

func (t *pgTx) ListInstallments(ctx context.Context, feeID int64) ([]models.FeeInstallment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+installmentCols+` FROM fee_installments
		WHERE fee_id = $1 ORDER BY installment_number`, feeID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInstallment)
}

// expenses

const expenseCols = `id, category, subcategory, description, amount, expense_date, approval_status,
	approved_by, approved_at, receipt_number, created_by, created_at`

func scanExpense(s scanner) (models.ExpenseRecord, error) {
	var e models.ExpenseRecord
	err := s.Scan(&e.ID, &e.Category, &e.Subcategory, &e.Description, &e.Amount, &e.ExpenseDate,
		&e.ApprovalStatus, &e.ApprovedBy, &e.ApprovedAt, &e.ReceiptNumber, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func (t *pgTx) CreateExpense(ctx context.Context, e *models.ExpenseRecord) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO expense_records (category, subcategory, description, amount, expense_date,
			approval_status, receipt_number, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, e.Category, e.Subcategory, e.Description, e.Amount, e.ExpenseDate, e.ApprovalStatus,
		e.ReceiptNumber, e.CreatedBy).Scan(&e.ID, &e.CreatedAt)
	return mapErr("expense", err)
}

func (t *pgTx) LockExpense(ctx context.Context, id int64) (*models.ExpenseRecord, error) {
	e, err := scanExpense(t.tx.QueryRowContext(ctx,
		`SELECT `+expenseCols+` FROM expense_records WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound("expense", id, err)
	}
	return &e, nil
}

func (t *pgTx) UpdateExpense(ctx context.Context, e *models.ExpenseRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE expense_records SET approval_status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1
	`, e.ID, e.ApprovalStatus, e.ApprovedBy, e.ApprovedAt)
	if err != nil {
		return mapErr("expense", err)
	}
	return requireRow(res, "expense", e.ID)
}

func (t *pgTx) ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.ExpenseRecord, error) {
	w := &where{}
	if f.Status != "" {
		w.add("approval_status = $%d", f.Status)
	}
	if f.Category != "" {
		w.add("lower(category) = lower($%d)", f.Category)
	}
	if f.From != nil {
		w.add("expense_date >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("expense_date < $%d", *f.To)
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+expenseCols+` FROM expense_records`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanExpense)
}
