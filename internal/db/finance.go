package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Spok95/tutorcenter/internal/models"
)

const feeCols = `id, student_id, enrollment_id, fee_type, description, amount, late_fee, discount,
	discount_reason, paid_amount, pending_amount, due_date, status, payment_date, payment_method,
	transaction_id, created_by, created_at`

func scanFee(s scanner) (models.Fee, error) {
	var f models.Fee
	err := s.Scan(&f.ID, &f.StudentID, &f.EnrollmentID, &f.FeeType, &f.Description, &f.Amount,
		&f.LateFee, &f.Discount, &f.DiscountReason, &f.PaidAmount, &f.PendingAmount, &f.DueDate,
		&f.Status, &f.PaymentDate, &f.PaymentMethod, &f.TransactionID, &f.CreatedBy, &f.CreatedAt)
	return f, err
}

func (t *pgTx) CreateFee(ctx context.Context, f *models.Fee) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO fees (student_id, enrollment_id, fee_type, description, amount, late_fee,
			discount, discount_reason, paid_amount, pending_amount, due_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`, f.StudentID, f.EnrollmentID, f.FeeType, f.Description, f.Amount, f.LateFee, f.Discount,
		f.DiscountReason, f.PaidAmount, f.PendingAmount, f.DueDate, f.Status, f.CreatedBy,
	).Scan(&f.ID, &f.CreatedAt)
	return mapErr("fee", err)
}

func (t *pgTx) GetFee(ctx context.Context, id int64) (*models.Fee, error) {
	f, err := scanFee(t.tx.QueryRowContext(ctx, `SELECT `+feeCols+` FROM fees WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("fee", id, err)
	}
	return &f, nil
}

func (t *pgTx) LockFee(ctx context.Context, id int64) (*models.Fee, error) {
	f, err := scanFee(t.tx.QueryRowContext(ctx, `SELECT `+feeCols+` FROM fees WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound("fee", id, err)
	}
	return &f, nil
}

func (t *pgTx) UpdateFee(ctx context.Context, f *models.Fee) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE fees SET description = $2, amount = $3, late_fee = $4, discount = $5,
			discount_reason = $6, paid_amount = $7, pending_amount = $8, due_date = $9, status = $10,
			payment_date = $11, payment_method = $12, transaction_id = $13
		WHERE id = $1
	`, f.ID, f.Description, f.Amount, f.LateFee, f.Discount, f.DiscountReason, f.PaidAmount,
		f.PendingAmount, f.DueDate, f.Status, f.PaymentDate, f.PaymentMethod, f.TransactionID)
	if err != nil {
		return mapErr("fee", err)
	}
	return requireRow(res, "fee", f.ID)
}

func (t *pgTx) ListFees(ctx context.Context, f models.FeeFilter) ([]models.Fee, error) {
	w := &where{}
	if f.StudentID != nil {
		w.add("student_id = $%d", *f.StudentID)
	}
	if f.DepartmentID != nil {
		w.add("student_id IN (SELECT id FROM students WHERE department_id = $%d)", *f.DepartmentID)
	}
	if len(f.Statuses) > 0 {
		st := make([]string, len(f.Statuses))
		for i, v := range f.Statuses {
			st[i] = string(v)
		}
		w.add("status = ANY($%d)", pq.Array(st))
	}
	if f.DueBefore != nil {
		w.add("due_date < $%d", *f.DueBefore)
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+feeCols+` FROM fees`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanFee)
}

func (t *pgTx) CreateFeePayment(ctx context.Context, p *models.FeePayment) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO fee_payments (fee_id, amount, method, transaction_id, receipt_number, paid_at, processed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.FeeID, p.Amount, p.Method, p.TransactionID, p.ReceiptNumber, p.PaidAt, p.ProcessedBy).Scan(&p.ID)
	return mapErr("payment", err)
}

func (t *pgTx) ListFeePayments(ctx context.Context, f models.PaymentFilter) ([]models.FeePayment, error) {
	w := &where{}
	if f.FeeID != nil {
		w.add("fee_id = $%d", *f.FeeID)
	}
	if f.From != nil {
		w.add("paid_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("paid_at < $%d", *f.To)
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, fee_id, amount, method, transaction_id, receipt_number, paid_at, processed_by
		FROM fee_payments`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (models.FeePayment, error) {
		var p models.FeePayment
		err := s.Scan(&p.ID, &p.FeeID, &p.Amount, &p.Method, &p.TransactionID, &p.ReceiptNumber,
			&p.PaidAt, &p.ProcessedBy)
		return p, err
	})
}

// payroll

const payrollCols = `id, tutor_id, month, year, total_classes, total_hours, hourly_rate,
	gross_amount, late_arrival_penalty, other_deductions, deduction_notes, bonus_amount,
	bonus_reason, net_amount, status, payment_date, payment_method, transaction_reference,
	generated_at, generated_by`

func scanPayroll(s scanner) (models.PayrollRecord, error) {
	var p models.PayrollRecord
	err := s.Scan(&p.ID, &p.TutorID, &p.Month, &p.Year, &p.TotalClasses, &p.TotalHours,
		&p.HourlyRate, &p.GrossAmount, &p.LateArrivalPenalty, &p.OtherDeductions, &p.DeductionNotes,
		&p.BonusAmount, &p.BonusReason, &p.NetAmount, &p.Status, &p.PaymentDate, &p.PaymentMethod,
		&p.TransactionReference, &p.GeneratedAt, &p.GeneratedBy)
	return p, err
}

func (t *pgTx) CreatePayroll(ctx context.Context, p *models.PayrollRecord) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payroll_records (tutor_id, month, year, total_classes, total_hours, hourly_rate,
			gross_amount, late_arrival_penalty, other_deductions, deduction_notes, bonus_amount,
			bonus_reason, net_amount, status, generated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, generated_at
	`, p.TutorID, p.Month, p.Year, p.TotalClasses, p.TotalHours, p.HourlyRate, p.GrossAmount,
		p.LateArrivalPenalty, p.OtherDeductions, p.DeductionNotes, p.BonusAmount, p.BonusReason,
		p.NetAmount, p.Status, p.GeneratedBy).Scan(&p.ID, &p.GeneratedAt)
	return mapErr("payroll", err)
}

func (t *pgTx) GetPayroll(ctx context.Context, id int64) (*models.PayrollRecord, error) {
	p, err := scanPayroll(t.tx.QueryRowContext(ctx, `SELECT `+payrollCols+` FROM payroll_records WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("payroll", id, err)
	}
	return &p, nil
}

func (t *pgTx) FindPayroll(ctx context.Context, tutorID int64, month, year int) (*models.PayrollRecord, error) {
	p, err := scanPayroll(t.tx.QueryRowContext(ctx, `
		SELECT `+payrollCols+` FROM payroll_records
		WHERE tutor_id = $1 AND month = $2 AND year = $3`, tutorID, month, year))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) UpdatePayroll(ctx context.Context, p *models.PayrollRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE payroll_records SET total_classes = $2, total_hours = $3, hourly_rate = $4,
			gross_amount = $5, late_arrival_penalty = $6, other_deductions = $7, deduction_notes = $8,
			bonus_amount = $9, bonus_reason = $10, net_amount = $11, status = $12, payment_date = $13,
			payment_method = $14, transaction_reference = $15
		WHERE id = $1
	`, p.ID, p.TotalClasses, p.TotalHours, p.HourlyRate, p.GrossAmount, p.LateArrivalPenalty,
		p.OtherDeductions, p.DeductionNotes, p.BonusAmount, p.BonusReason, p.NetAmount, p.Status,
		p.PaymentDate, p.PaymentMethod, p.TransactionReference)
	if err != nil {
		return mapErr("payroll", err)
	}
	return requireRow(res, "payroll", p.ID)
}

func (t *pgTx) ListPayroll(ctx context.Context, f models.PayrollFilter) ([]models.PayrollRecord, error) {
	w := &where{}
	if f.TutorID != nil {
		w.add("tutor_id = $%d", *f.TutorID)
	}
	if f.Month != 0 {
		w.add("month = $%d", f.Month)
	}
	if f.Year != 0 {
		w.add("year = $%d", f.Year)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+payrollCols+` FROM payroll_records`+w.String()+` ORDER BY year, month, tutor_id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayroll)
}
