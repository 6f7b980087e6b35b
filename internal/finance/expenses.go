package finance

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

type ExpenseInput struct {
	Category      string  `json:"category" validate:"required,max=50"`
	Subcategory   string  `json:"subcategory" validate:"max=50"`
	Description   string  `json:"description" validate:"required,max=200"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	ExpenseDate   string  `json:"expense_date" validate:"required,datetime=2006-01-02"`
	ReceiptNumber string  `json:"receipt_number" validate:"max=100"`
}

// CreateExpense records a pending expense. It counts toward the month's
// costs once approved.
func (s *Service) CreateExpense(ctx context.Context, actor *models.User, in ExpenseInput) (*models.ExpenseRecord, error) {
	if err := access.Authorize(actor, access.ProcessPayments, nil); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	day, err := time.Parse(time.DateOnly, in.ExpenseDate)
	if err != nil {
		return nil, apperr.Invalid("expense_date", "bad expense date %q", in.ExpenseDate)
	}
	creator := actor.ID
	e := &models.ExpenseRecord{
		Category:       strings.ToLower(strings.TrimSpace(in.Category)),
		Subcategory:    strings.TrimSpace(in.Subcategory),
		Description:    strings.TrimSpace(in.Description),
		Amount:         models.Money(in.Amount),
		ExpenseDate:    day,
		ApprovalStatus: models.ExpensePending,
		ReceiptNumber:  strings.TrimSpace(in.ReceiptNumber),
		CreatedBy:      &creator,
	}
	if err := s.store.InTx(ctx, func(tx store.Tx) error { return tx.CreateExpense(ctx, e) }); err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("expense recorded",
		zap.Int64("expense_id", e.ID), zap.String("category", e.Category), zap.Float64("amount", e.Amount))
	return e, nil
}

// ApproveExpense moves a pending expense to approved.
func (s *Service) ApproveExpense(ctx context.Context, actor *models.User, id int64) (*models.ExpenseRecord, error) {
	return s.decideExpense(ctx, actor, id, models.ExpenseApproved)
}

// RejectExpense moves a pending expense to rejected; it never counts.
func (s *Service) RejectExpense(ctx context.Context, actor *models.User, id int64) (*models.ExpenseRecord, error) {
	return s.decideExpense(ctx, actor, id, models.ExpenseRejected)
}

func (s *Service) decideExpense(ctx context.Context, actor *models.User, id int64, to models.ApprovalStatus) (*models.ExpenseRecord, error) {
	if err := access.Authorize(actor, access.ManageAllPayroll, nil); err != nil {
		return nil, err
	}
	var e *models.ExpenseRecord
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if e, err = tx.LockExpense(ctx, id); err != nil {
			return err
		}
		if e.ApprovalStatus != models.ExpensePending {
			return apperr.State("expense", "expense %d is already %s", e.ID, e.ApprovalStatus)
		}
		now := s.now()
		by := actor.ID
		e.ApprovalStatus = to
		e.ApprovedBy = &by
		e.ApprovedAt = &now
		return tx.UpdateExpense(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("expense "+string(to),
		zap.Int64("expense_id", id), zap.Float64("amount", e.Amount))
	return e, nil
}

func (s *Service) ListExpenses(ctx context.Context, actor *models.User, f models.ExpenseFilter) ([]models.ExpenseRecord, error) {
	if err := access.Authorize(actor, access.ViewFinancialReports, nil); err != nil {
		return nil, err
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.ExpenseRecord, error) {
		return tx.ListExpenses(ctx, f)
	})
}

// approvedExpenses sums approved expenses dated in the calendar month.
func approvedExpenses(ctx context.Context, tx store.Tx, year int, month time.Month) (float64, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	list, err := tx.ListExpenses(ctx, models.ExpenseFilter{Status: models.ExpenseApproved, From: &from, To: &to})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, e := range list {
		total += e.Amount
	}
	return total, nil
}
