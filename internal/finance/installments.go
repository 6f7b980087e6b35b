package finance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

type InstallmentInput struct {
	Amount  float64 `json:"amount" validate:"gt=0"`
	DueDate string  `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type SplitFeeInput struct {
	Installments []InstallmentInput `json:"installments" validate:"min=2,max=24,dive"`
}

// SplitFee schedules the fee's pending amount as installments. The parts
// must add up to the pending amount exactly and fall due in order. A fee
// is split at most once.
func (s *Service) SplitFee(ctx context.Context, actor *models.User, feeID int64, in SplitFeeInput) ([]models.FeeInstallment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	parts := make([]models.FeeInstallment, len(in.Installments))
	var total float64
	for i, p := range in.Installments {
		due, err := time.Parse(time.DateOnly, p.DueDate)
		if err != nil {
			return nil, apperr.Invalid("due_date", "bad due date %q", p.DueDate)
		}
		if i > 0 && due.Before(parts[i-1].DueDate) {
			return nil, apperr.Invalid("installments", "installment %d falls due before installment %d", i+1, i)
		}
		parts[i] = models.FeeInstallment{
			FeeID: feeID, Number: i + 1, Amount: models.Money(p.Amount), DueDate: due,
			Status: models.InstallmentPending,
		}
		total += parts[i].Amount
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		fee, err := tx.LockFee(ctx, feeID)
		if err != nil {
			return err
		}
		st, err := tx.GetStudent(ctx, fee.StudentID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ManageFees, access.Scope(st.DepartmentID)); err != nil {
			return err
		}
		if fee.PendingAmount <= 0 {
			return apperr.State("fee", "fee %d is already paid", fee.ID)
		}
		existing, err := tx.ListInstallments(ctx, fee.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperr.State("fee", "fee %d is already split into %d installments", fee.ID, len(existing))
		}
		if models.Money(total) != fee.PendingAmount {
			return apperr.Invalid("installments", "installments add up to %.2f, pending is %.2f",
				models.Money(total), fee.PendingAmount)
		}
		for i := range parts {
			if err := tx.CreateInstallment(ctx, &parts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("fee split", zap.Int64("fee_id", feeID), zap.Int("installments", len(parts)))
	return parts, nil
}

// ListInstallments returns the fee's installments with overdue derived
// for today.
func (s *Service) ListInstallments(ctx context.Context, actor *models.User, feeID int64) ([]models.FeeInstallment, error) {
	list, err := store.Read(ctx, s.store, func(tx store.Tx) ([]models.FeeInstallment, error) {
		fee, err := tx.GetFee(ctx, feeID)
		if err != nil {
			return nil, err
		}
		st, err := tx.GetStudent(ctx, fee.StudentID)
		if err != nil {
			return nil, err
		}
		if err := authorizeFeeView(actor, st.DepartmentID); err != nil {
			return nil, err
		}
		return tx.ListInstallments(ctx, feeID)
	})
	if err != nil {
		return nil, err
	}
	today := s.today()
	for i := range list {
		list[i] = list[i].WithDerivedStatus(today)
	}
	return list, nil
}

type InstallmentPaymentInput struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
}

// PayInstallment takes the installment's amount as one ledger payment
// against its fee and marks the installment paid.
func (s *Service) PayInstallment(ctx context.Context, actor *models.User, installmentID int64, in InstallmentPaymentInput) (*PaymentResult, error) {
	inst, err := store.Read(ctx, s.store, func(tx store.Tx) (*models.FeeInstallment, error) {
		return tx.LockInstallment(ctx, installmentID)
	})
	if err != nil {
		return nil, err
	}
	return s.pay(ctx, actor, inst.FeeID, inst.ID, PaymentInput{
		Amount: inst.Amount, Method: in.Method, TransactionID: in.TransactionID,
	})
}
