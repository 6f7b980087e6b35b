package finance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/notify"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

// receiptAttempts bounds retries when a random receipt number is taken.
const receiptAttempts = 5

type CreateFeeInput struct {
	StudentID    int64   `json:"student_id" validate:"required"`
	EnrollmentID *int64  `json:"enrollment_id"`
	FeeType      string  `json:"fee_type" validate:"required,max=50"`
	Description  string  `json:"description" validate:"max=500"`
	Amount       float64 `json:"amount" validate:"gt=0"`
	DueDate      string  `json:"due_date" validate:"required,datetime=2006-01-02"`
}

func (s *Service) CreateFee(ctx context.Context, actor *models.User, in CreateFeeInput) (*models.Fee, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	due, err := time.Parse(time.DateOnly, in.DueDate)
	if err != nil {
		return nil, apperr.Invalid("due_date", "bad due date %q", in.DueDate)
	}
	creator := actor.ID
	fee := &models.Fee{
		StudentID:    in.StudentID,
		EnrollmentID: in.EnrollmentID,
		FeeType:      strings.TrimSpace(in.FeeType),
		Description:  strings.TrimSpace(in.Description),
		Amount:       models.Money(in.Amount),
		DueDate:      due,
		CreatedBy:    &creator,
	}
	fee.Recalculate()

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		st, err := tx.GetStudent(ctx, in.StudentID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ManageFees, access.Scope(st.DepartmentID)); err != nil {
			return err
		}
		if in.EnrollmentID != nil {
			e, err := tx.GetEnrollment(ctx, *in.EnrollmentID)
			if err != nil {
				return err
			}
			if e.StudentID != st.ID {
				return apperr.Invalid("enrollment_id", "enrollment %d belongs to another student", e.ID)
			}
		}
		return tx.CreateFee(ctx, fee)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("fee created",
		zap.Int64("fee_id", fee.ID), zap.Int64("student_id", fee.StudentID), zap.Float64("amount", fee.Amount))
	return fee, nil
}

// GetFee returns the fee with its overdue status derived for today.
func (s *Service) GetFee(ctx context.Context, actor *models.User, id int64) (*models.Fee, error) {
	fee, err := store.Read(ctx, s.store, func(tx store.Tx) (*models.Fee, error) {
		fee, err := tx.GetFee(ctx, id)
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
		return fee, nil
	})
	if err != nil {
		return nil, err
	}
	out := fee.WithDerivedStatus(s.today())
	return &out, nil
}

// ListFees returns fees with derived overdue status. Filtering by
// PaymentOverdue matches unpaid fees past their due date.
func (s *Service) ListFees(ctx context.Context, actor *models.User, f models.FeeFilter) ([]models.Fee, error) {
	if err := authorizeFeeView(actor, f.DepartmentID); err != nil {
		return nil, err
	}
	want := f.Statuses
	f.Statuses = nil
	fees, err := store.Read(ctx, s.store, func(tx store.Tx) ([]models.Fee, error) {
		return tx.ListFees(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	today := s.today()
	out := make([]models.Fee, 0, len(fees))
	for _, fee := range fees {
		fee = fee.WithDerivedStatus(today)
		if len(want) > 0 && !slices.Contains(want, fee.Status) {
			continue
		}
		out = append(out, fee)
	}
	return out, nil
}

func authorizeFeeView(actor *models.User, deptID *int64) error {
	return access.AuthorizeAny(actor, deptID, access.ManageFees, access.ProcessPayments, access.ViewFinancialReports)
}

type PaymentInput struct {
	Amount        float64 `json:"amount" validate:"gt=0"`
	Method        string  `json:"method" validate:"required,oneof=cash card upi bank_transfer cheque"`
	TransactionID string  `json:"transaction_id" validate:"max=100"`
}

type PaymentResult struct {
	Fee         *models.Fee            `json:"fee"`
	Payment     *models.FeePayment     `json:"payment"`
	Installment *models.FeeInstallment `json:"installment,omitempty"`
}

// ProcessPayment applies one payment to a fee and records it in the
// ledger. Paying more than is pending is rejected; a fee with nothing
// pending accepts no payment at all.
func (s *Service) ProcessPayment(ctx context.Context, actor *models.User, feeID int64, in PaymentInput) (*PaymentResult, error) {
	return s.pay(ctx, actor, feeID, 0, in)
}

// pay runs processPayment, retrying when the random receipt number is
// taken. A non-zero installmentID settles that installment with the payment.
func (s *Service) pay(ctx context.Context, actor *models.User, feeID, installmentID int64, in PaymentInput) (*PaymentResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	amount := models.Money(in.Amount)
	if amount <= 0 {
		return nil, apperr.Invalid("amount", "payment amount must be greater than zero")
	}

	var (
		res     *PaymentResult
		student *models.Student
		err     error
	)
	for attempt := 0; attempt < receiptAttempts; attempt++ {
		res, student, err = s.processPayment(ctx, actor, feeID, installmentID, amount, in)
		if !receiptTaken(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.log)
	metrics.PaymentsProcessed.WithLabelValues(in.Method).Inc()
	log.Info("payment processed", zap.Int64("fee_id", feeID), zap.Float64("amount", amount),
		zap.String("receipt", res.Payment.ReceiptNumber), zap.String("status", string(res.Fee.Status)))
	notify.Send(ctx, s.notifier, log, payer(student), notify.PaymentReceived, notify.Payload{
		"amount":  fmt.Sprintf("%.2f", amount),
		"receipt": res.Payment.ReceiptNumber,
		"pending": fmt.Sprintf("%.2f", res.Fee.PendingAmount),
		"fee_id":  strconv.FormatInt(feeID, 10),
	})
	return res, nil
}

func (s *Service) processPayment(ctx context.Context, actor *models.User, feeID, installmentID int64, amount float64, in PaymentInput) (*PaymentResult, *models.Student, error) {
	now := s.now()
	res := &PaymentResult{}
	var student *models.Student
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		fee, err := tx.LockFee(ctx, feeID)
		if err != nil {
			return err
		}
		student, err = tx.GetStudent(ctx, fee.StudentID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ProcessPayments, access.Scope(student.DepartmentID)); err != nil {
			return err
		}
		if fee.PendingAmount <= 0 {
			return apperr.State("fee", "fee %d is already paid", fee.ID)
		}
		if amount > fee.PendingAmount {
			return apperr.Invalid("amount", "payment %.2f exceeds pending amount %.2f", amount, fee.PendingAmount)
		}
		var inst *models.FeeInstallment
		if installmentID != 0 {
			if inst, err = tx.LockInstallment(ctx, installmentID); err != nil {
				return err
			}
			if inst.FeeID != fee.ID || inst.Status != models.InstallmentPending {
				return apperr.State("installment", "installment %d is not open on fee %d", inst.ID, fee.ID)
			}
		}

		fee.PaidAmount = models.Money(fee.PaidAmount + amount)
		fee.Recalculate()
		fee.PaymentDate = &now
		fee.PaymentMethod = models.PaymentMethod(in.Method)
		fee.TransactionID = strings.TrimSpace(in.TransactionID)
		if err := tx.UpdateFee(ctx, fee); err != nil {
			return err
		}

		processor := actor.ID
		p := &models.FeePayment{
			FeeID:         fee.ID,
			Amount:        amount,
			Method:        fee.PaymentMethod,
			TransactionID: fee.TransactionID,
			ReceiptNumber: s.receipt(now.In(s.loc)),
			PaidAt:        now,
			ProcessedBy:   &processor,
		}
		if err := tx.CreateFeePayment(ctx, p); err != nil {
			return err
		}
		if inst != nil {
			inst.Status = models.InstallmentPaid
			inst.PaymentID = &p.ID
			inst.PaymentDate = &now
			inst.PaymentMethod = p.Method
			inst.TransactionID = p.TransactionID
			inst.ProcessedBy = &processor
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
			res.Installment = inst
		}
		res.Fee, res.Payment = fee, p
		return nil
	})
	return res, student, err
}

func receiptTaken(err error) bool {
	var ae *apperr.Error
	return errors.As(err, &ae) && ae.Kind == apperr.KindConflict && ae.Entity == "payment"
}

// payer addresses the student for payment receipts; only email can reach
// them.
func payer(st *models.Student) models.User {
	return models.User{Username: st.StudentID, FullName: st.FullName, Email: st.Email}
}

// ApplyLateFee adds a late fee to an unpaid fee.
func (s *Service) ApplyLateFee(ctx context.Context, actor *models.User, feeID int64, amount float64) (*models.Fee, error) {
	amount = models.Money(amount)
	if amount <= 0 {
		return nil, apperr.Invalid("amount", "late fee must be greater than zero")
	}
	fee, err := s.updateFee(ctx, actor, feeID, func(fee *models.Fee) error {
		if fee.Status == models.PaymentPaid {
			return apperr.State("fee", "fee %d is already paid", fee.ID)
		}
		fee.LateFee = models.Money(fee.LateFee + amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("late fee applied", zap.Int64("fee_id", feeID), zap.Float64("amount", amount))
	return fee, nil
}

// ApplyDiscount reduces what is owed by at most the pending amount.
func (s *Service) ApplyDiscount(ctx context.Context, actor *models.User, feeID int64, amount float64, reason string) (*models.Fee, error) {
	amount = models.Money(amount)
	reason = strings.TrimSpace(reason)
	switch {
	case amount <= 0:
		return nil, apperr.Invalid("amount", "discount must be greater than zero")
	case reason == "":
		return nil, apperr.Invalid("reason", "discount reason is required")
	}
	fee, err := s.updateFee(ctx, actor, feeID, func(fee *models.Fee) error {
		if amount > fee.PendingAmount {
			return apperr.Invalid("amount", "discount %.2f exceeds pending amount %.2f", amount, fee.PendingAmount)
		}
		fee.Discount = models.Money(fee.Discount + amount)
		if fee.DiscountReason == "" {
			fee.DiscountReason = reason
		} else {
			fee.DiscountReason += "; " + reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("discount applied", zap.Int64("fee_id", feeID), zap.Float64("amount", amount))
	return fee, nil
}

func (s *Service) updateFee(ctx context.Context, actor *models.User, feeID int64, apply func(*models.Fee) error) (*models.Fee, error) {
	var fee *models.Fee
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		fee, err = tx.LockFee(ctx, feeID)
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
		if err := apply(fee); err != nil {
			return err
		}
		fee.Recalculate()
		return tx.UpdateFee(ctx, fee)
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}
