package models

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodUPI          PaymentMethod = "upi"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheque       PaymentMethod = "cheque"
)

type Fee struct {
	ID             int64         `db:"id" json:"id"`
	StudentID      int64         `db:"student_id" json:"student_id"`
	EnrollmentID   *int64        `db:"enrollment_id" json:"enrollment_id,omitempty"`
	FeeType        string        `db:"fee_type" json:"fee_type"`
	Description    string        `db:"description" json:"description,omitempty"`
	Amount         float64       `db:"amount" json:"amount"`
	LateFee        float64       `db:"late_fee" json:"late_fee"`
	Discount       float64       `db:"discount" json:"discount"`
	DiscountReason string        `db:"discount_reason" json:"discount_reason,omitempty"`
	PaidAmount     float64       `db:"paid_amount" json:"paid_amount"`
	PendingAmount  float64       `db:"pending_amount" json:"pending_amount"`
	DueDate        time.Time     `db:"due_date" json:"due_date"`
	Status         PaymentStatus `db:"status" json:"status"`
	PaymentDate    *time.Time    `db:"payment_date" json:"payment_date,omitempty"`
	PaymentMethod  PaymentMethod `db:"payment_method" json:"payment_method,omitempty"`
	TransactionID  string        `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedBy      *int64        `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// Total is what the student owes before payments.
func (f Fee) Total() float64 { return Money(f.Amount + f.LateFee - f.Discount) }

// Recalculate derives PendingAmount and Status from the other amounts.
// Status is paid exactly when nothing is pending.
func (f *Fee) Recalculate() {
	pending := Money(f.Total() - f.PaidAmount)
	if pending < 0 {
		pending = 0
	}
	f.PendingAmount = pending
	switch {
	case pending == 0:
		f.Status = PaymentPaid
	case f.PaidAmount > 0:
		f.Status = PaymentPartial
	default:
		f.Status = PaymentPending
	}
}

// IsOverdue reports whether money is still owed after the due date.
func (f Fee) IsOverdue(today time.Time) bool {
	return f.PendingAmount > 0 && dateOnly(f.DueDate).Before(dateOnly(today))
}

func (f Fee) DaysOverdue(today time.Time) int {
	if !f.IsOverdue(today) {
		return 0
	}
	return int(dateOnly(today).Sub(dateOnly(f.DueDate)).Hours() / 24)
}

// WithDerivedStatus returns a copy whose status reads overdue when due
// money is late. Stored rows keep pending/partial.
func (f Fee) WithDerivedStatus(today time.Time) Fee {
	if f.IsOverdue(today) {
		f.Status = PaymentOverdue
	}
	return f
}

// FeePayment is one entry in the payment ledger.
type FeePayment struct {
	ID            int64         `db:"id" json:"id"`
	FeeID         int64         `db:"fee_id" json:"fee_id"`
	Amount        float64       `db:"amount" json:"amount"`
	Method        PaymentMethod `db:"method" json:"method"`
	TransactionID string        `db:"transaction_id" json:"transaction_id,omitempty"`
	ReceiptNumber string        `db:"receipt_number" json:"receipt_number"`
	PaidAt        time.Time     `db:"paid_at" json:"paid_at"`
	ProcessedBy   *int64        `db:"processed_by" json:"processed_by,omitempty"`
}

// NewReceiptNumber formats RCP{yyyymmdd}{4 digits}.
func NewReceiptNumber(at time.Time) string {
	return fmt.Sprintf("RCP%s%04d", at.Format("20060102"), rand.IntN(10000))
}

type FeeFilter struct {
	StudentID    *int64
	DepartmentID *int64
	Statuses     []PaymentStatus
	DueBefore    *time.Time
}

type PaymentFilter struct {
	FeeID *int64
	From  *time.Time
	To    *time.Time // exclusive
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// FeeInstallment is one scheduled part of a fee paid in several payments.
type FeeInstallment struct {
	ID            int64             `db:"id" json:"id"`
	FeeID         int64             `db:"fee_id" json:"fee_id"`
	Number        int               `db:"installment_number" json:"installment_number"`
	Amount        float64           `db:"amount" json:"amount"`
	DueDate       time.Time         `db:"due_date" json:"due_date"`
	Status        InstallmentStatus `db:"status" json:"status"`
	PaymentID     *int64            `db:"payment_id" json:"payment_id,omitempty"`
	PaymentDate   *time.Time        `db:"payment_date" json:"payment_date,omitempty"`
	PaymentMethod PaymentMethod     `db:"payment_method" json:"payment_method,omitempty"`
	TransactionID string            `db:"transaction_id" json:"transaction_id,omitempty"`
	ProcessedBy   *int64            `db:"processed_by" json:"processed_by,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

func (i FeeInstallment) IsOverdue(today time.Time) bool {
	return i.Status == InstallmentPending && dateOnly(i.DueDate).Before(dateOnly(today))
}

// WithDerivedStatus reads overdue for a pending installment past its due date.
func (i FeeInstallment) WithDerivedStatus(today time.Time) FeeInstallment {
	if i.IsOverdue(today) {
		i.Status = InstallmentOverdue
	}
	return i
}
