package models

import "time"

type ApprovalStatus string

const (
	ExpensePending  ApprovalStatus = "pending"
	ExpenseApproved ApprovalStatus = "approved"
	ExpenseRejected ApprovalStatus = "rejected"
)

// ExpenseRecord is a running cost of the center other than tutor payroll.
// Only approved expenses count against revenue.
type ExpenseRecord struct {
	ID             int64          `db:"id" json:"id"`
	Category       string         `db:"category" json:"category"`
	Subcategory    string         `db:"subcategory" json:"subcategory,omitempty"`
	Description    string         `db:"description" json:"description"`
	Amount         float64        `db:"amount" json:"amount"`
	ExpenseDate    time.Time      `db:"expense_date" json:"expense_date"`
	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	ApprovedBy     *int64         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	ReceiptNumber  string         `db:"receipt_number" json:"receipt_number,omitempty"`
	CreatedBy      *int64         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

type ExpenseFilter struct {
	Status   ApprovalStatus
	Category string
	From     *time.Time // expense_date, inclusive
	To       *time.Time // exclusive
}
