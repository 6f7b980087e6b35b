package models

import (
	"fmt"
	"time"
)

type PayrollStatus string

const (
	PayrollPending PayrollStatus = "pending"
	PayrollPaid    PayrollStatus = "paid"
	PayrollOnHold  PayrollStatus = "on_hold"
)

type PayrollRecord struct {
	ID                   int64         `db:"id" json:"id"`
	TutorID              int64         `db:"tutor_id" json:"tutor_id"`
	Month                int           `db:"month" json:"month"`
	Year                 int           `db:"year" json:"year"`
	TotalClasses         int           `db:"total_classes" json:"total_classes"`
	TotalHours           float64       `db:"total_hours" json:"total_hours"`
	HourlyRate           float64       `db:"hourly_rate" json:"hourly_rate"`
	GrossAmount          float64       `db:"gross_amount" json:"gross_amount"`
	LateArrivalPenalty   float64       `db:"late_arrival_penalty" json:"late_arrival_penalty"`
	OtherDeductions      float64       `db:"other_deductions" json:"other_deductions"`
	DeductionNotes       string        `db:"deduction_notes" json:"deduction_notes,omitempty"`
	BonusAmount          float64       `db:"bonus_amount" json:"bonus_amount"`
	BonusReason          string        `db:"bonus_reason" json:"bonus_reason,omitempty"`
	NetAmount            float64       `db:"net_amount" json:"net_amount"`
	Status               PayrollStatus `db:"status" json:"status"`
	PaymentDate          *time.Time    `db:"payment_date" json:"payment_date,omitempty"`
	PaymentMethod        string        `db:"payment_method" json:"payment_method,omitempty"`
	TransactionReference string        `db:"transaction_reference" json:"transaction_reference,omitempty"`
	GeneratedAt          time.Time     `db:"generated_at" json:"generated_at"`
	GeneratedBy          *int64        `db:"generated_by" json:"generated_by,omitempty"`
}

// Recalculate sets NetAmount = gross - penalties - deductions + bonus.
// A negative result is kept: it is what the tutor owes the center.
func (p *PayrollRecord) Recalculate() {
	p.NetAmount = Money(p.GrossAmount - p.LateArrivalPenalty - p.OtherDeductions + p.BonusAmount)
}

// Period renders the payroll month as YYYY-MM.
func (p PayrollRecord) Period() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

type PayrollFilter struct {
	TutorID *int64
	Month   int
	Year    int
	Status  PayrollStatus
}

// MonthBounds returns [first day of month, first day of next month) in loc.
func MonthBounds(year, month int, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}
