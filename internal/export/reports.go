// Package export builds Excel reports for payroll, fees and class
// compliance.
package export

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

// Exporter reads through the domain services, so every report carries
// the same permission checks as the data it shows.
type Exporter struct {
	store      store.Store
	finance    *finance.Service
	attendance *attendance.Service
	loc        *time.Location
	now        func() time.Time
	log        *zap.Logger
}

func New(st store.Store, fin *finance.Service, att *attendance.Service, loc *time.Location, log *zap.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{store: st, finance: fin, attendance: att, loc: loc, now: time.Now, log: logging.Named(log, "export")}
}

// names resolves user and student display names for report rows.
func (e *Exporter) names(ctx context.Context) (users map[int64]models.User, students map[int64]models.Student, err error) {
	users, students = map[int64]models.User{}, map[int64]models.Student{}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		us, err := tx.ListUsers(ctx, models.UserFilter{})
		if err != nil {
			return err
		}
		for _, u := range us {
			users[u.ID] = u
		}
		ss, err := tx.ListStudents(ctx, models.StudentFilter{})
		if err != nil {
			return err
		}
		for _, s := range ss {
			students[s.ID] = s
		}
		return nil
	})
	return users, students, err
}

func (e *Exporter) done(ctx context.Context, report string, rows int, start time.Time) {
	metrics.ExportsGenerated.WithLabelValues(report).Inc()
	logging.FromContext(ctx, e.log).Info("export built",
		zap.String("report", report), zap.Int("rows", rows), zap.Duration("took", time.Since(start)))
}

var payrollHeader = []string{
	"Tutor", "Username", "Period", "Classes", "Hours", "Rate", "Gross", "Late penalty",
	"Deductions", "Bonus", "Net", "Status", "Paid on", "Method", "Reference",
}

// Payroll exports every payroll record of a month visible to actor.
func (e *Exporter) Payroll(ctx context.Context, actor *models.User, month, year int) (*Workbook, error) {
	start := time.Now()
	records, err := e.finance.ListPayroll(ctx, actor, models.PayrollFilter{Month: month, Year: year})
	if err != nil {
		return nil, err
	}
	users, _, err := e.names(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(records))
	var total float64
	for _, p := range records {
		t := users[p.TutorID]
		rows = append(rows, []any{
			t.FullName, t.Username, p.Period(), p.TotalClasses, p.TotalHours, p.HourlyRate, p.GrossAmount,
			p.LateArrivalPenalty, p.OtherDeductions, p.BonusAmount, p.NetAmount, string(p.Status),
			e.date(p.PaymentDate), p.PaymentMethod, p.TransactionReference,
		})
		total += p.NetAmount
	}
	if len(rows) > 0 {
		rows = append(rows, []any{"Total", "", "", "", "", "", "", "", "", "", models.Money(total)})
	}
	wb, err := NewWorkbook(PayrollFilename(month, year), []Sheet{{Title: "Payroll", Header: payrollHeader, Rows: rows}})
	if err != nil {
		return nil, err
	}
	e.done(ctx, "payroll", len(records), start)
	return wb, nil
}

var feeHeader = []string{
	"Student ID", "Student", "Fee type", "Description", "Amount", "Late fee", "Discount",
	"Paid", "Pending", "Due date", "Status", "Days overdue",
}

// Fees exports fees with their overdue status derived for today; an
// overdue-only tab follows the full list.
func (e *Exporter) Fees(ctx context.Context, actor *models.User, f models.FeeFilter) (*Workbook, error) {
	start := time.Now()
	fees, err := e.finance.ListFees(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	_, students, err := e.names(ctx)
	if err != nil {
		return nil, err
	}
	y, m, d := e.now().In(e.loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var all, overdue [][]any
	for _, fee := range fees {
		st := students[fee.StudentID]
		row := []any{
			st.StudentID, st.FullName, fee.FeeType, fee.Description, fee.Amount, fee.LateFee, fee.Discount,
			fee.PaidAmount, fee.PendingAmount, fee.DueDate.Format(time.DateOnly), string(fee.Status),
			fee.DaysOverdue(today),
		}
		all = append(all, row)
		if fee.Status == models.PaymentOverdue {
			overdue = append(overdue, row)
		}
	}
	dept := ""
	if f.DepartmentID != nil {
		dept = "department " + strconv.FormatInt(*f.DepartmentID, 10)
	}
	wb, err := NewWorkbook(FeesFilename(today, dept), []Sheet{
		{Title: "Fees", Header: feeHeader, Rows: all},
		{Title: "Overdue", Header: feeHeader, Rows: overdue},
	})
	if err != nil {
		return nil, err
	}
	e.done(ctx, "fees", len(fees), start)
	return wb, nil
}

var complianceHeader = []string{
	"Session", "Tutor", "Subject", "Starts at", "Attendance", "Feedback", "Recording", "Materials",
	"Score", "Deadline", "Overdue",
}

// Compliance exports the post-class checklist of completed sessions in
// [f.From, f.To).
func (e *Exporter) Compliance(ctx context.Context, actor *models.User, f attendance.RateFilter) (*Workbook, error) {
	start := time.Now()
	items, err := e.attendance.ListCompliance(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	users, _, err := e.names(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(items))
	for _, c := range items {
		rows = append(rows, []any{
			c.SessionID, users[c.TutorID].FullName, c.Subject, c.StartsAt.In(e.loc).Format("2006-01-02 15:04"),
			yesNo(c.Checklist.AttendanceMarked), yesNo(c.Checklist.FeedbackSubmitted),
			yesNo(c.Checklist.RecordingUploaded), yesNo(c.Checklist.MaterialsUploaded),
			c.Score, c.Deadline.In(e.loc).Format("2006-01-02 15:04"), yesNo(c.Overdue),
		})
	}
	rate := attendance.RateOf(items)
	summary := []Sheet{
		{Title: "Compliance", Header: complianceHeader, Rows: rows},
		{Title: "Summary", Header: []string{"Sessions", "Fully compliant %"}, Rows: [][]any{{len(items), rate}}},
	}
	wb, err := NewWorkbook(ComplianceFilename(f.From.In(e.loc), f.To.In(e.loc)), summary)
	if err != nil {
		return nil, err
	}
	e.done(ctx, "compliance", len(items), start)
	return wb, nil
}

func (e *Exporter) date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(e.loc).Format(time.DateOnly)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
