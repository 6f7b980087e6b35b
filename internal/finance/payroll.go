package finance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

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

// PeriodConflict identifies the existing record a duplicate run hit.
type PeriodConflict struct {
	PayrollID int64 `json:"payroll_id"`
	TutorID   int64 `json:"tutor_id"`
	Month     int   `json:"month"`
	Year      int   `json:"year"`
}

func checkPeriod(month, year int) error {
	if month < 1 || month > 12 {
		return apperr.Invalid("month", "month must be 1-12, got %d", month)
	}
	if year < 2000 || year > 2100 {
		return apperr.Invalid("year", "year %d is out of range", year)
	}
	return nil
}

// GeneratePayroll builds the tutor's record for the month from completed
// sessions and late arrivals. A second run for the same period is a
// Conflict and writes nothing.
func (s *Service) GeneratePayroll(ctx context.Context, actor *models.User, tutorID int64, month, year int) (*models.PayrollRecord, error) {
	if err := checkPeriod(month, year); err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ManageAllPayroll, nil); err != nil {
		return nil, err
	}
	var rec *models.PayrollRecord
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		tutor, err := tx.LockUser(ctx, tutorID)
		if err != nil {
			return err
		}
		if tutor.Role != models.RoleTutor {
			return apperr.Invalid("tutor_id", "user %d is not a tutor", tutorID)
		}
		existing, err := tx.FindPayroll(ctx, tutorID, month, year)
		if err != nil {
			return err
		}
		if existing != nil {
			return duplicatePeriod(existing)
		}
		rec, err = s.generate(ctx, tx, tutor, month, year, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.PayrollGenerated.Inc()
	logging.FromContext(ctx, s.log).Info("payroll generated",
		zap.Int64("tutor_id", tutorID), zap.String("period", rec.Period()),
		zap.Float64("gross", rec.GrossAmount), zap.Float64("net", rec.NetAmount))
	return rec, nil
}

func duplicatePeriod(p *models.PayrollRecord) error {
	return apperr.Conflict("payroll",
		PeriodConflict{PayrollID: p.ID, TutorID: p.TutorID, Month: p.Month, Year: p.Year},
		"payroll %d already exists for tutor %d in %s", p.ID, p.TutorID, p.Period())
}

func (s *Service) generate(ctx context.Context, tx store.Tx, tutor *models.User, month, year int, by int64) (*models.PayrollRecord, error) {
	from, to := models.MonthBounds(year, month, s.loc)
	sessions, err := tx.ListSessions(ctx, models.SessionFilter{
		TutorID:  &tutor.ID,
		From:     &from,
		To:       &to,
		Statuses: []models.SessionStatus{models.SessionCompleted},
	})
	if err != nil {
		return nil, err
	}
	late, err := tx.ListLateArrivals(ctx, tutor.ID, from, to)
	if err != nil {
		return nil, err
	}

	var hours, penalty float64
	for _, sess := range sessions {
		hours += sess.Hours()
	}
	for _, la := range late {
		penalty += la.PenaltyAmount
	}
	rate := tutor.RateOr(s.defaultRate)
	rec := &models.PayrollRecord{
		TutorID:            tutor.ID,
		Month:              month,
		Year:               year,
		TotalClasses:       len(sessions),
		TotalHours:         models.Round(hours, 2),
		HourlyRate:         rate,
		GrossAmount:        models.Money(hours * rate),
		LateArrivalPenalty: models.Money(penalty),
		Status:             models.PayrollPending,
		GeneratedBy:        &by,
	}
	rec.Recalculate()
	if err := tx.CreatePayroll(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MonthlyResult reports a whole-staff payroll run.
type MonthlyResult struct {
	Created []models.PayrollRecord `json:"created"`
	// Skipped lists tutors that already had a record for the period.
	Skipped []int64 `json:"skipped,omitempty"`
}

// GenerateMonthlyPayroll runs GeneratePayroll for every active tutor,
// skipping those already paid out for the period.
func (s *Service) GenerateMonthlyPayroll(ctx context.Context, actor *models.User, month, year int) (*MonthlyResult, error) {
	if err := checkPeriod(month, year); err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ManageAllPayroll, nil); err != nil {
		return nil, err
	}
	res := &MonthlyResult{}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		tutors, err := tx.ListUsers(ctx, models.UserFilter{Role: models.RoleTutor, ActiveOnly: true})
		if err != nil {
			return err
		}
		for i := range tutors {
			t := &tutors[i]
			existing, err := tx.FindPayroll(ctx, t.ID, month, year)
			if err != nil {
				return err
			}
			if existing != nil {
				res.Skipped = append(res.Skipped, t.ID)
				continue
			}
			rec, err := s.generate(ctx, tx, t, month, year, actor.ID)
			if err != nil {
				return fmt.Errorf("tutor %d: %w", t.ID, err)
			}
			res.Created = append(res.Created, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.PayrollGenerated.Add(float64(len(res.Created)))
	logging.FromContext(ctx, s.log).Info("monthly payroll generated",
		zap.Int("month", month), zap.Int("year", year),
		zap.Int("created", len(res.Created)), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

type AdjustInput struct {
	Bonus          *float64 `json:"bonus_amount" validate:"omitempty,min=0"`
	BonusReason    string   `json:"bonus_reason" validate:"max=500"`
	Deductions     *float64 `json:"other_deductions" validate:"omitempty,min=0"`
	DeductionNotes string   `json:"deduction_notes" validate:"max=500"`
}

// AdjustPayroll sets bonus and other deductions on a pending record.
func (s *Service) AdjustPayroll(ctx context.Context, actor *models.User, id int64, in AdjustInput) (*models.PayrollRecord, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Bonus != nil && *in.Bonus > 0 && strings.TrimSpace(in.BonusReason) == "" {
		return nil, apperr.Invalid("bonus_reason", "a bonus needs a reason")
	}
	rec, err := s.updatePayroll(ctx, actor, id, func(p *models.PayrollRecord) error {
		if p.Status != models.PayrollPending {
			return apperr.State("payroll", "payroll %d is %s", p.ID, p.Status)
		}
		if in.Bonus != nil {
			p.BonusAmount = models.Money(*in.Bonus)
			p.BonusReason = strings.TrimSpace(in.BonusReason)
		}
		if in.Deductions != nil {
			p.OtherDeductions = models.Money(*in.Deductions)
			p.DeductionNotes = strings.TrimSpace(in.DeductionNotes)
		}
		p.Recalculate()
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("payroll adjusted", zap.Int64("payroll_id", id), zap.Float64("net", rec.NetAmount))
	return rec, nil
}

type PayoutInput struct {
	Method    string `json:"payment_method" validate:"required,oneof=cash card upi bank_transfer cheque"`
	Reference string `json:"transaction_reference" validate:"max=100"`
}

// MarkPayrollPaid pays a pending record once.
func (s *Service) MarkPayrollPaid(ctx context.Context, actor *models.User, id int64, in PayoutInput) (*models.PayrollRecord, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now()
	var tutor *models.User
	rec, err := s.updatePayroll(ctx, actor, id, func(p *models.PayrollRecord) error {
		switch p.Status {
		case models.PayrollPaid:
			return apperr.State("payroll", "payroll %d is already paid", p.ID)
		case models.PayrollOnHold:
			return apperr.State("payroll", "payroll %d is on hold", p.ID)
		}
		p.Status = models.PayrollPaid
		p.PaymentDate = &now
		p.PaymentMethod = in.Method
		p.TransactionReference = strings.TrimSpace(in.Reference)
		return nil
	}, func(ctx context.Context, tx store.Tx, p *models.PayrollRecord) error {
		var err error
		tutor, err = tx.GetUser(ctx, p.TutorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.log)
	log.Info("payroll paid", zap.Int64("payroll_id", id), zap.Float64("net", rec.NetAmount))
	notify.Send(ctx, s.notifier, log, *tutor, notify.PayrollPaid, notify.Payload{
		"period": rec.Period(),
		"amount": fmt.Sprintf("%.2f", rec.NetAmount),
		"id":     strconv.FormatInt(rec.ID, 10),
	})
	return rec, nil
}

// HoldPayroll parks a pending record so it cannot be paid.
func (s *Service) HoldPayroll(ctx context.Context, actor *models.User, id int64) (*models.PayrollRecord, error) {
	return s.setPayrollStatus(ctx, actor, id, models.PayrollPending, models.PayrollOnHold)
}

// ReleasePayroll returns a held record to pending.
func (s *Service) ReleasePayroll(ctx context.Context, actor *models.User, id int64) (*models.PayrollRecord, error) {
	return s.setPayrollStatus(ctx, actor, id, models.PayrollOnHold, models.PayrollPending)
}

func (s *Service) setPayrollStatus(ctx context.Context, actor *models.User, id int64, from, to models.PayrollStatus) (*models.PayrollRecord, error) {
	rec, err := s.updatePayroll(ctx, actor, id, func(p *models.PayrollRecord) error {
		if p.Status != from {
			return apperr.State("payroll", "payroll %d is %s, not %s", p.ID, p.Status, from)
		}
		p.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("payroll status changed", zap.Int64("payroll_id", id), zap.String("status", string(to)))
	return rec, nil
}

func (s *Service) updatePayroll(ctx context.Context, actor *models.User, id int64, apply func(*models.PayrollRecord) error,
	after ...func(context.Context, store.Tx, *models.PayrollRecord) error) (*models.PayrollRecord, error) {
	if err := access.Authorize(actor, access.ManageAllPayroll, nil); err != nil {
		return nil, err
	}
	var rec *models.PayrollRecord
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.GetPayroll(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(rec); err != nil {
			return err
		}
		if err := tx.UpdatePayroll(ctx, rec); err != nil {
			return err
		}
		for _, fn := range after {
			if err := fn(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) GetPayroll(ctx context.Context, actor *models.User, id int64) (*models.PayrollRecord, error) {
	rec, err := store.Read(ctx, s.store, func(tx store.Tx) (*models.PayrollRecord, error) {
		return tx.GetPayroll(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if _, err := scopePayroll(actor, models.PayrollFilter{TutorID: &rec.TutorID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPayroll shows finance staff every record and tutors their own.
func (s *Service) ListPayroll(ctx context.Context, actor *models.User, f models.PayrollFilter) ([]models.PayrollRecord, error) {
	f, err := scopePayroll(actor, f)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.PayrollRecord, error) {
		return tx.ListPayroll(ctx, f)
	})
}

func scopePayroll(actor *models.User, f models.PayrollFilter) (models.PayrollFilter, error) {
	if access.AuthorizeAny(actor, nil, access.ManageAllPayroll, access.ViewFinancialReports) == nil {
		return f, nil
	}
	if err := access.Authorize(actor, access.ViewOwnPayroll, nil); err != nil {
		return f, err
	}
	if f.TutorID != nil && *f.TutorID != actor.ID {
		return f, apperr.Forbidden("%s can only see own payroll", actor.Username)
	}
	id := actor.ID
	f.TutorID = &id
	return f, nil
}
