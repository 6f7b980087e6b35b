package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

// DefaultPayrollCron runs payroll at 06:00 on the first of every month.
const DefaultPayrollCron = "0 6 1 * *"

// ErrNoSystemActor means no active superadmin exists to run payroll as.
var ErrNoSystemActor = errors.New("jobs: no active superadmin to act as")

// MonthlyPayroll generates payroll for the calendar month before now,
// acting as the first active superadmin.
func (t *Tasks) MonthlyPayroll(ctx context.Context) error {
	actor, err := SystemActor(ctx, t.Store)
	if err != nil {
		return err
	}
	month, year := PreviousMonth(t.now(), t.loc())
	res, err := t.Finance.GenerateMonthlyPayroll(ctx, actor, month, year)
	if err != nil {
		return err
	}
	jobItems.WithLabelValues("monthly_payroll").Add(float64(len(res.Created)))
	t.alert(ctx, fmt.Sprintf("Payroll %04d-%02d generated: %d new records, %d already present.",
		year, month, len(res.Created), len(res.Skipped)))
	return nil
}

// PreviousMonth is the calendar month before now in loc.
func PreviousMonth(now time.Time, loc *time.Location) (month, year int) {
	y, m, _ := now.In(loc).Date()
	prev := time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
	return int(prev.Month()), prev.Year()
}

// SystemActor is the account unattended work runs as: the active
// superadmin with the lowest id.
func SystemActor(ctx context.Context, st store.Store) (*models.User, error) {
	admins, err := store.Read(ctx, st, func(tx store.Tx) ([]models.User, error) {
		return tx.ListUsers(ctx, models.UserFilter{Role: models.RoleSuperadmin, ActiveOnly: true})
	})
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, ErrNoSystemActor
	}
	first := slices.MinFunc(admins, func(a, b models.User) int { return cmp.Compare(a.ID, b.ID) })
	return &first, nil
}
