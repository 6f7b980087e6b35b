package finance

import (
	"context"
	"math"
	"time"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

const (
	HealthExcellent = "Excellent"
	HealthGood      = "Good"
	HealthFair      = "Fair"
	HealthPoor      = "Poor"
)

type Components struct {
	Collection float64 `json:"collection"`
	Overdue    float64 `json:"overdue"`
	Growth     float64 `json:"growth"`
	Profit     float64 `json:"profit"`
}

type Health struct {
	Score      float64    `json:"score"`
	Status     string     `json:"status"`
	Components Components `json:"components"`
}

// Figures are the raw inputs of the health score.
type Figures struct {
	CollectionRate float64 // percent
	Pending        float64
	Overdue        float64
	Revenue        float64 // this month
	LastRevenue    float64
	Expenses       float64 // this month's payroll plus approved expenses
}

// Score weighs collection (40), overdue share (30), month-on-month revenue
// growth (20) and profit margin (10). 90% collection, no overdue money, 10%
// growth and a 20% margin each earn the full weight.
func Score(f Figures) Health {
	collection := math.Min(f.CollectionRate/90*40, 40)

	var overdueRatio float64
	if f.Pending > 0 {
		overdueRatio = f.Overdue / f.Pending * 100
	}
	overdue := math.Max(30-overdueRatio/100*30, 0)

	var growthRate float64
	if f.LastRevenue > 0 {
		growthRate = (f.Revenue - f.LastRevenue) / f.LastRevenue * 100
	}
	growth := math.Min(math.Max(growthRate/10*20, 0), 20)

	var margin float64
	if f.Revenue > 0 {
		margin = (f.Revenue - f.Expenses) / f.Revenue * 100
	}
	// a loss-making month pulls the total down
	profit := math.Min(margin/20*10, 10)

	total := math.Max(collection+overdue+growth+profit, 0)
	return Health{
		Score:  models.Round(total, 1),
		Status: band(total),
		Components: Components{
			Collection: models.Round(collection, 1),
			Overdue:    models.Round(overdue, 1),
			Growth:     models.Round(growth, 1),
			Profit:     models.Round(profit, 1),
		},
	}
}

func band(score float64) string {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	}
	return HealthPoor
}

// CollectionRate is collected over billed as a percentage; zero when
// nothing was billed.
func CollectionRate(fees []models.Fee) float64 {
	var billed, paid float64
	for _, f := range fees {
		billed += f.Total()
		paid += f.PaidAmount
	}
	if billed <= 0 {
		return 0
	}
	return models.Round(paid/billed*100, 2)
}

type Summary struct {
	Billed         float64 `json:"billed"`
	Collected      float64 `json:"collected"`
	Pending        float64 `json:"pending"`
	Overdue        float64 `json:"overdue"`
	OverdueCount   int     `json:"overdue_count"`
	CollectionRate float64 `json:"collection_rate"`
	MonthRevenue   float64 `json:"month_revenue"`
	LastRevenue    float64 `json:"last_month_revenue"`
	PayrollCost    float64 `json:"payroll_cost"`
	OtherExpenses  float64 `json:"other_expenses"`
	PendingPayroll int     `json:"pending_payroll"`
	Health         Health  `json:"health"`
}

func (s *Service) CollectionRate(ctx context.Context, actor *models.User) (float64, error) {
	if err := access.Authorize(actor, access.ViewFinancialReports, nil); err != nil {
		return 0, err
	}
	fees, err := store.Read(ctx, s.store, func(tx store.Tx) ([]models.Fee, error) {
		return tx.ListFees(ctx, models.FeeFilter{})
	})
	if err != nil {
		return 0, err
	}
	return CollectionRate(fees), nil
}

func (s *Service) HealthScore(ctx context.Context, actor *models.User, now time.Time) (*Health, error) {
	sum, err := s.Summary(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	return &sum.Health, nil
}

// Summary aggregates fees, the payment ledger, payroll and approved
// expenses as of now.
// Revenue is what the ledger took in during now's calendar month.
func (s *Service) Summary(ctx context.Context, actor *models.User, now time.Time) (*Summary, error) {
	if err := access.Authorize(actor, access.ViewFinancialReports, nil); err != nil {
		return nil, err
	}
	local := now.In(s.loc)
	from, to := models.MonthBounds(local.Year(), int(local.Month()), s.loc)
	lastFrom := from.AddDate(0, -1, 0)
	y, m, d := local.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	out := &Summary{}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		fees, err := tx.ListFees(ctx, models.FeeFilter{})
		if err != nil {
			return err
		}
		for _, f := range fees {
			out.Billed += f.Total()
			out.Collected += f.PaidAmount
			out.Pending += f.PendingAmount
			if f.IsOverdue(today) {
				out.Overdue += f.PendingAmount
				out.OverdueCount++
			}
		}
		out.CollectionRate = CollectionRate(fees)

		if out.MonthRevenue, err = ledgerTotal(ctx, tx, from, to); err != nil {
			return err
		}
		if out.LastRevenue, err = ledgerTotal(ctx, tx, lastFrom, from); err != nil {
			return err
		}

		payroll, err := tx.ListPayroll(ctx, models.PayrollFilter{Month: int(local.Month()), Year: local.Year()})
		if err != nil {
			return err
		}
		for _, p := range payroll {
			out.PayrollCost += p.NetAmount
			if p.Status == models.PayrollPending {
				out.PendingPayroll++
			}
		}
		out.OtherExpenses, err = approvedExpenses(ctx, tx, local.Year(), local.Month())
		return err
	})
	if err != nil {
		return nil, err
	}

	out.Billed = models.Money(out.Billed)
	out.Collected = models.Money(out.Collected)
	out.Pending = models.Money(out.Pending)
	out.Overdue = models.Money(out.Overdue)
	out.MonthRevenue = models.Money(out.MonthRevenue)
	out.LastRevenue = models.Money(out.LastRevenue)
	out.PayrollCost = models.Money(out.PayrollCost)
	out.OtherExpenses = models.Money(out.OtherExpenses)
	out.Health = Score(Figures{
		CollectionRate: out.CollectionRate,
		Pending:        out.Pending,
		Overdue:        out.Overdue,
		Revenue:        out.MonthRevenue,
		LastRevenue:    out.LastRevenue,
		Expenses:       out.PayrollCost + out.OtherExpenses,
	})
	return out, nil
}

func ledgerTotal(ctx context.Context, tx store.Tx, from, to time.Time) (float64, error) {
	payments, err := tx.ListFeePayments(ctx, models.PaymentFilter{From: &from, To: &to})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range payments {
		total += p.Amount
	}
	return total, nil
}
