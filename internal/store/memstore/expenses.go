package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

// installments

func (t *tx) CreateInstallment(_ context.Context, i *models.FeeInstallment) error {
	if _, ok := t.d.fees[i.FeeID]; !ok {
		return apperr.NotFound("fee", i.FeeID)
	}
	for _, o := range t.d.installments {
		if o.FeeID == i.FeeID && o.Number == i.Number {
			return apperr.Conflict("installment", o.ID, "fee %d already has installment %d", i.FeeID, i.Number)
		}
	}
	i.ID = t.d.id()
	if i.CreatedAt.IsZero() {
		i.CreatedAt = t.now()
	}
	t.d.installments[i.ID] = *i
	return nil
}

func (t *tx) LockInstallment(_ context.Context, id int64) (*models.FeeInstallment, error) {
	i, ok := t.d.installments[id]
	if !ok {
		return nil, apperr.NotFound("installment", id)
	}
	return &i, nil
}

func (t *tx) UpdateInstallment(_ context.Context, i *models.FeeInstallment) error {
	if _, ok := t.d.installments[i.ID]; !ok {
		return apperr.NotFound("installment", i.ID)
	}
	t.d.installments[i.ID] = *i
	return nil
}

func (t *tx) ListInstallments(_ context.Context, feeID int64) ([]models.FeeInstallment, error) {
	out := make([]models.FeeInstallment, 0)
	for _, i := range t.d.installments {
		if i.FeeID == feeID {
			out = append(out, i)
		}
	}
	slices.SortFunc(out, func(a, b models.FeeInstallment) int { return a.Number - b.Number })
	return out, nil
}

// expenses

func (t *tx) CreateExpense(_ context.Context, e *models.ExpenseRecord) error {
	e.ID = t.d.id()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	t.d.expenses[e.ID] = *e
	return nil
}

func (t *tx) LockExpense(_ context.Context, id int64) (*models.ExpenseRecord, error) {
	e, ok := t.d.expenses[id]
	if !ok {
		return nil, apperr.NotFound("expense", id)
	}
	return &e, nil
}

func (t *tx) UpdateExpense(_ context.Context, e *models.ExpenseRecord) error {
	if _, ok := t.d.expenses[e.ID]; !ok {
		return apperr.NotFound("expense", e.ID)
	}
	t.d.expenses[e.ID] = *e
	return nil
}

func (t *tx) ListExpenses(_ context.Context, f models.ExpenseFilter) ([]models.ExpenseRecord, error) {
	out := make([]models.ExpenseRecord, 0)
	for _, e := range t.d.expenses {
		if f.Status != "" && e.ApprovalStatus != f.Status {
			continue
		}
		if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
			continue
		}
		if f.From != nil && e.ExpenseDate.Before(*f.From) {
			continue
		}
		if f.To != nil && !e.ExpenseDate.Before(*f.To) {
			continue
		}
		out = append(out, e)
	}
	sortByID(out, func(e models.ExpenseRecord) int64 { return e.ID })
	return out, nil
}
