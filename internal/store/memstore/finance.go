package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

// fees

func (t *tx) CreateFee(_ context.Context, f *models.Fee) error {
	if _, ok := t.d.students[f.StudentID]; !ok {
		return apperr.NotFound("student", f.StudentID)
	}
	f.ID = t.d.id()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = t.now()
	}
	t.d.fees[f.ID] = *f
	return nil
}

func (t *tx) GetFee(_ context.Context, id int64) (*models.Fee, error) {
	f, ok := t.d.fees[id]
	if !ok {
		return nil, apperr.NotFound("fee", id)
	}
	return &f, nil
}

func (t *tx) LockFee(ctx context.Context, id int64) (*models.Fee, error) { return t.GetFee(ctx, id) }

func (t *tx) UpdateFee(_ context.Context, f *models.Fee) error {
	if _, ok := t.d.fees[f.ID]; !ok {
		return apperr.NotFound("fee", f.ID)
	}
	t.d.fees[f.ID] = *f
	return nil
}

func (t *tx) ListFees(_ context.Context, f models.FeeFilter) ([]models.Fee, error) {
	out := make([]models.Fee, 0)
	for _, fee := range t.d.fees {
		if f.StudentID != nil && fee.StudentID != *f.StudentID {
			continue
		}
		if f.DepartmentID != nil {
			st, ok := t.d.students[fee.StudentID]
			if !ok || st.DepartmentID == nil || *st.DepartmentID != *f.DepartmentID {
				continue
			}
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, fee.Status) {
			continue
		}
		if f.DueBefore != nil && !fee.DueDate.Before(*f.DueBefore) {
			continue
		}
		out = append(out, fee)
	}
	sortByID(out, func(f models.Fee) int64 { return f.ID })
	return out, nil
}

func (t *tx) CreateFeePayment(_ context.Context, p *models.FeePayment) error {
	if _, ok := t.d.fees[p.FeeID]; !ok {
		return apperr.NotFound("fee", p.FeeID)
	}
	for _, o := range t.d.payments {
		if o.ReceiptNumber == p.ReceiptNumber {
			return apperr.Conflict("payment", o.ReceiptNumber, "receipt %s already issued", o.ReceiptNumber)
		}
	}
	p.ID = t.d.id()
	t.d.payments[p.ID] = *p
	return nil
}

func (t *tx) ListFeePayments(_ context.Context, f models.PaymentFilter) ([]models.FeePayment, error) {
	out := make([]models.FeePayment, 0)
	for _, p := range t.d.payments {
		if f.FeeID != nil && p.FeeID != *f.FeeID {
			continue
		}
		if f.From != nil && p.PaidAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !p.PaidAt.Before(*f.To) {
			continue
		}
		out = append(out, p)
	}
	sortByID(out, func(p models.FeePayment) int64 { return p.ID })
	return out, nil
}

// payroll

func (t *tx) CreatePayroll(ctx context.Context, p *models.PayrollRecord) error {
	if o, _ := t.FindPayroll(ctx, p.TutorID, p.Month, p.Year); o != nil {
		return apperr.Conflict("payroll", o.Period(), "payroll for tutor %d %s already exists", p.TutorID, o.Period())
	}
	p.ID = t.d.id()
	if p.GeneratedAt.IsZero() {
		p.GeneratedAt = t.now()
	}
	t.d.payroll[p.ID] = *p
	return nil
}

func (t *tx) GetPayroll(_ context.Context, id int64) (*models.PayrollRecord, error) {
	p, ok := t.d.payroll[id]
	if !ok {
		return nil, apperr.NotFound("payroll", id)
	}
	return &p, nil
}

func (t *tx) FindPayroll(_ context.Context, tutorID int64, month, year int) (*models.PayrollRecord, error) {
	for _, p := range t.d.payroll {
		if p.TutorID == tutorID && p.Month == month && p.Year == year {
			return &p, nil
		}
	}
	return nil, nil
}

func (t *tx) UpdatePayroll(_ context.Context, p *models.PayrollRecord) error {
	if _, ok := t.d.payroll[p.ID]; !ok {
		return apperr.NotFound("payroll", p.ID)
	}
	t.d.payroll[p.ID] = *p
	return nil
}

func (t *tx) ListPayroll(_ context.Context, f models.PayrollFilter) ([]models.PayrollRecord, error) {
	out := make([]models.PayrollRecord, 0)
	for _, p := range t.d.payroll {
		if f.TutorID != nil && p.TutorID != *f.TutorID {
			continue
		}
		if f.Month != 0 && p.Month != f.Month {
			continue
		}
		if f.Year != 0 && p.Year != f.Year {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	sortByID(out, func(p models.PayrollRecord) int64 { return p.ID })
	return out, nil
}

// reset tokens

func (s *Store) PutToken(_ context.Context, token string, t store.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = t
	return nil
}

func (s *Store) TakeToken(_ context.Context, token string) (store.ResetToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return store.ResetToken{}, false, nil
	}
	delete(s.tokens, token)
	return t, true, nil
}

func (s *Store) PurgeExpiredTokens(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, t := range s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

// SetClock replaces the timestamp source used for created_at columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
