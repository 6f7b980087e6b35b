package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

func mustTutor(t *testing.T, s *Store) int64 {
	t.Helper()
	var id int64
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		u := &models.User{Username: "tutor", Role: models.RoleTutor, IsActive: true, IsApproved: true}
		if err := tx.CreateUser(context.Background(), u); err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func session(tutorID int64, start time.Time, d time.Duration) *models.ClassSession {
	return &models.ClassSession{
		TutorID:  tutorID,
		Subject:  "maths",
		Date:     start.Truncate(24 * time.Hour),
		StartsAt: start,
		EndsAt:   start.Add(d),
		Status:   models.SessionScheduled,
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateUser(ctx, &models.User{Username: "ghost", Role: models.RoleTutor}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	n, err := store.Read(ctx, s, func(tx store.Tx) (int, error) {
		return tx.CountUsers(ctx, models.UserFilter{})
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rolled back user visible, count=%d", n)
	}
}

func TestSessions_OverlapBackstop(t *testing.T) {
	s := New()
	ctx := context.Background()
	tutor := mustTutor(t, s)
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateSession(ctx, session(tutor, start, time.Hour))
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateSession(ctx, session(tutor, start.Add(30*time.Minute), time.Hour))
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("want conflict, got %v", err)
	}

	// back-to-back is fine
	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateSession(ctx, session(tutor, start.Add(time.Hour), time.Hour))
	})
	if err != nil {
		t.Fatalf("adjacent session rejected: %v", err)
	}

	// cancelled sessions do not block
	err = s.InTx(ctx, func(tx store.Tx) error {
		c := session(tutor, start.Add(15*time.Minute), 30*time.Minute)
		c.Status = models.SessionCancelled
		return tx.CreateSession(ctx, c)
	})
	if err != nil {
		t.Fatalf("cancelled session rejected: %v", err)
	}
}

func TestInsertSessionIfAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()
	tutor := mustTutor(t, s)
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	enr := int64(99)

	for i, want := range []bool{true, false} {
		var got bool
		err := s.InTx(ctx, func(tx store.Tx) error {
			ss := session(tutor, start, time.Hour)
			ss.EnrollmentID = &enr
			ss.SlotStart = &start
			var err error
			got, err = tx.InsertSessionIfAbsent(ctx, ss)
			return err
		})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("run %d: inserted=%v want %v", i, got, want)
		}
	}
}

func TestTokens_TakeOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutToken(ctx, "abc", store.ResetToken{UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if tok, ok, _ := s.TakeToken(ctx, "abc"); !ok || tok.UserID != 1 {
		t.Fatalf("first take: %v %v", tok, ok)
	}
	if _, ok, _ := s.TakeToken(ctx, "abc"); ok {
		t.Fatal("token taken twice")
	}
}

func TestListExpenses_Filter(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }
	err := s.InTx(ctx, func(tx store.Tx) error {
		for _, e := range []models.ExpenseRecord{
			{Category: "rent", Amount: 100, ExpenseDate: day(1, 1), ApprovalStatus: models.ExpenseApproved},
			{Category: "Rent", Amount: 100, ExpenseDate: day(2, 1), ApprovalStatus: models.ExpenseApproved},
			{Category: "rent", Amount: 100, ExpenseDate: day(1, 31), ApprovalStatus: models.ExpensePending},
		} {
			if err := tx.CreateExpense(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	from, to := day(1, 1), day(2, 1)
	got, err := store.Read(ctx, s, func(tx store.Tx) ([]models.ExpenseRecord, error) {
		return tx.ListExpenses(ctx, models.ExpenseFilter{Status: models.ExpenseApproved, Category: "RENT", From: &from, To: &to})
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].ExpenseDate.Equal(from) {
		t.Fatalf("expenses = %+v", got)
	}
}

func TestReplaceAvailability_FailedTxKeepsOld(t *testing.T) {
	s := New()
	ctx := context.Background()
	tutor := mustTutor(t, s)
	monday := []models.AvailabilitySlot{{Day: "monday", Start: "09:00", End: "12:00"}}
	if err := s.InTx(ctx, func(tx store.Tx) error { return tx.ReplaceAvailability(ctx, tutor, monday) }); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.ReplaceAvailability(ctx, tutor, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	got, _ := store.Read(ctx, s, func(tx store.Tx) ([]models.AvailabilitySlot, error) { return tx.ListAvailability(ctx, tutor) })
	if len(got) != 1 || got[0].TutorID != tutor {
		t.Fatalf("slots = %+v", got)
	}
}
