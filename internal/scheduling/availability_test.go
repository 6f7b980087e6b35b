package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

func (f *fixture) available(t *testing.T, slots ...AvailabilityInput) {
	t.Helper()
	if _, err := f.svc.SetAvailability(context.Background(), f.tutor, f.tutor.ID, slots); err != nil {
		t.Fatal(err)
	}
}

func TestCreateSession_OutsideAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.available(t, AvailabilityInput{Day: "Monday", Start: "14:00", End: "17:00"})

	f.book(t, "2024-01-01", "14:00", "15:00")

	for name, in := range map[string]CreateSessionInput{
		"runs past the slot": {TutorID: f.tutor.ID, Subject: "x", Date: "2024-01-01", Start: "16:30", End: "17:30"},
		"other weekday":      {TutorID: f.tutor.ID, Subject: "x", Date: "2024-01-02", Start: "14:00", End: "15:00"},
	} {
		if _, err := f.svc.CreateSession(ctx, f.admin, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: got %v", name, err)
		}
	}

	// clearing the slots lifts the restriction
	f.available(t)
	f.book(t, "2024-01-02", "14:00", "15:00")
}

func TestRescheduleSession_OutsideAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.book(t, "2024-01-01", "14:00", "15:00")
	f.available(t, AvailabilityInput{Day: "monday", Start: "14:00", End: "17:00"})

	_, err := f.svc.RescheduleSession(ctx, f.admin, s.ID, RescheduleInput{Date: "2024-01-01", Start: "18:00", End: "19:00"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("got %v", err)
	}
	if _, err := f.svc.RescheduleSession(ctx, f.admin, s.ID, RescheduleInput{Date: "2024-01-08", Start: "15:00", End: "16:00"}); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateFromEnrollment_SkipsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.available(t, AvailabilityInput{Day: "monday", Start: "13:00", End: "18:00"})
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := monday.AddDate(0, 0, 13)
	e := f.enroll(t, []models.ScheduleSlot{{Day: "monday", Time: "14:00"}, {Day: "wednesday", Time: "10:00"}}, monday, &end)

	res, err := f.svc.GenerateFromEnrollment(context.Background(), f.admin, e.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || len(res.Unavailable) != 2 || len(res.Conflicts) != 0 {
		t.Fatalf("result = %+v", res)
	}
	for _, u := range res.Unavailable {
		if u.StartsAt.In(ist).Weekday() != time.Wednesday {
			t.Errorf("unexpected unavailable slot %s", u.StartsAt)
		}
	}
}

func TestSetAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := map[string][]AvailabilityInput{
		"unknown day": {{Day: "funday", Start: "10:00", End: "11:00"}},
		"end first":   {{Day: "monday", Start: "11:00", End: "10:00"}},
		"overlap": {
			{Day: "monday", Start: "10:00", End: "12:00"},
			{Day: "Monday", Start: "11:30", End: "13:00"},
		},
	}
	for name, in := range bad {
		if _, err := f.svc.SetAvailability(ctx, f.tutor, f.tutor.ID, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: got %v", name, err)
		}
	}

	other := &models.User{ID: 999, Username: "other", Role: models.RoleTutor, IsActive: true, IsApproved: true}
	if _, err := f.svc.SetAvailability(ctx, other, f.tutor.ID, nil); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("another tutor: got %v", err)
	}
	if _, err := f.svc.SetAvailability(ctx, f.coord, f.tutor.ID, []AvailabilityInput{
		{Day: "tuesday", Start: "09:00", End: "12:00"},
		{Day: "tuesday", Start: "12:00", End: "15:00"},
	}); err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	slots, err := f.svc.GetAvailability(ctx, f.tutor, f.tutor.ID)
	if err != nil || len(slots) != 2 {
		t.Fatalf("slots = %+v, %v", slots, err)
	}
	for _, tc := range []struct {
		day, start, end string
		want            bool
	}{
		{"Tuesday", "11:00", "13:00", false},
		{"tuesday", "12:00", "13:00", true},
		{"monday", "10:00", "11:00", false},
	} {
		got, err := f.svc.IsAvailableAt(ctx, f.tutor, f.tutor.ID, tc.day, tc.start, tc.end)
		if err != nil || got != tc.want {
			t.Errorf("%s %s-%s = %v, %v", tc.day, tc.start, tc.end, got, err)
		}
	}
}
