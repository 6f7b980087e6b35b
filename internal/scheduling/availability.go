package scheduling

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

type AvailabilityInput struct {
	Day   string `json:"day" validate:"required"`
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

// SetAvailability replaces the tutor's weekly availability. An empty list
// lifts every restriction. Slots on the same day must not overlap.
func (s *Service) SetAvailability(ctx context.Context, actor *models.User, tutorID int64, in []AvailabilityInput) ([]models.AvailabilitySlot, error) {
	slots := make([]models.AvailabilitySlot, 0, len(in))
	for i, a := range in {
		if err := validation.Struct(a); err != nil {
			return nil, err
		}
		slot := models.AvailabilitySlot{
			TutorID: tutorID,
			Day:     strings.ToLower(strings.TrimSpace(a.Day)),
			Start:   strings.TrimSpace(a.Start),
			End:     strings.TrimSpace(a.End),
		}
		if _, ok := slot.Weekday(); !ok {
			return nil, apperr.Invalid("day", "slot %d: unknown day %q", i+1, a.Day)
		}
		lo, hi, err := slot.Minutes()
		if err != nil {
			return nil, apperr.Invalid("start", "slot %d: %v", i+1, err)
		}
		if lo >= hi {
			return nil, apperr.Invalid("end", "slot %d: end must be after start", i+1)
		}
		slots = append(slots, slot)
	}
	if err := checkOverlap(slots); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		tutor, err := lockTutor(ctx, tx, tutorID)
		if err != nil {
			return err
		}
		if err := access.AuthorizeOwner(actor, tutor.ID, access.UpdateProfile,
			access.ManageDepartmentSchedule, tutor.DepartmentID); err != nil {
			return err
		}
		return tx.ReplaceAvailability(ctx, tutor.ID, slots)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("availability updated", zap.Int64("tutor_id", tutorID), zap.Int("slots", len(slots)))
	return slots, nil
}

func checkOverlap(slots []models.AvailabilitySlot) error {
	sorted := slices.Clone(slots)
	slices.SortFunc(sorted, func(a, b models.AvailabilitySlot) int {
		if c := strings.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		return strings.Compare(a.Start, b.Start)
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Day != cur.Day {
			continue
		}
		_, prevEnd, _ := prev.Minutes()
		curStart, _, _ := cur.Minutes()
		if curStart < prevEnd {
			return apperr.Invalid("availability", "%s %s-%s overlaps %s-%s",
				cur.Day, cur.Start, cur.End, prev.Start, prev.End)
		}
	}
	return nil
}

func (s *Service) GetAvailability(ctx context.Context, actor *models.User, tutorID int64) ([]models.AvailabilitySlot, error) {
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.AvailabilitySlot, error) {
		tutor, err := tx.GetUser(ctx, tutorID)
		if err != nil {
			return nil, err
		}
		if err := access.AuthorizeOwner(actor, tutor.ID, access.ViewOwnSchedule,
			access.ViewDepartmentClasses, tutor.DepartmentID); err != nil {
			return nil, err
		}
		return tx.ListAvailability(ctx, tutor.ID)
	})
}

// IsAvailableAt reports whether the tutor takes classes on day between
// start and end ("15:04").
func (s *Service) IsAvailableAt(ctx context.Context, actor *models.User, tutorID int64, day, start, end string) (bool, error) {
	w := models.AvailabilitySlot{Day: day, Start: start, End: end}
	wd, ok := w.Weekday()
	if !ok {
		return false, apperr.Invalid("day", "unknown day %q", day)
	}
	from, to, err := w.Minutes()
	if err != nil || from >= to {
		return false, apperr.Invalid("start", "bad window %s-%s", start, end)
	}
	slots, err := s.GetAvailability(ctx, actor, tutorID)
	if err != nil {
		return false, err
	}
	return models.AvailableOn(slots, wd, from, to), nil
}

// checkAvailable rejects a window outside the tutor's weekly availability.
func (s *Service) checkAvailable(ctx context.Context, tx store.Tx, tutorID int64, start, end time.Time) error {
	slots, err := tx.ListAvailability(ctx, tutorID)
	if err != nil {
		return err
	}
	if !models.AvailableAt(slots, start.In(s.loc), end.In(s.loc)) {
		return apperr.Invalid("start", "tutor %d is not available %s", tutorID, window(start.In(s.loc), end.In(s.loc)))
	}
	return nil
}

func window(start, end time.Time) string {
	return fmt.Sprintf("on %s %s-%s", strings.ToLower(start.Weekday().String()), start.Format("15:04"), end.Format("15:04"))
}
