package scheduling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
)

// SlotConflict is a generated slot that was not booked because the tutor
// already had a live session in that window.
type SlotConflict struct {
	Date         time.Time      `json:"date"`
	StartsAt     time.Time      `json:"starts_at"`
	EndsAt       time.Time      `json:"ends_at"`
	ConflictWith ConflictWindow `json:"conflict_with"`
}

// SlotWindow is a generated slot left unbooked.
type SlotWindow struct {
	Date     time.Time `json:"date"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type GenerateResult struct {
	Created   int            `json:"created"`
	Skipped   int            `json:"skipped"`
	Conflicts []SlotConflict `json:"conflicts,omitempty"`

	// Unavailable lists slots outside the tutor's weekly availability.
	Unavailable []SlotWindow `json:"unavailable,omitempty"`
}

// GenerateFromEnrollment expands the enrollment's weekly pattern into
// sessions. Re-running it creates nothing new: slots the enrollment already
// has a session for are skipped, even if that session was moved since.
// Slots clashing with another booking of the tutor, or outside their
// availability, are reported, not booked.
func (s *Service) GenerateFromEnrollment(ctx context.Context, actor *models.User, enrollmentID int64, weeks int) (*GenerateResult, error) {
	if weeks < 0 {
		return nil, apperr.Invalid("weeks", "weeks must not be negative")
	}
	res := &GenerateResult{}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		e, err := tx.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		tutor, err := lockTutor(ctx, tx, e.TutorID)
		if err != nil {
			return err
		}
		if err := access.AuthorizeAny(actor, access.Scope(tutor.DepartmentID),
			access.ManageEnrollments, access.ManageDepartmentSchedule); err != nil {
			return err
		}
		if e.Status != models.EnrollmentActive {
			return apperr.State("enrollment", "enrollment %d is %s", e.ID, e.Status)
		}

		from, to := Window(*e, weeks)
		slots, err := ExpandSchedule(e.Schedule, e.SessionDuration(), from, to, s.loc)
		if err != nil {
			return apperr.Validation(err.Error())
		}
		if len(slots) == 0 {
			return nil
		}

		own, err := tx.ListSessions(ctx, models.SessionFilter{EnrollmentID: &e.ID})
		if err != nil {
			return err
		}
		live, err := tutorSessions(ctx, tx, tutor.ID, slots[0].Start, slots[len(slots)-1].End)
		if err != nil {
			return err
		}
		avail, err := tx.ListAvailability(ctx, tutor.ID)
		if err != nil {
			return err
		}

		for _, sl := range slots {
			if hasSlot(own, sl.Start) {
				res.Skipped++
				continue
			}
			if !models.AvailableAt(avail, sl.Start.In(s.loc), sl.End.In(s.loc)) {
				res.Unavailable = append(res.Unavailable, SlotWindow{Date: sl.Date, StartsAt: sl.Start, EndsAt: sl.End})
				continue
			}
			if c := FindConflict(live, sl.Start, sl.End, 0); c != nil {
				metrics.ConflictsRejected.Inc()
				res.Conflicts = append(res.Conflicts, SlotConflict{
					Date: sl.Date, StartsAt: sl.Start, EndsAt: sl.End,
					ConflictWith: ConflictWindow{SessionID: c.ID, StartsAt: c.StartsAt, EndsAt: c.EndsAt},
				})
				continue
			}
			slotStart := sl.Start
			sess := &models.ClassSession{
				EnrollmentID:       &e.ID,
				TutorID:            tutor.ID,
				StudentID:          &e.StudentID,
				Subject:            e.Subject,
				Date:               sl.Date,
				StartsAt:           sl.Start,
				EndsAt:             sl.End,
				Status:             models.SessionScheduled,
				ComplianceDeadline: sl.End.Add(models.ComplianceWindow),
				SlotStart:          &slotStart,
			}
			created, err := tx.InsertSessionIfAbsent(ctx, sess)
			if err != nil {
				return err
			}
			if !created {
				res.Skipped++
				continue
			}
			res.Created++
			live = append(live, *sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsCreated.WithLabelValues("enrollment").Add(float64(res.Created))
	logging.FromContext(ctx, s.log).Info("sessions generated",
		zap.Int64("enrollment_id", enrollmentID), zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped), zap.Int("conflicts", len(res.Conflicts)),
		zap.Int("unavailable", len(res.Unavailable)))
	return res, nil
}

// hasSlot reports whether the enrollment already has a session generated
// for, or originally scheduled at, start.
func hasSlot(own []models.ClassSession, start time.Time) bool {
	for _, o := range own {
		if o.SlotStart != nil && o.SlotStart.Equal(start) {
			return true
		}
		if o.SlotStart == nil && o.StartsAt.Equal(start) {
			return true
		}
	}
	return false
}
