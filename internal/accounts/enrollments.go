package accounts

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

const defaultSessionMinutes = 60

type EnrollInput struct {
	StudentID      int64                 `json:"student_id" validate:"required"`
	TutorID        int64                 `json:"tutor_id" validate:"required"`
	Subject        string                `json:"subject" validate:"required,max=100"`
	Schedule       []models.ScheduleSlot `json:"schedule" validate:"required,min=1,max=14,dive"`
	SessionMinutes int                   `json:"session_minutes" validate:"omitempty,min=15,max=480"`
	StartDate      string                `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string                `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	HourlyRate     *float64              `json:"hourly_rate" validate:"omitempty,gt=0"`
}

func (in EnrollInput) dates() (start time.Time, end *time.Time, err error) {
	if start, err = time.Parse(time.DateOnly, in.StartDate); err != nil {
		return start, nil, apperr.Invalid("start_date", "bad start date %q", in.StartDate)
	}
	if in.EndDate == "" {
		return start, nil, nil
	}
	e, err := time.Parse(time.DateOnly, in.EndDate)
	if err != nil {
		return start, nil, apperr.Invalid("end_date", "bad end date %q", in.EndDate)
	}
	if e.Before(start) {
		return start, nil, apperr.Invalid("end_date", "end date is before start date")
	}
	return start, &e, nil
}

func normalizeSchedule(in []models.ScheduleSlot) []models.ScheduleSlot {
	out := make([]models.ScheduleSlot, len(in))
	for i, s := range in {
		out[i] = models.ScheduleSlot{Day: strings.ToLower(strings.TrimSpace(s.Day)), Time: strings.TrimSpace(s.Time)}
	}
	return out
}

// Enroll pairs an active student with an active tutor on a weekly
// schedule. Sessions are generated separately.
func (s *Service) Enroll(ctx context.Context, actor *models.User, in EnrollInput) (*models.Enrollment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	start, end, err := in.dates()
	if err != nil {
		return nil, err
	}
	if in.SessionMinutes == 0 {
		in.SessionMinutes = defaultSessionMinutes
	}
	e := &models.Enrollment{
		StudentID:      in.StudentID,
		TutorID:        in.TutorID,
		Subject:        strings.TrimSpace(in.Subject),
		Schedule:       normalizeSchedule(in.Schedule),
		SessionMinutes: in.SessionMinutes,
		StartDate:      start,
		EndDate:        end,
		HourlyRate:     in.HourlyRate,
		Status:         models.EnrollmentActive,
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		st, err := tx.GetStudent(ctx, in.StudentID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ManageEnrollments, access.Scope(st.DepartmentID)); err != nil {
			return err
		}
		if st.Status != models.StudentActive {
			return apperr.Invalid("student_id", "student %s is not active", st.StudentID)
		}
		tutor, err := tx.GetUser(ctx, in.TutorID)
		if err != nil {
			return err
		}
		switch {
		case tutor.Role != models.RoleTutor:
			return apperr.Invalid("tutor_id", "user %d is not a tutor", tutor.ID)
		case !tutor.IsActive || !tutor.IsApproved:
			return apperr.Invalid("tutor_id", "tutor %s is not active", tutor.Username)
		}
		return tx.CreateEnrollment(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("enrollment created",
		zap.Int64("enrollment_id", e.ID), zap.Int64("student_id", e.StudentID), zap.Int64("tutor_id", e.TutorID))
	return e, nil
}

type UpdateEnrollmentInput struct {
	Subject        *string               `json:"subject" validate:"omitempty,max=100"`
	Schedule       []models.ScheduleSlot `json:"schedule" validate:"omitempty,max=14,dive"`
	SessionMinutes *int                  `json:"session_minutes" validate:"omitempty,min=15,max=480"`
	EndDate        *string               `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	HourlyRate     *float64              `json:"hourly_rate" validate:"omitempty,gt=0"`
	// Status may pause or resume; ending goes through EndEnrollment.
	Status *string `json:"status" validate:"omitempty,oneof=active paused"`
}

// UpdateEnrollment changes future generation only; sessions already
// booked keep their times.
func (s *Service) UpdateEnrollment(ctx context.Context, actor *models.User, id int64, in UpdateEnrollmentInput) (*models.Enrollment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	e, err := s.updateEnrollment(ctx, actor, id, func(_ store.Tx, e *models.Enrollment) error {
		if e.Status.Terminal() {
			return apperr.State("enrollment", "enrollment %d is %s", e.ID, e.Status)
		}
		if in.Subject != nil {
			e.Subject = strings.TrimSpace(*in.Subject)
		}
		if len(in.Schedule) > 0 {
			e.Schedule = normalizeSchedule(in.Schedule)
		}
		if in.SessionMinutes != nil {
			e.SessionMinutes = *in.SessionMinutes
		}
		if in.EndDate != nil {
			end, err := time.Parse(time.DateOnly, *in.EndDate)
			if err != nil {
				return apperr.Invalid("end_date", "bad end date %q", *in.EndDate)
			}
			if end.Before(e.StartDate) {
				return apperr.Invalid("end_date", "end date is before start date")
			}
			e.EndDate = &end
		}
		if in.HourlyRate != nil {
			e.HourlyRate = in.HourlyRate
		}
		if in.Status != nil {
			e.Status = models.EnrollmentStatus(*in.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("enrollment updated", zap.Int64("enrollment_id", e.ID))
	return e, nil
}

// EndEnrollment closes the enrollment as completed or cancelled and
// cancels its sessions that have not started yet.
func (s *Service) EndEnrollment(ctx context.Context, actor *models.User, id int64, status models.EnrollmentStatus) (*models.Enrollment, int, error) {
	if !status.Terminal() {
		return nil, 0, apperr.Invalid("status", "status must be completed or cancelled")
	}
	now := s.now()
	cancelled := 0
	e, err := s.updateEnrollment(ctx, actor, id, func(tx store.Tx, e *models.Enrollment) error {
		if e.Status.Terminal() {
			return apperr.State("enrollment", "enrollment %d is already %s", e.ID, e.Status)
		}
		e.Status = status
		sessions, err := tx.ListSessions(ctx, models.SessionFilter{
			EnrollmentID: &e.ID,
			From:         &now,
			Statuses:     []models.SessionStatus{models.SessionScheduled},
		})
		if err != nil {
			return err
		}
		for i := range sessions {
			sess := &sessions[i]
			sess.Status = models.SessionCancelled
			sess.Notes = strings.TrimSpace(sess.Notes + "\nCancelled: enrollment " + string(status))
			if err := tx.UpdateSession(ctx, sess); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if cancelled > 0 {
		metrics.SessionTransitions.WithLabelValues(string(models.SessionCancelled)).Add(float64(cancelled))
	}
	logging.FromContext(ctx, s.log).Info("enrollment ended", zap.Int64("enrollment_id", e.ID),
		zap.String("status", string(status)), zap.Int("sessions_cancelled", cancelled))
	return e, cancelled, nil
}

func (s *Service) updateEnrollment(ctx context.Context, actor *models.User, id int64, apply func(store.Tx, *models.Enrollment) error) (*models.Enrollment, error) {
	var e *models.Enrollment
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if e, err = tx.GetEnrollment(ctx, id); err != nil {
			return err
		}
		st, err := tx.GetStudent(ctx, e.StudentID)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.ManageEnrollments, access.Scope(st.DepartmentID)); err != nil {
			return err
		}
		if err := apply(tx, e); err != nil {
			return err
		}
		return tx.UpdateEnrollment(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEnrollments shows a tutor their own enrollments; managers filter freely.
func (s *Service) ListEnrollments(ctx context.Context, actor *models.User, f models.EnrollmentFilter) ([]models.Enrollment, error) {
	if !access.Allowed(actor, access.ManageEnrollments) {
		if err := access.Authorize(actor, access.ViewOwnStudents, nil); err != nil {
			return nil, err
		}
		id := actor.ID
		f.TutorID = &id
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.Enrollment, error) {
		es, err := tx.ListEnrollments(ctx, f)
		if err != nil || access.IsStaffWide(actor) || f.TutorID != nil && *f.TutorID == actor.ID {
			return es, err
		}
		// coordinators see their department's students only
		out := es[:0]
		for _, e := range es {
			st, err := tx.GetStudent(ctx, e.StudentID)
			if err != nil {
				return nil, err
			}
			if st.DepartmentID != nil && access.CanAccessDepartment(actor, *st.DepartmentID) {
				out = append(out, e)
			}
		}
		return out, nil
	})
}
