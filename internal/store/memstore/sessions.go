package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

func (t *tx) CreateSession(_ context.Context, s *models.ClassSession) error {
	if err := t.checkSession(s); err != nil {
		return err
	}
	s.ID = t.d.id()
	now := t.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	t.d.sessions[s.ID] = cloneSession(*s)
	return nil
}

func (t *tx) InsertSessionIfAbsent(ctx context.Context, s *models.ClassSession) (bool, error) {
	if s.EnrollmentID != nil && s.SlotStart != nil {
		for _, o := range t.d.sessions {
			if o.EnrollmentID != nil && *o.EnrollmentID == *s.EnrollmentID &&
				o.SlotStart != nil && o.SlotStart.Equal(*s.SlotStart) {
				return false, nil
			}
		}
	}
	if err := t.CreateSession(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

func (t *tx) GetSession(_ context.Context, id int64) (*models.ClassSession, error) {
	s, ok := t.d.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	s = cloneSession(s)
	return &s, nil
}

func (t *tx) UpdateSession(_ context.Context, s *models.ClassSession) error {
	if _, ok := t.d.sessions[s.ID]; !ok {
		return apperr.NotFound("session", s.ID)
	}
	if err := t.checkSession(s); err != nil {
		return err
	}
	s.UpdatedAt = t.now()
	t.d.sessions[s.ID] = cloneSession(*s)
	return nil
}

// checkSession mirrors the table constraints: start before end and no
// overlapping live sessions per tutor.
func (t *tx) checkSession(s *models.ClassSession) error {
	if !s.StartsAt.Before(s.EndsAt) {
		return apperr.Invalid("end", "session must end after it starts")
	}
	if _, ok := t.d.users[s.TutorID]; !ok {
		return apperr.NotFound("tutor", s.TutorID)
	}
	if !s.Status.Live() {
		return nil
	}
	for _, o := range t.d.sessions {
		if o.ID == s.ID || o.TutorID != s.TutorID || !o.Status.Live() {
			continue
		}
		if o.Overlaps(s.StartsAt, s.EndsAt) {
			return apperr.Conflict("session", o.ID, "tutor %d already booked %s-%s",
				o.TutorID, o.StartsAt.Format(time.DateTime), o.EndsAt.Format(time.TimeOnly))
		}
	}
	return nil
}

func (t *tx) ListSessions(_ context.Context, f models.SessionFilter) ([]models.ClassSession, error) {
	out := make([]models.ClassSession, 0)
	for _, s := range t.d.sessions {
		if !t.matchSession(s, f) {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) matchSession(s models.ClassSession, f models.SessionFilter) bool {
	if f.TutorID != nil && s.TutorID != *f.TutorID {
		return false
	}
	if f.EnrollmentID != nil && (s.EnrollmentID == nil || *s.EnrollmentID != *f.EnrollmentID) {
		return false
	}
	if f.StudentID != nil && (s.StudentID == nil || *s.StudentID != *f.StudentID) {
		return false
	}
	if f.DepartmentID != nil {
		tutor, ok := t.d.users[s.TutorID]
		if !ok || !tutor.InDepartment(*f.DepartmentID) {
			return false
		}
	}
	if f.From != nil && s.StartsAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !s.StartsAt.Before(*f.To) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status) {
		return false
	}
	return true
}

func (t *tx) MarkReminded(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if s, ok := t.d.sessions[id]; ok {
			s.ReminderSent = true
			t.d.sessions[id] = s
		}
	}
	return nil
}

func (t *tx) MarkComplianceAlerted(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if s, ok := t.d.sessions[id]; ok {
			s.ComplianceAlerted = true
			t.d.sessions[id] = s
		}
	}
	return nil
}

func (t *tx) CreateLateArrival(_ context.Context, la *models.LateArrival) error {
	for _, o := range t.d.lateArrivals {
		if o.SessionID == la.SessionID {
			return apperr.Conflict("late_arrival", o.ID, "late arrival for session %d already recorded", la.SessionID)
		}
	}
	la.ID = t.d.id()
	if la.CreatedAt.IsZero() {
		la.CreatedAt = t.now()
	}
	t.d.lateArrivals[la.ID] = *la
	return nil
}

func (t *tx) ListLateArrivals(_ context.Context, tutorID int64, from, to time.Time) ([]models.LateArrival, error) {
	out := make([]models.LateArrival, 0)
	for _, la := range t.d.lateArrivals {
		if la.TutorID != tutorID || la.ScheduledTime.Before(from) || !la.ScheduledTime.Before(to) {
			continue
		}
		out = append(out, la)
	}
	sortByID(out, func(la models.LateArrival) int64 { return la.ID })
	return out, nil
}

// attendance

func (t *tx) UpsertAttendance(_ context.Context, a *models.Attendance) error {
	if _, ok := t.d.sessions[a.SessionID]; !ok {
		return apperr.NotFound("session", a.SessionID)
	}
	if _, ok := t.d.students[a.StudentID]; !ok {
		return apperr.NotFound("student", a.StudentID)
	}
	for id, o := range t.d.attendance {
		if o.SessionID == a.SessionID && o.StudentID == a.StudentID {
			a.ID = id
			t.d.attendance[id] = *a
			return nil
		}
	}
	a.ID = t.d.id()
	t.d.attendance[a.ID] = *a
	return nil
}

func (t *tx) ListAttendance(_ context.Context, sessionID int64) ([]models.Attendance, error) {
	out := make([]models.Attendance, 0)
	for _, a := range t.d.attendance {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sortByID(out, func(a models.Attendance) int64 { return a.ID })
	return out, nil
}

func cloneSession(s models.ClassSession) models.ClassSession {
	s.MaterialPaths = slices.Clone(s.MaterialPaths)
	return s
}

// availability

func (t *tx) ListAvailability(_ context.Context, tutorID int64) ([]models.AvailabilitySlot, error) {
	return slices.Clone(t.d.availability[tutorID]), nil
}

func (t *tx) ReplaceAvailability(_ context.Context, tutorID int64, slots []models.AvailabilitySlot) error {
	if _, ok := t.d.users[tutorID]; !ok {
		return apperr.NotFound("user", tutorID)
	}
	out := make([]models.AvailabilitySlot, len(slots))
	for i, a := range slots {
		a.ID = t.d.id()
		a.TutorID = tutorID
		out[i] = a
	}
	if len(out) == 0 {
		delete(t.d.availability, tutorID)
		return nil
	}
	t.d.availability[tutorID] = out
	return nil
}
