package attendance

import (
	"context"
	"time"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/scheduling"
	"github.com/Spok95/tutorcenter/internal/store"
)

// Compliance is the checklist view of one session.
type Compliance struct {
	SessionID int64            `json:"session_id"`
	TutorID   int64            `json:"tutor_id"`
	Subject   string           `json:"subject"`
	StartsAt  time.Time        `json:"starts_at"`
	Checklist models.Checklist `json:"checklist"`
	Score     float64          `json:"score"`
	AllMet    bool             `json:"all_met"`
	Deadline  time.Time        `json:"deadline"`
	Overdue   bool             `json:"overdue"`
}

func ComplianceOf(sess models.ClassSession, now time.Time) Compliance {
	return Compliance{
		SessionID: sess.ID,
		TutorID:   sess.TutorID,
		Subject:   sess.Subject,
		StartsAt:  sess.StartsAt,
		Checklist: sess.ComplianceChecklist(),
		Score:     sess.ComplianceScore(),
		AllMet:    sess.AllRequirementsMet(),
		Deadline:  sess.ComplianceDeadline,
		Overdue:   sess.IsComplianceOverdue(now),
	}
}

func (s *Service) SessionCompliance(ctx context.Context, actor *models.User, id int64) (*Compliance, error) {
	sess, err := store.Read(ctx, s.store, func(tx store.Tx) (*models.ClassSession, error) {
		return loadForViewer(ctx, tx, actor, id)
	})
	if err != nil {
		return nil, err
	}
	c := ComplianceOf(*sess, s.now())
	return &c, nil
}

// RateFilter selects completed sessions by start time in [From, To).
type RateFilter struct {
	TutorID      *int64
	DepartmentID *int64
	From         time.Time
	To           time.Time
}

func (f RateFilter) sessions() (models.SessionFilter, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return models.SessionFilter{}, apperr.Invalid("to", "period end must be after its start")
	}
	sf := models.SessionFilter{
		TutorID:      f.TutorID,
		DepartmentID: f.DepartmentID,
		Statuses:     []models.SessionStatus{models.SessionCompleted},
	}
	if !f.From.IsZero() {
		from := f.From
		sf.From = &from
	}
	if !f.To.IsZero() {
		to := f.To
		sf.To = &to
	}
	return sf, nil
}

// ListCompliance returns the checklist of every completed session in the
// period visible to actor.
func (s *Service) ListCompliance(ctx context.Context, actor *models.User, f RateFilter) ([]Compliance, error) {
	sessions, err := s.completed(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Compliance, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, ComplianceOf(sess, now))
	}
	return out, nil
}

// ComplianceRate is the percentage of completed sessions in the period
// with all four items met, rounded to one decimal. A period without
// completed sessions counts as fully compliant.
func (s *Service) ComplianceRate(ctx context.Context, actor *models.User, f RateFilter) (float64, error) {
	sessions, err := s.completed(ctx, actor, f)
	if err != nil {
		return 0, err
	}
	return Rate(sessions), nil
}

func Rate(completed []models.ClassSession) float64 {
	if len(completed) == 0 {
		return 100
	}
	ok := 0
	for _, sess := range completed {
		if sess.AllRequirementsMet() {
			ok++
		}
	}
	return models.Round(float64(ok)/float64(len(completed))*100, 1)
}

// RateOf is Rate over checklist views.
func RateOf(items []Compliance) float64 {
	if len(items) == 0 {
		return 100
	}
	ok := 0
	for _, c := range items {
		if c.AllMet {
			ok++
		}
	}
	return models.Round(float64(ok)/float64(len(items))*100, 1)
}

// OverdueSessions lists completed sessions whose deadline passed before
// now with items still missing.
func (s *Service) OverdueSessions(ctx context.Context, actor *models.User, now time.Time) ([]models.ClassSession, error) {
	f, err := scheduling.ScopeSessions(actor, models.SessionFilter{Statuses: []models.SessionStatus{models.SessionCompleted}})
	if err != nil {
		return nil, err
	}
	sessions, err := store.Read(ctx, s.store, func(tx store.Tx) ([]models.ClassSession, error) {
		return tx.ListSessions(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return Overdue(sessions, now), nil
}

func Overdue(sessions []models.ClassSession, now time.Time) []models.ClassSession {
	var out []models.ClassSession
	for _, sess := range sessions {
		if sess.Status == models.SessionCompleted && sess.IsComplianceOverdue(now) {
			out = append(out, sess)
		}
	}
	return out
}

func (s *Service) completed(ctx context.Context, actor *models.User, f RateFilter) ([]models.ClassSession, error) {
	sf, err := f.sessions()
	if err != nil {
		return nil, err
	}
	sf, err = scheduling.ScopeSessions(actor, sf)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.ClassSession, error) {
		return tx.ListSessions(ctx, sf)
	})
}
