package scheduling

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/Spok95/tutorcenter/internal/models"
)

const (
	// EarlyStartWindow is how long before the scheduled start a session may begin.
	EarlyStartWindow = 15 * time.Minute
	// LateGrace is how late a tutor may start before a LateArrival is recorded.
	LateGrace = 5 * time.Minute
	// DefaultGenerationWeeks bounds generation for open-ended enrollments.
	DefaultGenerationWeeks = 12
)

// Slot is one concrete occurrence of an enrollment's weekly pattern.
type Slot struct {
	Date  time.Time // calendar day, midnight UTC
	Start time.Time
	End   time.Time
}

// Window returns the inclusive date range sessions are generated for.
// An enrollment end date always bounds the range; weeks only applies to
// open-ended enrollments, defaulting to 12 when not positive.
func Window(e models.Enrollment, weeks int) (from, to time.Time) {
	from = dateOf(e.StartDate)
	switch {
	case e.EndDate != nil:
		to = dateOf(*e.EndDate)
	case weeks > 0:
		to = from.AddDate(0, 0, 7*weeks)
	default:
		to = from.AddDate(0, 0, 7*DefaultGenerationWeeks)
	}
	return from, to
}

// ExpandSchedule walks every date in [from, to] and emits a slot for each
// schedule entry whose weekday matches. Times are wall-clock in loc.
// Entries repeating a (weekday, time) pair yield one slot.
func ExpandSchedule(schedule []models.ScheduleSlot, d time.Duration, from, to time.Time, loc *time.Location) ([]Slot, error) {
	if d <= 0 {
		return nil, fmt.Errorf("session duration must be positive, got %s", d)
	}
	type entry struct {
		day          time.Weekday
		hour, minute int
	}
	entries := make([]entry, 0, len(schedule))
	for i, s := range schedule {
		wd, ok := s.Weekday()
		if !ok {
			return nil, fmt.Errorf("schedule[%d]: unknown day %q", i, s.Day)
		}
		h, m, err := s.Clock()
		if err != nil {
			return nil, fmt.Errorf("schedule[%d]: bad time %q", i, s.Time)
		}
		if e := (entry{wd, h, m}); !slices.Contains(entries, e) {
			entries = append(entries, e)
		}
	}

	var out []Slot
	for day := dateOf(from); !day.After(dateOf(to)); day = day.AddDate(0, 0, 1) {
		for _, e := range entries {
			if day.Weekday() != e.day {
				continue
			}
			start := At(day, e.hour, e.minute, loc)
			out = append(out, Slot{Date: day, Start: start, End: start.Add(d)})
		}
	}
	return out, nil
}

// FindConflict returns the first live session overlapping [start, end),
// ignoring the session with id exclude.
func FindConflict(existing []models.ClassSession, start, end time.Time, exclude int64) *models.ClassSession {
	for i := range existing {
		s := &existing[i]
		if s.ID == exclude && exclude != 0 {
			continue
		}
		if s.Status.Live() && s.Overlaps(start, end) {
			return s
		}
	}
	return nil
}

// LateMinutes is the delay rounded to the nearest minute.
func LateMinutes(scheduled, actual time.Time) int {
	return int(math.Round(actual.Sub(scheduled).Minutes()))
}

// LatePenalty applies the tier table to the hourly rate: up to 10 minutes
// costs 10%, up to 20 minutes 25%, anything longer 50%.
func LatePenalty(rate float64, minutes int) float64 {
	var pct float64
	switch {
	case minutes <= 0:
		return 0
	case minutes <= 10:
		pct = 0.10
	case minutes <= 20:
		pct = 0.25
	default:
		pct = 0.50
	}
	return models.Money(rate * pct)
}

var transitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionScheduled: {
		models.SessionInProgress, models.SessionCompleted, models.SessionCancelled, models.SessionRescheduled,
	},
	models.SessionInProgress:  {models.SessionCompleted, models.SessionCancelled},
	models.SessionRescheduled: {models.SessionScheduled},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to models.SessionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// At is the instant hour:minute on day's calendar date in loc.
func At(day time.Time, hour, minute int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// dateOf drops the clock, keeping the calendar date as midnight UTC, the
// form DATE columns round-trip as.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseWindow turns a YYYY-MM-DD date and HH:MM times into instants in loc.
func parseWindow(date, start, end string, loc *time.Location) (day, from, to time.Time, err error) {
	day, err = time.Parse(time.DateOnly, date)
	if err != nil {
		return day, from, to, fmt.Errorf("date: %w", err)
	}
	st, err := time.Parse("15:04", start)
	if err != nil {
		return day, from, to, fmt.Errorf("start: %w", err)
	}
	et, err := time.Parse("15:04", end)
	if err != nil {
		return day, from, to, fmt.Errorf("end: %w", err)
	}
	from = At(day, st.Hour(), st.Minute(), loc)
	to = At(day, et.Hour(), et.Minute(), loc)
	return day, from, to, nil
}
