package models

import (
	"strings"
	"time"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Terminal reports whether no further sessions may be generated.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled
}

// ScheduleSlot is one weekly occurrence: a weekday name and a local HH:MM.
type ScheduleSlot struct {
	Day  string `json:"day" validate:"required,weekday"`
	Time string `json:"time" validate:"required,clock"`
}

// Weekday maps Day to time.Weekday; ok is false for unknown names.
func (s ScheduleSlot) Weekday() (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s.Day))]
	return d, ok
}

// Clock parses Time into hour and minute.
func (s ScheduleSlot) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type Enrollment struct {
	ID             int64            `db:"id" json:"id"`
	StudentID      int64            `db:"student_id" json:"student_id"`
	TutorID        int64            `db:"tutor_id" json:"tutor_id"`
	Subject        string           `db:"subject" json:"subject"`
	Schedule       []ScheduleSlot   `db:"schedule" json:"schedule"`
	SessionMinutes int              `db:"session_minutes" json:"session_minutes"`
	StartDate      time.Time        `db:"start_date" json:"start_date"`
	EndDate        *time.Time       `db:"end_date" json:"end_date,omitempty"`
	HourlyRate     *float64         `db:"hourly_rate" json:"hourly_rate,omitempty"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// SessionDuration is the configured length of each generated session.
func (e Enrollment) SessionDuration() time.Duration {
	return time.Duration(e.SessionMinutes) * time.Minute
}

type EnrollmentFilter struct {
	StudentID *int64
	TutorID   *int64
	Status    EnrollmentStatus
}
