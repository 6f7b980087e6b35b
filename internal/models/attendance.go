package models

import "time"

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

type Attendance struct {
	ID            int64            `db:"id" json:"id"`
	SessionID     int64            `db:"session_id" json:"session_id"`
	StudentID     int64            `db:"student_id" json:"student_id"`
	Status        AttendanceStatus `db:"status" json:"status"`
	Reason        string           `db:"reason" json:"reason,omitempty"`
	ArrivalTime   *time.Time       `db:"arrival_time" json:"arrival_time,omitempty"`
	DepartureTime *time.Time       `db:"departure_time" json:"departure_time,omitempty"`
	LateMinutes   int              `db:"late_minutes" json:"late_minutes"`
	MarkedBy      int64            `db:"marked_by" json:"marked_by"`
	MarkedAt      time.Time        `db:"marked_at" json:"marked_at"`
}

// LateArrival records a tutor starting a session after the grace period.
type LateArrival struct {
	ID            int64     `db:"id" json:"id"`
	TutorID       int64     `db:"tutor_id" json:"tutor_id"`
	SessionID     int64     `db:"session_id" json:"session_id"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	ActualArrival time.Time `db:"actual_arrival" json:"actual_arrival"`
	LateMinutes   int       `db:"late_minutes" json:"late_minutes"`
	HourlyRate    float64   `db:"hourly_rate" json:"hourly_rate"`
	PenaltyAmount float64   `db:"penalty_amount" json:"penalty_amount"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
