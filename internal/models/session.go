package models

import "time"

type SessionStatus string

const (
	SessionScheduled   SessionStatus = "scheduled"
	SessionInProgress  SessionStatus = "in_progress"
	SessionCompleted   SessionStatus = "completed"
	SessionCancelled   SessionStatus = "cancelled"
	SessionRescheduled SessionStatus = "rescheduled"
)

// Live statuses take part in tutor double-booking checks.
func (s SessionStatus) Live() bool {
	return s == SessionScheduled || s == SessionInProgress
}

// LiveStatuses is the status set used for overlap queries.
var LiveStatuses = []SessionStatus{SessionScheduled, SessionInProgress}

// ComplianceWindow is how long after the scheduled end a tutor has to
// complete the post-class checklist.
const ComplianceWindow = 24 * time.Hour

type ClassSession struct {
	ID           int64  `db:"id" json:"id"`
	EnrollmentID *int64 `db:"enrollment_id" json:"enrollment_id,omitempty"`
	TutorID      int64  `db:"tutor_id" json:"tutor_id"`
	StudentID    *int64 `db:"student_id" json:"student_id,omitempty"`
	Subject      string `db:"subject" json:"subject"`
	// Date is the local calendar day; StartsAt/EndsAt fall on it.
	Date        time.Time     `db:"session_date" json:"date"`
	StartsAt    time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time     `db:"ends_at" json:"ends_at"`
	Status      SessionStatus `db:"status" json:"status"`
	ActualStart *time.Time    `db:"actual_start" json:"actual_start,omitempty"`
	ActualEnd   *time.Time    `db:"actual_end" json:"actual_end,omitempty"`
	Notes       string        `db:"notes" json:"notes,omitempty"`
	MeetingLink string        `db:"meeting_link" json:"meeting_link,omitempty"`

	AttendanceMarked    bool       `db:"attendance_marked" json:"attendance_marked"`
	AttendanceMarkedAt  *time.Time `db:"attendance_marked_at" json:"attendance_marked_at,omitempty"`
	FeedbackSubmitted   bool       `db:"feedback_submitted" json:"feedback_submitted"`
	FeedbackSubmittedAt *time.Time `db:"feedback_submitted_at" json:"feedback_submitted_at,omitempty"`
	RecordingUploaded   bool       `db:"recording_uploaded" json:"recording_uploaded"`
	RecordingUploadedAt *time.Time `db:"recording_uploaded_at" json:"recording_uploaded_at,omitempty"`
	MaterialsUploaded   bool       `db:"materials_uploaded" json:"materials_uploaded"`
	MaterialsUploadedAt *time.Time `db:"materials_uploaded_at" json:"materials_uploaded_at,omitempty"`
	RecordingPath       string     `db:"recording_path" json:"recording_path,omitempty"`
	MaterialPaths       []string   `db:"material_paths" json:"material_paths,omitempty"`
	Feedback            string     `db:"feedback" json:"feedback,omitempty"`
	Rating              *int       `db:"rating" json:"rating,omitempty"`
	ComplianceDeadline  time.Time  `db:"compliance_deadline" json:"compliance_deadline"`
	ComplianceAlerted   bool       `db:"compliance_alerted" json:"-"`

	// SlotStart is the generated weekly slot this row came from; it survives
	// reschedules so regeneration does not recreate a moved session.
	SlotStart *time.Time `db:"slot_start" json:"-"`

	TutorLate    bool      `db:"tutor_late" json:"tutor_late"`
	LateMinutes  int       `db:"late_minutes" json:"late_minutes"`
	ReminderSent bool      `db:"reminder_sent" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Duration is the scheduled length of the session.
func (s ClassSession) Duration() time.Duration { return s.EndsAt.Sub(s.StartsAt) }

// Hours is the scheduled length in hours, the unit payroll is paid in.
func (s ClassSession) Hours() float64 { return s.Duration().Hours() }

// Overlaps reports whether [start, end) intersects the session window.
func (s ClassSession) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && s.EndsAt.After(start)
}

func (s ClassSession) ComplianceChecklist() Checklist {
	return Checklist{
		AttendanceMarked:  s.AttendanceMarked,
		FeedbackSubmitted: s.FeedbackSubmitted,
		RecordingUploaded: s.RecordingUploaded,
		MaterialsUploaded: s.MaterialsUploaded,
	}
}

// ComplianceScore is the share of the four checklist items met, 0-100.
func (s ClassSession) ComplianceScore() float64 { return s.ComplianceChecklist().Score() }

func (s ClassSession) AllRequirementsMet() bool { return s.ComplianceChecklist().Met() == 4 }

// IsComplianceOverdue reports whether the deadline passed with items missing.
func (s ClassSession) IsComplianceOverdue(now time.Time) bool {
	if s.ComplianceDeadline.IsZero() || s.Status == SessionCancelled {
		return false
	}
	return now.After(s.ComplianceDeadline) && !s.AllRequirementsMet()
}

// Checklist is the post-class administrative checklist.
type Checklist struct {
	AttendanceMarked  bool `json:"attendance_marked"`
	FeedbackSubmitted bool `json:"feedback_submitted"`
	RecordingUploaded bool `json:"recording_uploaded"`
	MaterialsUploaded bool `json:"materials_uploaded"`
}

func (c Checklist) Met() int {
	n := 0
	for _, ok := range []bool{c.AttendanceMarked, c.FeedbackSubmitted, c.RecordingUploaded, c.MaterialsUploaded} {
		if ok {
			n++
		}
	}
	return n
}

func (c Checklist) Score() float64 { return float64(c.Met()) / 4 * 100 }

type SessionFilter struct {
	TutorID      *int64
	EnrollmentID *int64
	StudentID    *int64
	DepartmentID *int64 // tutor's department
	From         *time.Time
	To           *time.Time // exclusive, compared against starts_at
	Statuses     []SessionStatus
	Limit        int
}

// Missing names the checklist items still outstanding.
func (c Checklist) Missing() []string {
	var out []string
	if !c.AttendanceMarked {
		out = append(out, "attendance")
	}
	if !c.FeedbackSubmitted {
		out = append(out, "feedback")
	}
	if !c.RecordingUploaded {
		out = append(out, "recording")
	}
	if !c.MaterialsUploaded {
		out = append(out, "materials")
	}
	return out
}
