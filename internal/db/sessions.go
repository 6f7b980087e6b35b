package db

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/Spok95/tutorcenter/internal/models"
)

const sessionCols = `id, enrollment_id, tutor_id, student_id, subject, session_date, starts_at,
	ends_at, status, actual_start, actual_end, notes, meeting_link, attendance_marked,
	attendance_marked_at, feedback_submitted, feedback_submitted_at, recording_uploaded,
	recording_uploaded_at, materials_uploaded, materials_uploaded_at, recording_path,
	material_paths, feedback, rating, compliance_deadline, compliance_alerted, slot_start,
	tutor_late, late_minutes, reminder_sent, created_at, updated_at`

func scanSession(s scanner) (models.ClassSession, error) {
	var c models.ClassSession
	err := s.Scan(&c.ID, &c.EnrollmentID, &c.TutorID, &c.StudentID, &c.Subject, &c.Date,
		&c.StartsAt, &c.EndsAt, &c.Status, &c.ActualStart, &c.ActualEnd, &c.Notes, &c.MeetingLink,
		&c.AttendanceMarked, &c.AttendanceMarkedAt, &c.FeedbackSubmitted, &c.FeedbackSubmittedAt,
		&c.RecordingUploaded, &c.RecordingUploadedAt, &c.MaterialsUploaded, &c.MaterialsUploadedAt,
		&c.RecordingPath, pq.Array(&c.MaterialPaths), &c.Feedback, &c.Rating, &c.ComplianceDeadline,
		&c.ComplianceAlerted, &c.SlotStart, &c.TutorLate, &c.LateMinutes, &c.ReminderSent,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const insertSession = `
	INSERT INTO class_sessions (enrollment_id, tutor_id, student_id, subject, session_date,
		starts_at, ends_at, status, notes, meeting_link, compliance_deadline, slot_start)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func sessionArgs(s *models.ClassSession) []any {
	return []any{s.EnrollmentID, s.TutorID, s.StudentID, s.Subject, s.Date, s.StartsAt, s.EndsAt,
		s.Status, s.Notes, s.MeetingLink, s.ComplianceDeadline, s.SlotStart}
}

func (t *pgTx) CreateSession(ctx context.Context, s *models.ClassSession) error {
	err := t.tx.QueryRowContext(ctx, insertSession+` RETURNING id, created_at, updated_at`,
		sessionArgs(s)...).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapErr("session", err)
}

// InsertSessionIfAbsent relies on the (enrollment_id, slot_start) unique
// index; conflicting rows are ignored, the same way generated slots are
// re-inserted idempotently.
func (t *pgTx) InsertSessionIfAbsent(ctx context.Context, s *models.ClassSession) (bool, error) {
	rows, err := t.tx.QueryContext(ctx, insertSession+`
		ON CONFLICT (enrollment_id, slot_start) WHERE enrollment_id IS NOT NULL AND slot_start IS NOT NULL
		DO NOTHING
		RETURNING id, created_at, updated_at`, sessionArgs(s)...)
	if err != nil {
		return false, mapErr("session", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return false, mapErr("session", rows.Err())
	}
	if err := rows.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return false, err
	}
	return true, rows.Close()
}

func (t *pgTx) GetSession(ctx context.Context, id int64) (*models.ClassSession, error) {
	s, err := scanSession(t.tx.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM class_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("session", id, err)
	}
	return &s, nil
}

func (t *pgTx) UpdateSession(ctx context.Context, s *models.ClassSession) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE class_sessions SET subject = $2, session_date = $3, starts_at = $4, ends_at = $5,
			status = $6, actual_start = $7, actual_end = $8, notes = $9, meeting_link = $10,
			attendance_marked = $11, attendance_marked_at = $12, feedback_submitted = $13,
			feedback_submitted_at = $14, recording_uploaded = $15, recording_uploaded_at = $16,
			materials_uploaded = $17, materials_uploaded_at = $18, recording_path = $19,
			material_paths = $20, feedback = $21, rating = $22, compliance_deadline = $23,
			tutor_late = $24, late_minutes = $25, student_id = $26, reminder_sent = $27,
			compliance_alerted = $28, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Subject, s.Date, s.StartsAt, s.EndsAt, s.Status, s.ActualStart, s.ActualEnd,
		s.Notes, s.MeetingLink, s.AttendanceMarked, s.AttendanceMarkedAt, s.FeedbackSubmitted,
		s.FeedbackSubmittedAt, s.RecordingUploaded, s.RecordingUploadedAt, s.MaterialsUploaded,
		s.MaterialsUploadedAt, s.RecordingPath, pq.Array(s.MaterialPaths), s.Feedback, s.Rating,
		s.ComplianceDeadline, s.TutorLate, s.LateMinutes, s.StudentID, s.ReminderSent,
		s.ComplianceAlerted)
	if err != nil {
		return mapErr("session", err)
	}
	return requireRow(res, "session", s.ID)
}

func (t *pgTx) ListSessions(ctx context.Context, f models.SessionFilter) ([]models.ClassSession, error) {
	w := &where{}
	if f.TutorID != nil {
		w.add("s.tutor_id = $%d", *f.TutorID)
	}
	if f.EnrollmentID != nil {
		w.add("s.enrollment_id = $%d", *f.EnrollmentID)
	}
	if f.StudentID != nil {
		w.add("s.student_id = $%d", *f.StudentID)
	}
	if f.DepartmentID != nil {
		w.add("s.tutor_id IN (SELECT id FROM users WHERE department_id = $%d)", *f.DepartmentID)
	}
	if f.From != nil {
		w.add("s.starts_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("s.starts_at < $%d", *f.To)
	}
	if len(f.Statuses) > 0 {
		st := make([]string, len(f.Statuses))
		for i, v := range f.Statuses {
			st[i] = string(v)
		}
		w.add("s.status = ANY($%d)", pq.Array(st))
	}
	q := `SELECT ` + prefixCols("s.", sessionCols) + ` FROM class_sessions s` + w.String() + ` ORDER BY s.starts_at, s.id`
	if f.Limit > 0 {
		q += ` LIMIT ` + w.next(f.Limit)
	}
	rows, err := t.tx.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSession)
}

func (t *pgTx) MarkReminded(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE class_sessions SET reminder_sent = TRUE, updated_at = now()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}

func (t *pgTx) MarkComplianceAlerted(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE class_sessions SET compliance_alerted = TRUE, updated_at = now()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}

// late arrivals

func (t *pgTx) CreateLateArrival(ctx context.Context, la *models.LateArrival) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO late_arrivals (tutor_id, session_id, scheduled_time, actual_arrival,
			late_minutes, hourly_rate, penalty_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, la.TutorID, la.SessionID, la.ScheduledTime, la.ActualArrival, la.LateMinutes,
		la.HourlyRate, la.PenaltyAmount).Scan(&la.ID, &la.CreatedAt)
	return mapErr("late_arrival", err)
}

func (t *pgTx) ListLateArrivals(ctx context.Context, tutorID int64, from, to time.Time) ([]models.LateArrival, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, tutor_id, session_id, scheduled_time, actual_arrival, late_minutes,
			hourly_rate, penalty_amount, created_at
		FROM late_arrivals
		WHERE tutor_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY id
	`, tutorID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (models.LateArrival, error) {
		var la models.LateArrival
		err := s.Scan(&la.ID, &la.TutorID, &la.SessionID, &la.ScheduledTime, &la.ActualArrival,
			&la.LateMinutes, &la.HourlyRate, &la.PenaltyAmount, &la.CreatedAt)
		return la, err
	})
}

// attendance

func (t *pgTx) UpsertAttendance(ctx context.Context, a *models.Attendance) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO attendance (session_id, student_id, status, reason, arrival_time,
			departure_time, late_minutes, marked_by, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status, reason = EXCLUDED.reason,
			arrival_time = EXCLUDED.arrival_time, departure_time = EXCLUDED.departure_time,
			late_minutes = EXCLUDED.late_minutes, marked_by = EXCLUDED.marked_by,
			marked_at = EXCLUDED.marked_at
		RETURNING id
	`, a.SessionID, a.StudentID, a.Status, a.Reason, a.ArrivalTime, a.DepartureTime,
		a.LateMinutes, a.MarkedBy, a.MarkedAt).Scan(&a.ID)
	return mapErr("attendance", err)
}

func (t *pgTx) ListAttendance(ctx context.Context, sessionID int64) ([]models.Attendance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, session_id, student_id, status, reason, arrival_time, departure_time,
			late_minutes, marked_by, marked_at
		FROM attendance WHERE session_id = $1 ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (models.Attendance, error) {
		var a models.Attendance
		err := s.Scan(&a.ID, &a.SessionID, &a.StudentID, &a.Status, &a.Reason, &a.ArrivalTime,
			&a.DepartureTime, &a.LateMinutes, &a.MarkedBy, &a.MarkedAt)
		return a, err
	})
}
