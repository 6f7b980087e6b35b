package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Spok95/tutorcenter/internal/models"
)

const studentCols = `id, student_id, full_name, grade, department_id, email, phone, parent_name,
	parent_phone, status, created_at`

func scanStudent(s scanner) (models.Student, error) {
	var st models.Student
	err := s.Scan(&st.ID, &st.StudentID, &st.FullName, &st.Grade, &st.DepartmentID, &st.Email,
		&st.Phone, &st.ParentName, &st.ParentPhone, &st.Status, &st.CreatedAt)
	return st, err
}

func (t *pgTx) CreateStudent(ctx context.Context, s *models.Student) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO students (student_id, full_name, grade, department_id, email, phone,
			parent_name, parent_phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, s.StudentID, s.FullName, s.Grade, s.DepartmentID, s.Email, s.Phone, s.ParentName,
		s.ParentPhone, s.Status).Scan(&s.ID, &s.CreatedAt)
	return mapErr("student", err)
}

func (t *pgTx) GetStudent(ctx context.Context, id int64) (*models.Student, error) {
	s, err := scanStudent(t.tx.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("student", id, err)
	}
	return &s, nil
}

func (t *pgTx) StudentCodeExists(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE student_id = $1)`, code).Scan(&ok)
	return ok, err
}

func (t *pgTx) UpdateStudent(ctx context.Context, s *models.Student) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE students SET full_name = $2, grade = $3, department_id = $4, email = $5, phone = $6,
			parent_name = $7, parent_phone = $8, status = $9
		WHERE id = $1
	`, s.ID, s.FullName, s.Grade, s.DepartmentID, s.Email, s.Phone, s.ParentName, s.ParentPhone, s.Status)
	if err != nil {
		return mapErr("student", err)
	}
	return requireRow(res, "student", s.ID)
}

func studentWhere(f models.StudentFilter) *where {
	w := &where{}
	if f.DepartmentID != nil {
		w.add("department_id = $%d", *f.DepartmentID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	return w
}

func (t *pgTx) ListStudents(ctx context.Context, f models.StudentFilter) ([]models.Student, error) {
	w := studentWhere(f)
	rows, err := t.tx.QueryContext(ctx, `SELECT `+studentCols+` FROM students`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanStudent)
}

func (t *pgTx) CountStudents(ctx context.Context, f models.StudentFilter) (int, error) {
	w := studentWhere(f)
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT count(*) FROM students`+w.String(), w.args...).Scan(&n)
	return n, err
}

// enrollments

const enrollmentCols = `id, student_id, tutor_id, subject, schedule, session_minutes, start_date,
	end_date, hourly_rate, status, created_at`

func scanEnrollment(s scanner) (models.Enrollment, error) {
	var (
		e   models.Enrollment
		raw []byte
	)
	if err := s.Scan(&e.ID, &e.StudentID, &e.TutorID, &e.Subject, &raw, &e.SessionMinutes,
		&e.StartDate, &e.EndDate, &e.HourlyRate, &e.Status, &e.CreatedAt); err != nil {
		return e, err
	}
	if err := json.Unmarshal(raw, &e.Schedule); err != nil {
		return e, fmt.Errorf("enrollment %d schedule: %w", e.ID, err)
	}
	return e, nil
}

func scheduleJSON(s []models.ScheduleSlot) (string, error) {
	if s == nil {
		s = []models.ScheduleSlot{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (t *pgTx) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	sched, err := scheduleJSON(e.Schedule)
	if err != nil {
		return err
	}
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO enrollments (student_id, tutor_id, subject, schedule, session_minutes,
			start_date, end_date, hourly_rate, status)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, e.StudentID, e.TutorID, e.Subject, sched, e.SessionMinutes, e.StartDate, e.EndDate,
		e.HourlyRate, e.Status).Scan(&e.ID, &e.CreatedAt)
	return mapErr("enrollment", err)
}

func (t *pgTx) GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error) {
	e, err := scanEnrollment(t.tx.QueryRowContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("enrollment", id, err)
	}
	return &e, nil
}

func (t *pgTx) UpdateEnrollment(ctx context.Context, e *models.Enrollment) error {
	sched, err := scheduleJSON(e.Schedule)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE enrollments SET subject = $2, schedule = $3::jsonb, session_minutes = $4,
			start_date = $5, end_date = $6, hourly_rate = $7, status = $8
		WHERE id = $1
	`, e.ID, e.Subject, sched, e.SessionMinutes, e.StartDate, e.EndDate, e.HourlyRate, e.Status)
	if err != nil {
		return mapErr("enrollment", err)
	}
	return requireRow(res, "enrollment", e.ID)
}

func (t *pgTx) ListEnrollments(ctx context.Context, f models.EnrollmentFilter) ([]models.Enrollment, error) {
	w := &where{}
	if f.StudentID != nil {
		w.add("student_id = $%d", *f.StudentID)
	}
	if f.TutorID != nil {
		w.add("tutor_id = $%d", *f.TutorID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEnrollment)
}
