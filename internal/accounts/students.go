package accounts

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/access"
	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/store"
	"github.com/Spok95/tutorcenter/internal/validation"
)

type StudentInput struct {
	FullName     string `json:"full_name" validate:"required,max=200"`
	Grade        string `json:"grade" validate:"required,max=20"`
	DepartmentID *int64 `json:"department_id"`
	Email        string `json:"email" validate:"omitempty,email,max=120"`
	Phone        string `json:"phone" validate:"omitempty,max=20"`
	ParentName   string `json:"parent_name" validate:"max=200"`
	ParentPhone  string `json:"parent_phone" validate:"omitempty,max=20"`
}

func (in StudentInput) apply(st *models.Student) {
	st.FullName = strings.TrimSpace(in.FullName)
	st.Grade = strings.TrimSpace(in.Grade)
	st.DepartmentID = in.DepartmentID
	st.Email = strings.ToLower(strings.TrimSpace(in.Email))
	st.Phone = strings.TrimSpace(in.Phone)
	st.ParentName = strings.TrimSpace(in.ParentName)
	st.ParentPhone = strings.TrimSpace(in.ParentPhone)
}

// CreateStudent registers a student under a fresh STU{yy}{nnnnn} id.
// Coordinators without a department choice get their own.
func (s *Service) CreateStudent(ctx context.Context, actor *models.User, in StudentInput) (*models.Student, error) {
	if in.DepartmentID == nil && actor != nil && !access.IsStaffWide(actor) {
		in.DepartmentID = actor.DepartmentID
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.CreateStudents, access.Scope(in.DepartmentID)); err != nil {
		return nil, err
	}
	st := &models.Student{Status: models.StudentActive}
	in.apply(st)

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := checkDepartment(ctx, tx, st.DepartmentID); err != nil {
			return err
		}
		code, err := s.freeStudentCode(ctx, tx)
		if err != nil {
			return err
		}
		st.StudentID = code
		return tx.CreateStudent(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("student created",
		zap.Int64("student_id", st.ID), zap.String("code", st.StudentID))
	return st, nil
}

func (s *Service) freeStudentCode(ctx context.Context, tx store.Tx) (string, error) {
	for i := 0; i < studentCodeAttempts; i++ {
		code := s.studentCode(s.now())
		taken, err := tx.StudentCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", apperr.Conflict("student", nil, "no free student id after %d attempts", studentCodeAttempts)
}

func (s *Service) UpdateStudent(ctx context.Context, actor *models.User, id int64, in StudentInput) (*models.Student, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	st, err := s.updateStudent(ctx, actor, id, func(tx store.Tx, st *models.Student) error {
		if in.DepartmentID != nil && (st.DepartmentID == nil || *st.DepartmentID != *in.DepartmentID) {
			// moving needs rights over the target department as well
			if err := access.Authorize(actor, access.CreateStudents, in.DepartmentID); err != nil {
				return err
			}
			if err := checkDepartment(ctx, tx, in.DepartmentID); err != nil {
				return err
			}
		}
		if in.DepartmentID == nil {
			in.DepartmentID = st.DepartmentID
		}
		in.apply(st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("student updated", zap.Int64("student_id", st.ID))
	return st, nil
}

// DeactivateStudent marks the student inactive; history stays.
func (s *Service) DeactivateStudent(ctx context.Context, actor *models.User, id int64) (*models.Student, error) {
	st, err := s.updateStudent(ctx, actor, id, func(_ store.Tx, st *models.Student) error {
		if st.Status == models.StudentInactive {
			return apperr.State("student", "student %s is already inactive", st.StudentID)
		}
		st.Status = models.StudentInactive
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("student deactivated", zap.Int64("student_id", st.ID))
	return st, nil
}

func (s *Service) updateStudent(ctx context.Context, actor *models.User, id int64, apply func(store.Tx, *models.Student) error) (*models.Student, error) {
	var st *models.Student
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if st, err = tx.GetStudent(ctx, id); err != nil {
			return err
		}
		if err := access.Authorize(actor, access.CreateStudents, access.Scope(st.DepartmentID)); err != nil {
			return err
		}
		if err := apply(tx, st); err != nil {
			return err
		}
		return tx.UpdateStudent(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) GetStudent(ctx context.Context, actor *models.User, id int64) (*models.Student, error) {
	return store.Read(ctx, s.store, func(tx store.Tx) (*models.Student, error) {
		st, err := tx.GetStudent(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorizeStudentView(actor, access.Scope(st.DepartmentID)); err != nil {
			return nil, err
		}
		return st, nil
	})
}

// ListStudents is department scoped for coordinators; staff-wide roles
// see everyone.
func (s *Service) ListStudents(ctx context.Context, actor *models.User, f models.StudentFilter) ([]models.Student, error) {
	if !access.IsStaffWide(actor) && actor != nil {
		if actor.DepartmentID == nil {
			return nil, apperr.Forbidden("%s has no department", actor.Username)
		}
		if f.DepartmentID != nil && *f.DepartmentID != *actor.DepartmentID {
			return nil, apperr.Forbidden("%s cannot access department %d", actor.Username, *f.DepartmentID)
		}
		f.DepartmentID = actor.DepartmentID
	}
	if err := authorizeStudentView(actor, f.DepartmentID); err != nil {
		return nil, err
	}
	return store.Read(ctx, s.store, func(tx store.Tx) ([]models.Student, error) {
		return tx.ListStudents(ctx, f)
	})
}

func authorizeStudentView(actor *models.User, deptID *int64) error {
	return access.AuthorizeAny(actor, deptID,
		access.CreateStudents, access.ManageEnrollments, access.ViewOwnStudents, access.ManageFees, access.ViewAllDepartments)
}
