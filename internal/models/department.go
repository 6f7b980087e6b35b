package models

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type Department struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	FormIDs     []int64   `db:"form_ids" json:"form_ids,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentInactive StudentStatus = "inactive"
)

type Student struct {
	ID           int64         `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	FullName     string        `db:"full_name" json:"full_name"`
	Grade        string        `db:"grade" json:"grade"`
	DepartmentID *int64        `db:"department_id" json:"department_id,omitempty"`
	Email        string        `db:"email" json:"email,omitempty"`
	Phone        string        `db:"phone" json:"phone,omitempty"`
	ParentName   string        `db:"parent_name" json:"parent_name,omitempty"`
	ParentPhone  string        `db:"parent_phone" json:"parent_phone,omitempty"`
	Status       StudentStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

type StudentFilter struct {
	DepartmentID *int64
	Status       StudentStatus
}

// NewStudentCode formats STU{yy}{5 digits}.
func NewStudentCode(at time.Time) string {
	return fmt.Sprintf("STU%s%05d", at.Format("06"), rand.IntN(100000))
}
