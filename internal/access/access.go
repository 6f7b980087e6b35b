// Package access maps roles to permissions and decides department scope.
package access

import (
	"slices"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

type Permission = string

const All Permission = "*"

// tutor
const (
	ViewOwnClasses   Permission = "view_own_classes"
	MarkAttendance   Permission = "mark_attendance"
	UploadRecordings Permission = "upload_recordings"
	SubmitFeedback   Permission = "submit_feedback"
	ViewOwnSchedule  Permission = "view_own_schedule"
	ViewOwnStudents  Permission = "view_own_students"
	ViewOwnPayroll   Permission = "view_own_payroll"
	UpdateProfile    Permission = "update_profile"
)

// coordinator
const (
	ViewDepartmentUsers       Permission = "view_department_users"
	CreateStudents            Permission = "create_students"
	ManageEnrollments         Permission = "manage_enrollments"
	ViewDepartmentClasses     Permission = "view_department_classes"
	GenerateDepartmentReports Permission = "generate_department_reports"
	ApproveRequests           Permission = "approve_requests"
	ManageDepartmentSchedule  Permission = "manage_department_schedule"
	ViewDepartmentAnalytics   Permission = "view_department_analytics"
)

// finance coordinator
const (
	ManageAllPayroll     Permission = "manage_all_payroll"
	ProcessPayments      Permission = "process_payments"
	ViewFinancialReports Permission = "view_financial_reports"
	ManageFees           Permission = "manage_fees"
	ApprovePenalties     Permission = "approve_penalties"
	ViewAllDepartments   Permission = "view_all_departments"
)

// admin
const (
	ManageAllUsers    Permission = "manage_all_users"
	ManageDepartments Permission = "manage_departments"
	SystemSettings    Permission = "system_settings"
	ViewAllReports    Permission = "view_all_reports"
	ApproveUsers      Permission = "approve_users"
	ManageForms       Permission = "manage_forms"
)

var defaults = map[models.Role][]Permission{
	models.RoleSuperadmin: {All},
	models.RoleAdmin: {
		ManageAllUsers, ManageDepartments, SystemSettings, ViewAllReports, ApproveUsers, ManageForms,
	},
	models.RoleCoordinator: {
		ViewDepartmentUsers, CreateStudents, ManageEnrollments, ViewDepartmentClasses,
		GenerateDepartmentReports, ApproveRequests, ManageDepartmentSchedule, ViewDepartmentAnalytics,
	},
	models.RoleTutor: {
		ViewOwnClasses, MarkAttendance, UploadRecordings, SubmitFeedback,
		ViewOwnSchedule, ViewOwnStudents, ViewOwnPayroll, UpdateProfile,
	},
	models.RoleFinanceCoordinator: {
		ManageAllPayroll, ProcessPayments, ViewFinancialReports, ManageFees, ApprovePenalties, ViewAllDepartments,
	},
}

// roleGates are rights a role holds through the coordinator and finance
// areas of the center rather than through its permission list. They count
// for Allowed and Authorize but never for Can or CheckPermission.
var roleGates = map[models.Role][]Permission{
	models.RoleAdmin: {
		ManageDepartmentSchedule, ManageEnrollments, CreateStudents, ViewDepartmentClasses,
		ViewDepartmentUsers, ViewDepartmentAnalytics, ViewFinancialReports,
	},
}

// Defaults returns a copy of the role's default permission list.
func Defaults(role models.Role) []Permission {
	return slices.Clone(defaults[role])
}

// Can reports whether u holds perm. A non-nil custom permission set
// replaces the role defaults.
func Can(u *models.User, perm Permission) bool {
	if u == nil {
		return false
	}
	if u.Role == models.RoleSuperadmin {
		return true
	}
	if !u.IsActive || !u.IsApproved {
		return false
	}
	set := u.Permissions
	if set == nil {
		set = defaults[u.Role]
	}
	return slices.Contains(set, All) || slices.Contains(set, perm)
}

// Allowed is Can widened by the role gates. Services decide with it.
func Allowed(u *models.User, perm Permission) bool {
	if Can(u, perm) {
		return true
	}
	if u == nil || !u.IsActive || !u.IsApproved {
		return false
	}
	return slices.Contains(roleGates[u.Role], perm)
}

// bypassScope roles see every department.
func bypassScope(r models.Role) bool {
	return r == models.RoleSuperadmin || r == models.RoleAdmin || r == models.RoleFinanceCoordinator
}

// CanAccessDepartment reports whether u may act on records of department
// deptID. Tutors are department-scoped like coordinators.
func CanAccessDepartment(u *models.User, deptID int64) bool {
	if u == nil {
		return false
	}
	if bypassScope(u.Role) {
		return true
	}
	return u.InDepartment(deptID)
}

// CheckPermission combines Can with the department check when deptID is set.
func CheckPermission(u *models.User, perm Permission, deptID *int64) bool {
	if !Can(u, perm) {
		return false
	}
	if deptID != nil && !CanAccessDepartment(u, *deptID) {
		return false
	}
	return true
}

// Authorize checks Allowed plus department scope, as an error.
func Authorize(u *models.User, perm Permission, deptID *int64) error {
	if u == nil {
		return apperr.Forbidden("not authenticated")
	}
	if !Allowed(u, perm) {
		return apperr.Forbidden("%s lacks permission %q", u.Username, perm)
	}
	if deptID != nil && !CanAccessDepartment(u, *deptID) {
		return apperr.Forbidden("%s cannot access department %d", u.Username, *deptID)
	}
	return nil
}

// AuthorizeAny passes if u holds at least one of perms.
func AuthorizeAny(u *models.User, deptID *int64, perms ...Permission) error {
	var last error
	for _, p := range perms {
		if last = Authorize(u, p, deptID); last == nil {
			return nil
		}
	}
	if last == nil {
		return apperr.Forbidden("no permission given")
	}
	return last
}

// IsStaffWide reports whether u sees all departments.
func IsStaffWide(u *models.User) bool { return u != nil && bypassScope(u.Role) }

// Scope turns an optional department into the value Authorize checks.
// Records without a department are reachable by staff-wide roles only.
func Scope(deptID *int64) *int64 {
	if deptID != nil {
		return deptID
	}
	none := int64(0)
	return &none
}

// AuthorizeOwner lets the record's owner through with ownPerm, and anyone
// else with managePerm within the record's department.
func AuthorizeOwner(u *models.User, ownerID int64, ownPerm, managePerm Permission, deptID *int64) error {
	if u != nil && u.ID == ownerID && Allowed(u, ownPerm) {
		return nil
	}
	return Authorize(u, managePerm, Scope(deptID))
}

// Known reports whether p is a permission some role grants by default.
func Known(p Permission) bool {
	for _, perms := range defaults {
		if slices.Contains(perms, p) {
			return true
		}
	}
	return false
}
