package access

import (
	"errors"
	"testing"

	"github.com/Spok95/tutorcenter/internal/apperr"
	"github.com/Spok95/tutorcenter/internal/models"
)

func ptrInt64(v int64) *int64 { return &v }

func user(role models.Role, dept *int64) *models.User {
	return &models.User{Username: string(role), Role: role, DepartmentID: dept, IsActive: true, IsApproved: true}
}

func TestCan_RoleDefaults(t *testing.T) {
	cases := []struct {
		role models.Role
		perm Permission
		want bool
	}{
		{models.RoleSuperadmin, "anything_at_all", true},
		{models.RoleAdmin, ManageDepartments, true},
		{models.RoleAdmin, ProcessPayments, false},
		{models.RoleCoordinator, ManageEnrollments, true},
		{models.RoleCoordinator, ManageAllPayroll, false},
		{models.RoleTutor, MarkAttendance, true},
		{models.RoleTutor, ManageDepartmentSchedule, false},
		{models.RoleFinanceCoordinator, ProcessPayments, true},
		{models.RoleFinanceCoordinator, ApproveUsers, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+tc.perm, func(t *testing.T) {
			if got := Can(user(tc.role, nil), tc.perm); got != tc.want {
				t.Fatalf("Can = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCan_CustomOverrideReplacesDefaults(t *testing.T) {
	u := user(models.RoleTutor, nil)
	u.Permissions = []string{ProcessPayments}
	if !Can(u, ProcessPayments) {
		t.Fatal("override permission denied")
	}
	if Can(u, MarkAttendance) {
		t.Fatal("role default leaked through override")
	}
	u.Permissions = []string{All}
	if !Can(u, ManageAllUsers) {
		t.Fatal("wildcard override denied")
	}
}

func TestCan_InactiveOrUnapproved(t *testing.T) {
	u := user(models.RoleAdmin, nil)
	u.IsApproved = false
	if Can(u, ManageDepartments) {
		t.Fatal("unapproved user allowed")
	}
	s := user(models.RoleSuperadmin, nil)
	s.IsActive = false
	if !Can(s, ManageDepartments) {
		t.Fatal("superadmin bypass must hold")
	}
	if Can(nil, UpdateProfile) {
		t.Fatal("nil user allowed")
	}
}

func TestCheckPermission_DepartmentScope(t *testing.T) {
	coord := user(models.RoleCoordinator, ptrInt64(1))
	if !CheckPermission(coord, ManageEnrollments, ptrInt64(1)) {
		t.Fatal("coordinator denied in own department")
	}
	if CheckPermission(coord, ManageEnrollments, ptrInt64(2)) {
		t.Fatal("coordinator allowed in foreign department")
	}
	if !CheckPermission(coord, ManageEnrollments, nil) {
		t.Fatal("unscoped check denied")
	}
	for _, r := range []models.Role{models.RoleAdmin, models.RoleFinanceCoordinator, models.RoleSuperadmin} {
		if !CanAccessDepartment(user(r, ptrInt64(1)), 2) {
			t.Fatalf("%s should bypass department scope", r)
		}
	}
	if CanAccessDepartment(user(models.RoleTutor, nil), 2) {
		t.Fatal("tutor without department allowed")
	}
}

func TestAuthorize_ErrorKind(t *testing.T) {
	err := Authorize(user(models.RoleTutor, nil), ProcessPayments, nil)
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("want authorization error, got %v", err)
	}
	if err := AuthorizeAny(user(models.RoleTutor, nil), nil, ProcessPayments, MarkAttendance); err != nil {
		t.Fatalf("AuthorizeAny: %v", err)
	}
}

func TestDefaultsIsCopy(t *testing.T) {
	d := Defaults(models.RoleTutor)
	d[0] = "tampered"
	if Defaults(models.RoleTutor)[0] == "tampered" {
		t.Fatal("Defaults returned shared slice")
	}
}

func TestAuthorizeOwner(t *testing.T) {
	dept := ptrInt64(3)
	tutor := user(models.RoleTutor, dept)
	tutor.ID = 10

	if err := AuthorizeOwner(tutor, 10, MarkAttendance, ManageDepartmentSchedule, dept); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if err := AuthorizeOwner(tutor, 11, MarkAttendance, ManageDepartmentSchedule, dept); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("other tutor's record: got %v", err)
	}

	coord := user(models.RoleCoordinator, dept)
	coord.ID = 20
	if err := AuthorizeOwner(coord, 10, MarkAttendance, ManageDepartmentSchedule, dept); err != nil {
		t.Fatalf("coordinator in department denied: %v", err)
	}
	if err := AuthorizeOwner(coord, 10, MarkAttendance, ManageDepartmentSchedule, nil); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("record without department must be staff-wide only: got %v", err)
	}
	if err := AuthorizeOwner(user(models.RoleAdmin, nil), 10, MarkAttendance, ManageDepartmentSchedule, nil); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
}

func TestDefaults_AdminTable(t *testing.T) {
	want := []Permission{ManageAllUsers, ManageDepartments, SystemSettings, ViewAllReports, ApproveUsers, ManageForms}
	got := Defaults(models.RoleAdmin)
	if len(got) != len(want) {
		t.Fatalf("admin defaults = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("admin defaults = %v, want %v", got, want)
		}
	}
}

func TestAllowed_AdminRoleGate(t *testing.T) {
	admin := user(models.RoleAdmin, nil)
	for _, p := range []Permission{ManageDepartmentSchedule, ManageEnrollments, CreateStudents, ViewFinancialReports} {
		if CheckPermission(admin, p, nil) {
			t.Errorf("CheckPermission(admin, %s) = true, the role table does not grant it", p)
		}
		if !Allowed(admin, p) {
			t.Errorf("Allowed(admin, %s) = false", p)
		}
		if err := Authorize(admin, p, ptrInt64(4)); err != nil {
			t.Errorf("Authorize(admin, %s): %v", p, err)
		}
	}
	if Allowed(admin, ProcessPayments) {
		t.Error("role gate grants payments")
	}
	admin.IsActive = false
	if Allowed(admin, ManageEnrollments) {
		t.Error("inactive admin passes the role gate")
	}
}
