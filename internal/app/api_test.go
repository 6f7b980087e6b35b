package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Spok95/tutorcenter/internal/accounts"
	"github.com/Spok95/tutorcenter/internal/attendance"
	"github.com/Spok95/tutorcenter/internal/export"
	"github.com/Spok95/tutorcenter/internal/finance"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/scheduling"
	"github.com/Spok95/tutorcenter/internal/store/memstore"
)

type fixture struct {
	srv   *httptest.Server
	acc   *accounts.Service
	root  *models.User
	tutor *models.User
	dept  *models.Department
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	acc := accounts.New(st, accounts.Options{Tokens: st, BcryptCost: bcrypt.MinCost})
	sched := scheduling.New(st, scheduling.Options{Location: time.UTC})
	att := attendance.New(st, attendance.Options{})
	fin := finance.New(st, finance.Options{Location: time.UTC})
	api := New(Services{
		Store:      st,
		Accounts:   acc,
		Scheduling: sched,
		Attendance: att,
		Finance:    fin,
		Export:     export.New(st, fin, att, time.UTC, nil),
	}, Options{JWTSecret: "test-secret", Location: time.UTC})

	f := &fixture{acc: acc}
	var err error
	f.root, err = acc.CreateSuperadmin(ctx, accounts.SuperadminInput{
		Username: "root", Email: "root@example.com", Password: "rootpass", FullName: "Root",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.dept, err = acc.CreateDepartment(ctx, f.root, accounts.DepartmentInput{Name: "Science", Code: "SCI"})
	if err != nil {
		t.Fatal(err)
	}
	f.tutor, err = acc.CreateUser(ctx, f.root, accounts.CreateUserInput{
		Username: "meera", Email: "meera@example.com", Password: "tutorpass", FullName: "Meera",
		Role: "tutor", DepartmentID: &f.dept.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.srv = httptest.NewServer(api.Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) login(t *testing.T, login, password string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Login: login, Password: password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %v", login, resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token issued")
	}
	return token
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("bad password", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Login: "root", Password: "nope"})
		if resp.StatusCode != http.StatusUnauthorized || body["kind"] != "authentication" {
			t.Fatalf("got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("pending approval", func(t *testing.T) {
		_, err := f.acc.Register(context.Background(), accounts.RegisterInput{
			Username: "newbie", Email: "newbie@example.com", Password: "secret1", FullName: "New",
			Role: "tutor", DepartmentID: &f.dept.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		resp, _ := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Login: "newbie", Password: "secret1"})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("got %d", resp.StatusCode)
		}
	})

	t.Run("token round trip", func(t *testing.T) {
		token := f.login(t, "meera@example.com", "tutorpass")
		resp, body := f.do(t, http.MethodGet, "/api/me", token, nil)
		if resp.StatusCode != http.StatusOK || body["username"] != "meera" {
			t.Fatalf("got %d %v", resp.StatusCode, body)
		}
		if _, leaked := body["password_hash"]; leaked {
			t.Fatal("password hash in response")
		}
	})

	t.Run("missing token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/api/me", "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("got %d", resp.StatusCode)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/api/me", "not-a-jwt", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("got %d", resp.StatusCode)
		}
	})
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "meera", "tutorpass")
	if _, err := f.acc.Deactivate(context.Background(), f.root, f.tutor.ID); err != nil {
		t.Fatal(err)
	}
	resp, _ := f.do(t, http.MethodGet, "/api/me", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("got %d", resp.StatusCode)
	}
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "root", "rootpass")
	day := time.Now().UTC().AddDate(0, 0, 3).Format(time.DateOnly)
	in := scheduling.CreateSessionInput{TutorID: f.tutor.ID, Subject: "Physics", Date: day, Start: "10:00", End: "11:00"}

	resp, body := f.do(t, http.MethodPost, "/api/sessions", admin, in)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	id := int64(body["id"].(float64))

	t.Run("overlap", func(t *testing.T) {
		clash := in
		clash.Start, clash.End = "10:30", "11:30"
		resp, body := f.do(t, http.MethodPost, "/api/sessions", admin, clash)
		if resp.StatusCode != http.StatusConflict || body["kind"] != "conflict" {
			t.Fatalf("got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("validation", func(t *testing.T) {
		bad := in
		bad.Subject = ""
		resp, body := f.do(t, http.MethodPost, "/api/sessions", admin, bad)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("got %d %v", resp.StatusCode, body)
		}
		if fields, _ := body["fields"].([]any); len(fields) == 0 {
			t.Fatalf("no field errors: %v", body)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/sessions", admin, "{")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("got %d", resp.StatusCode)
		}
	})

	t.Run("get and cancel", func(t *testing.T) {
		path := "/api/sessions/" + strconv.FormatInt(id, 10)
		resp, body := f.do(t, http.MethodGet, path, admin, nil)
		if resp.StatusCode != http.StatusOK || body["status"] != "scheduled" {
			t.Fatalf("get: %d %v", resp.StatusCode, body)
		}
		resp, body = f.do(t, http.MethodPost, path+"/cancel", admin, map[string]string{"reason": "student ill"})
		if resp.StatusCode != http.StatusOK || body["status"] != "cancelled" {
			t.Fatalf("cancel: %d %v", resp.StatusCode, body)
		}
		resp, body = f.do(t, http.MethodPost, path+"/cancel", admin, map[string]string{"reason": "again"})
		if resp.StatusCode != http.StatusConflict || body["kind"] != "state" {
			t.Fatalf("second cancel: %d %v", resp.StatusCode, body)
		}
	})

	t.Run("not found", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/api/sessions/999999", admin, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("got %d", resp.StatusCode)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/api/sessions/abc", admin, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("got %d", resp.StatusCode)
		}
	})
}

func TestFinanceForbiddenForTutor(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "meera", "tutorpass")
	resp, body := f.do(t, http.MethodGet, "/api/finance/summary", token, nil)
	if resp.StatusCode != http.StatusForbidden || body["kind"] != "authorization" {
		t.Fatalf("got %d %v", resp.StatusCode, body)
	}
}

func TestPermissionCheck(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "meera", "tutorpass")

	resp, body := f.do(t, http.MethodGet, "/api/permissions/check?permission=manage_all_payroll", token, nil)
	if resp.StatusCode != http.StatusOK || body["allowed"] != false {
		t.Fatalf("got %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/permissions/check?permission=fly", token, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown permission: %d", resp.StatusCode)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{accounts.ErrInvalidCredentials, http.StatusUnauthorized},
		{accounts.ErrPendingApproval, http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusOf(c.err); got != c.want {
			t.Errorf("statusOf(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
