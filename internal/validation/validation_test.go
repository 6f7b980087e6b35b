package validation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Spok95/tutorcenter/internal/apperr"
)

type slot struct {
	Day  string `json:"day" validate:"required,weekday"`
	Time string `json:"time" validate:"required,clock"`
}

type sample struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code" validate:"required,deptcode"`
	Schedule []slot `json:"schedule" validate:"required,min=1,dive"`
}

func TestStruct_OK(t *testing.T) {
	in := sample{Name: "Maths", Code: "MATH-1", Schedule: []slot{{Day: "Monday", Time: "14:00"}}}
	if err := Struct(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	in := sample{Code: "X", Schedule: []slot{{Day: "funday", Time: "25:00"}}}
	err := Struct(in)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	var e *apperr.Error
	errors.As(err, &e)

	got := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		got = append(got, f.Field)
	}
	want := []string{"name", "code", "schedule[0].day", "schedule[0].time"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if e.Fields[0].Error != "name is required" {
		t.Fatalf("unexpected required text: %q", e.Fields[0].Error)
	}
}

func TestHelpers(t *testing.T) {
	if !IsWeekday(" Sunday ") || IsWeekday("sun") {
		t.Fatal("IsWeekday mismatch")
	}
	for code, ok := range map[string]bool{"AB": true, "a_b-9": true, "A": false, "ABCDEFGHIJK": false, "A B": false} {
		if IsDepartmentCode(code) != ok {
			t.Fatalf("IsDepartmentCode(%q) != %v", code, ok)
		}
	}
}
