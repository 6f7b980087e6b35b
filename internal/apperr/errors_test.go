package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want *Error
	}{
		{"validation", Invalid("end", "end must be after start"), ErrValidation},
		{"conflict", Conflict("session", 7, "tutor busy"), ErrConflict},
		{"state", State("session", "already completed"), ErrState},
		{"not found", NotFound("fee", 42), ErrNotFound},
		{"forbidden", Forbidden("missing %s", "process_payments"), ErrAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tc.err)
			if !errors.Is(wrapped, tc.want) {
				t.Fatalf("errors.Is(%v, %v) = false", wrapped, tc.want)
			}
			for _, other := range []*Error{ErrValidation, ErrConflict, ErrState, ErrNotFound, ErrAuthorization} {
				if other != tc.want && errors.Is(wrapped, other) {
					t.Fatalf("%v unexpectedly matched %v", wrapped, other)
				}
			}
			if KindOf(wrapped) != tc.want.Kind {
				t.Fatalf("KindOf = %v, want %v", KindOf(wrapped), tc.want.Kind)
			}
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("connection refused")
	if KindOf(err) != KindUnknown {
		t.Fatalf("plain error got kind %v", KindOf(err))
	}
	if IsDomain(err) {
		t.Fatal("plain error reported as domain error")
	}
}

func TestErrorMessageIncludesFields(t *testing.T) {
	err := Validation("invalid input",
		FieldError{Field: "subject", Error: "this field is required"},
		FieldError{Field: "date", Error: "this field is required"},
	)
	want := "validation: invalid input (subject: this field is required; date: this field is required)"
	if err.Error() != want {
		t.Fatalf("got %q\nwant %q", err.Error(), want)
	}
}

func TestConflictCarriesEntity(t *testing.T) {
	err := fmt.Errorf("create: %w", Conflict("payroll", "2026-03", "payroll for 3/2026 already exists"))
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error in chain")
	}
	if e.Entity != "payroll" || e.Conflicting != "2026-03" {
		t.Fatalf("unexpected conflict payload: %+v", e)
	}
}
