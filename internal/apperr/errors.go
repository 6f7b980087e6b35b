// Package apperr holds the error kinds returned by domain operations.
//
// Callers branch on the kind, never on the message:
//
//	if errors.Is(err, apperr.ErrConflict) { ... }
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindState
	KindNotFound
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is a domain failure. Entity names the record kind involved and
// Conflicting carries the clashing record for conflicts (a session window,
// a payroll period, a department code).
type Error struct {
	Kind        Kind
	Msg         string
	Entity      string
	Conflicting any
	Fields      []FieldError
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + ": " + f.Error)
		if i == len(e.Fields)-1 {
			b.WriteString(")")
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels, so errors.Is(err, ErrNotFound) works for any
// not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Entity == "" && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrState         = &Error{Kind: KindState}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
)

func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Fields: fields}
}

// Invalid is a single-field validation error.
func Invalid(field, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: KindValidation, Msg: msg, Fields: []FieldError{{Field: field, Error: msg}}}
}

func Conflict(entity string, conflicting any, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Conflicting: conflicting, Msg: fmt.Sprintf(format, args...)}
}

func State(entity, format string, args ...any) *Error {
	return &Error{Kind: KindState, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Msg: fmt.Sprintf("%s %v not found", entity, id)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsDomain reports whether err is an expected business failure rather
// than an infrastructure one.
func IsDomain(err error) bool {
	return KindOf(err) != KindUnknown
}
