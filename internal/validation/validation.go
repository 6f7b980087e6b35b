// Package validation checks typed operation inputs before they reach the
// domain services.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/Spok95/tutorcenter/internal/apperr"
)

var (
	// custom validation tags & texts
	clockTag   = "clock"
	clockText  = "{0} must be a time in HH:MM format"
	clockRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

	weekdayTag  = "weekday"
	weekdayText = "{0} must be a day of the week"

	deptCodeTag   = "deptcode"
	deptCodeText  = "{0} must be 2-10 letters, digits, '-' or '_'"
	deptCodeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{2,10}$`)

	requiredTag  = "required"
	requiredText = "{0} is required"
)

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	std     *Validator
	stdOnce sync.Once
)

// Default returns the process-wide validator.
func Default() *Validator {
	stdOnce.Do(func() { std = New() })
	return std
}

// Struct validates v with the default validator.
func Struct(v any) error { return Default().Struct(v) }

func New() *Validator {
	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(clockTag, func(fl validator.FieldLevel) bool {
		return clockRegex.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation(weekdayTag, func(fl validator.FieldLevel) bool {
		return weekdays[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
	})
	_ = validate.RegisterValidation(deptCodeTag, func(fl validator.FieldLevel) bool {
		return deptCodeRegex.MatchString(fl.Field().String())
	})

	registerTranslation(validate, trans, clockTag, clockText, false)
	registerTranslation(validate, trans, weekdayTag, weekdayText, false)
	registerTranslation(validate, trans, deptCodeTag, deptCodeText, false)
	registerTranslation(validate, trans, requiredTag, requiredText, true)

	return &Validator{validate: validate, translator: trans}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, text string, override bool) {
	_ = validate.RegisterTranslation(
		tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct returns nil or an apperr validation error listing every failed
// field by its json name.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{
			Field: fieldPath(fe),
			Error: fe.Translate(v.translator),
		})
	}
	return apperr.Validation("invalid input", fields...)
}

// fieldPath drops the top-level struct name from the namespace:
// "CreateSessionInput.schedule[0].day" -> "schedule[0].day".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// IsWeekday reports whether s names a day of the week, case-insensitively.
func IsWeekday(s string) bool {
	return weekdays[strings.ToLower(strings.TrimSpace(s))]
}

// IsDepartmentCode reports whether s is a valid department code.
func IsDepartmentCode(s string) bool { return deptCodeRegex.MatchString(s) }
