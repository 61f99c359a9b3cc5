package validation

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a form field name to the first message that applies to it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e[field])
	}
	return strings.Join(parts, "; ")
}

// Summary joins all messages in field order, for a single-line notice.
func (e FieldErrors) Summary(order ...string) string {
	var parts []string
	for _, field := range order {
		if msg, ok := e[field]; ok {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, ", ")
}

func (e FieldErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validator wraps validator/v10 with the form rules and their messages.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("has_upper", hasUpper)
	_ = v.RegisterValidation("has_special", hasSpecial)
	_ = v.RegisterValidation("finite", finite)

	return &Validator{validate: v}
}

// check runs struct validation and translates failures with messages,
// keyed by "field.tag".
func (v *Validator) check(form interface{}, messages map[string]string) FieldErrors {
	errs := FieldErrors{}

	err := v.validate.Struct(form)
	if err == nil {
		return errs
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["_form"] = err.Error()
		return errs
	}

	for _, fieldErr := range validationErrors {
		field := fieldErr.Field()
		if _, seen := errs[field]; seen {
			continue
		}
		if msg, ok := messages[field+"."+fieldErr.Tag()]; ok {
			errs[field] = msg
		} else {
			errs[field] = fieldErr.Error()
		}
	}

	return errs
}

func hasUpper(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func hasSpecial(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if !(r >= 'A' && r <= 'Z') && !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

func finite(fl validator.FieldLevel) bool {
	value := fl.Field().Float()
	return !math.IsInf(value, 0) && !math.IsNaN(value)
}
