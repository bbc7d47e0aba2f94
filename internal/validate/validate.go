// Package validate checks request fields and renders the user-facing messages.
package validate

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/goph-accounts/internal/errs"
)

// TagPassword enforces at least one ASCII lower-case letter, upper-case letter and digit.
const TagPassword = "password_policy"

// Messages maps "field.tag" to a message; ":min" and ":max" are replaced by the rule parameter.
type Messages map[string]string

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator checks structs tagged with `validate:"..."`.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator sharing the process-wide rule set.
func New() *Validator {
	return &Validator{v: getValidator()}
}

// Struct validates s and returns an errs.Validation outcome listing one message per failed field.
func (val *Validator) Struct(s any, msgs Messages) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errs.Internal("validation failed", err)
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, render(fe, msgs))
	}
	return errs.Validation(out...)
}

func render(fe validator.FieldError, msgs Messages) string {
	tmpl, ok := msgs[fe.Field()+"."+fe.Tag()]
	if !ok {
		return fe.Field() + " is invalid."
	}
	r := strings.NewReplacer(":min", fe.Param(), ":max", fe.Param())
	return r.Replace(tmpl)
}

// PasswordPolicy reports whether s contains at least one ASCII lower-case letter,
// one ASCII upper-case letter and one ASCII digit. Other characters are allowed
// but count toward none of the classes.
func PasswordPolicy(s string) bool {
	var lower, upper, digit bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return lower && upper && digit
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation(TagPassword, func(fl validator.FieldLevel) bool {
			return PasswordPolicy(fl.Field().String())
		})
	})
	return validate
}
