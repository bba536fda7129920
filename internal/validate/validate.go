// Package validate wraps go-playground/validator with the directory's
// custom rules and turns field errors into user-facing invalid-request errors.
package validate

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teranos/jawala/errors"
)

var contactPattern = regexp.MustCompile(`^(\+91)?[0-9]{10}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// contact: a 10-digit Indian mobile number, optionally prefixed with +91
	_ = v.RegisterValidation("contact", func(fl validator.FieldLevel) bool {
		return Contact(fl.Field().String())
	})
	return v
}

// Contact reports whether s is a valid contact number
func Contact(s string) bool {
	return contactPattern.MatchString(s)
}

// Struct validates v against its `validate` tags. Failures are marked
// ErrInvalidRequest and carry one hint line per field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}

	fields := make([]string, 0, len(verrs))
	lines := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		lines = append(lines, describe(fe))
	}
	return errors.WithHint(
		errors.NewInvalidRequestError("invalid %T: %s", v, strings.Join(fields, ", ")),
		strings.Join(lines, "\n"),
	)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "contact":
		return fe.Field() + " must be a 10-digit mobile number"
	default:
		return fe.Field() + " failed rule '" + fe.Tag() + "'"
	}
}
