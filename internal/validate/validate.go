// Package validate wires go-playground/validator into Echo and turns its
// errors into a list clients can render next to form fields.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// phonePattern accepts 7 to 20 digits with an optional leading '+'.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,20}$`)

// FieldError describes one failed rule.  Field uses the JSON name.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Errors is returned by Validate when at least one rule failed.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate checks struct tags on i.  Slices of structs are validated element
// by element.  Failures come back as Errors.
func (cv *Validator) Validate(i interface{}) error {
	var err error
	if rv := reflect.ValueOf(i); rv.Kind() == reflect.Slice || (rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Slice) {
		err = cv.v.Var(i, "dive")
	} else {
		err = cv.v.Struct(i)
	}
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(Errors, len(ve))
	for k, fe := range ve {
		out[k] = FieldError{Field: fieldName(fe), Tag: fe.Tag(), Message: message(fe)}
	}
	return out
}

var std = New()

// Struct validates i with the shared validator.
func Struct(i interface{}) error { return std.Validate(i) }

// fieldName strips the top-level struct name from the namespace, so nested
// and slice fields read as "[1]._id" rather than just "_id".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexAny(ns, ".["); i >= 0 && !strings.HasPrefix(ns, "[") {
		ns = strings.TrimPrefix(ns[i:], ".")
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func message(fe validator.FieldError) string {
	f := fieldName(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", f)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "phone":
		return fmt.Sprintf("%s must be 7 to 20 digits, optionally starting with +", f)
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", f, fe.Param())
	default:
		return fmt.Sprintf("%s failed the '%s' rule", f, fe.Tag())
	}
}
