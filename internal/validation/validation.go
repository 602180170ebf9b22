// Package validation turns struct-tag validation failures into field-keyed
// messages that handlers return as-is.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Violations maps a field name to its first error message.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records msg for field unless the field already has an error.
func (v Violations) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// Err returns nil when there are no violations.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &Error{Fields: v}
}

// Error is a validation failure over one or more fields.
type Error struct {
	Fields Violations
}

// Error returns the message of the alphabetically first field.
func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "validation failed"
	}
	return e.Fields[keys[0]]
}

// FieldError builds an Error for a single field.
func FieldError(field, msg string) error {
	return &Error{Fields: Violations{field: msg}}
}

// AsError unwraps err into *Error.
func AsError(err error) (*Error, bool) {
	var ve *Error
	ok := errors.As(err, &ve)
	return ve, ok
}

var companyNamePattern = regexp.MustCompile(`^[\p{L}\p{N} .,&'()\-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("company_name", func(fl validator.FieldLevel) bool {
		return companyNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s and returns *Error on failure.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := Violations{}
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out.Err()
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s may not be greater than %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s may not be greater than %s.", field, fe.Param())
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s must be at least %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "gt":
		return fmt.Sprintf("The %s must be greater than %s.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "len":
		return fmt.Sprintf("The %s must be %s characters.", field, fe.Param())
	case "company_name":
		return fmt.Sprintf("The %s format is invalid.", field)
	}
	return fmt.Sprintf("The %s is invalid.", field)
}
