package utils

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator; field names come from json tags.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// FieldError is a single failed struct-tag rule.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e FieldError) Reason() string {
	switch e.Tag {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + e.Param
	case "min":
		return "must be at least " + e.Param
	case "gte":
		return "must be greater than or equal to " + e.Param
	case "gt":
		return "must be greater than " + e.Param
	case "oneof":
		return "must be one of " + e.Param
	case "dive":
		return "is invalid"
	default:
		return "failed " + e.Tag + " validation"
	}
}

// ValidateStruct runs struct-tag validation and returns the failures sorted by field.
// Returns nil when s is valid.
func ValidateStruct(s any) ([]FieldError, error) {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil, nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil, err
	}
	var fieldErrs []FieldError
	for field, fe := range ProcessValidationErrors(err) {
		fieldErrs = append(fieldErrs, FieldError{Field: field, Tag: fe.Tag, Param: fe.Param})
	}
	sort.Slice(fieldErrs, func(i, j int) bool { return fieldErrs[i].Field < fieldErrs[j].Field })
	return fieldErrs, nil
}

// ProcessValidationErrors maps the namespaced field (minus the root struct) to its failed rule.
func ProcessValidationErrors(err error) map[string]FieldError {
	errorResponse := make(map[string]FieldError)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errorResponse
	}
	for _, ve := range validationErrors {
		field := ve.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		errorResponse[field] = FieldError{Field: field, Tag: ve.Tag(), Param: ve.Param()}
	}
	return errorResponse
}
