package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/example/tunestore/internal/apperr"
)

var (
	once     sync.Once
	instance *validatorv10.Validate
)

// New returns a validator with the storefront's custom tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	// notblank rejects strings that are empty after trimming whitespace
	_ = v.RegisterValidation("notblank", func(fl validatorv10.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// singleline rejects line breaks, for values that end up in mail headers
	_ = v.RegisterValidation("singleline", func(fl validatorv10.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	return v
}

func shared() *validatorv10.Validate {
	once.Do(func() { instance = New() })
	return instance
}

// Struct validates s and converts failures into a ValidationFailure error
// listing every offending field.
func Struct(s any) error {
	err := shared().Struct(s)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Validation("invalid input", err)
	}
	fields := FieldErrors(ve)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, fields[k]))
	}
	return apperr.Validation("invalid input", errors.New(strings.Join(parts, "; ")))
}

// FieldErrors maps each failing field to a short description of the rule it broke.
func FieldErrors(ve validatorv10.ValidationErrors) map[string]string {
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required", "notblank":
			out[name] = "is required"
		case "max":
			out[name] = "must be at most " + fe.Param() + " characters"
		case "oneof":
			out[name] = "must be one of " + fe.Param()
		case "singleline":
			out[name] = "must not contain line breaks"
		case "gt":
			out[name] = "must be greater than " + fe.Param()
		default:
			out[name] = "failed " + fe.Tag()
		}
	}
	return out
}
