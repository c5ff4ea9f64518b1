// Package validator builds field validation from small declarative rules.
//
//	err := validator.Apply(
//		validator.Required("email", p.Email),
//		validator.ValidEmail("email", p.Email),
//	)
//	if fields := validator.ExtractValidationErrors(err); fields != nil { ... }
package validator

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is a single failed rule.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed rule of one Apply call.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(ve))
	for _, err := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (ve ValidationErrors) Has(field string) bool {
	for _, err := range ve {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Map groups messages by field, the shape returned to API clients.
func (ve ValidationErrors) Map() map[string][]string {
	out := make(map[string][]string, len(ve))
	for _, err := range ve {
		out[err.Field] = append(out[err.Field], err.Message)
	}
	return out
}

// Rule is a lazily evaluated check and the error reported when it fails.
type Rule struct {
	Check func() bool
	Error ValidationError
}

// Apply runs all rules and returns ValidationErrors for the failed ones, or nil.
func Apply(rules ...Rule) error {
	var errs ValidationErrors
	for _, rule := range rules {
		if !rule.Check() {
			errs = append(errs, rule.Error)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Optional passes when value is blank and otherwise defers to rule.
func Optional(value string, rule Rule) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) == "" || rule.Check() },
		Error: rule.Error,
	}
}

func ExtractValidationErrors(err error) ValidationErrors {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

func IsValidationError(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}
