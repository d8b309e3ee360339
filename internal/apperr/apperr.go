// Package apperr defines the error kinds shared by the costing packages.
//
// Every domain failure wraps one of the sentinel kinds so callers can tell
// bad input from bad setup data with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected input: a non-positive dimension or a missing field.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks bad setup data such as PPH <= 0 or annualHours <= 0.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing record the operation cannot proceed without.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a lost compare-and-swap race.
	ErrConflict = errors.New("concurrency conflict")
)

// Error carries a kind, the offending field (if any) and a message.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// Validation returns an ErrValidation for field.
func Validation(field, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Configuration returns an ErrConfiguration for field.
func Configuration(field, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound describing what was missing.
func NotFound(what, id string) error {
	return &Error{Kind: ErrNotFound, Field: what, Message: fmt.Sprintf("%q does not exist", id)}
}

// Conflict returns an ErrConflict.
func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Positive rejects v <= 0 as a validation error.
func Positive(field string, v float64) error {
	if v <= 0 {
		return Validation(field, "must be greater than 0, got %v", v)
	}
	return nil
}

// NonNegative rejects v < 0 as a validation error.
func NonNegative(field string, v float64) error {
	if v < 0 {
		return Validation(field, "must be greater than or equal to 0, got %v", v)
	}
	return nil
}
