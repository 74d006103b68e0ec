package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports input rejected before it reaches storage.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WriteFailure reports a backend write that was rejected or timed out.
// The write may still have landed; callers never retry automatically.
type WriteFailure struct {
	Op  string
	Err error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("write failure in %s: %v", e.Op, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsWriteFailure reports whether err is, or wraps, a WriteFailure.
func IsWriteFailure(err error) bool {
	var w *WriteFailure
	return errors.As(err, &w)
}
