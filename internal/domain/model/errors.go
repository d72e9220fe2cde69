package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds shared by the domain and its adapters.
var (
	ErrInvalidClaim = errors.New("invalid claim")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	// ErrReasonRequired rejects a first retraction without a reason.
	ErrReasonRequired = errors.New("retraction reason is required")
)

// ValidationError names the RawClaim field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match ErrInvalidClaim with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrInvalidClaim }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
