package datamodel

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError
var ErrValidation = errors.New("validation failed")

// ValidationError describes client input that was rejected at the boundary
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
