package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is missing or soft-deleted.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when a duplicate unique key cannot be
	// resolved by upsert.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrUnauthorized is returned when the caller has no valid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller is authenticated but not
	// allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is returned when an action-specific limiter rejects
	// the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrDependencyFailed is returned when the discourse engine or object
	// storage is unreachable.
	ErrDependencyFailed = errors.New("dependency failed")
)

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
