package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while scoring a submission.
var (
	// ErrValidation indicates that the submitter supplied missing or
	// malformed input and must resubmit.
	ErrValidation = errors.New("validation failed")

	// ErrDataUnavailable indicates that the ground truth could not be read
	// or produced no points. It is an operational fault, not a user error.
	ErrDataUnavailable = errors.New("ground truth unavailable")

	// ErrInsufficientData indicates that too few predictions could be
	// aligned with the ground truth to compute a score.
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %s", e.Entity, strings.Join(e.Errors, "; "))
}

// Is reports whether target is ErrValidation so callers can classify any
// ValidationError with errors.Is.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// InsufficientDataError reports how many points could be aligned and how
// many are required.
type InsufficientDataError struct {
	Got      int
	Required int
}

// Error implements the error interface for InsufficientDataError.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d aligned points, at least %d required", e.Got, e.Required)
}

// Is reports whether target is ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
