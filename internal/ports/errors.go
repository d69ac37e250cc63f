package ports

import (
	"context"
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur while persisting the
// leaderboard.
var (
	// ErrBlobNotFound indicates that a blob key does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrVersionConflict indicates that a conditional write lost a race
	// against another writer.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreUnavailable indicates that the backing medium could not be
	// reached or written.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError represents a failed leaderboard persistence operation.
// It tells the caller the operation, how many attempts were made, and the
// underlying cause.
type StoreError struct {
	// Operation is the store method that failed (load, upsert, reset).
	Operation string

	// Attempts is the number of attempts made before giving up.
	Attempts int

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store error: operation=%s, err=%v", e.Operation, e.Err)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(", attempts=%d", e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError for a single attempt.
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{Operation: operation, Attempts: 1, Err: err}
}

// IsRetryable reports whether err is a transient store failure worth
// retrying. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrStoreUnavailable)
}
