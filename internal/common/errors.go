// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Validation and state-machine errors.
	ErrValidation           = errors.New("validation failed")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrForbidden            = errors.New("actor not permitted")
	ErrInsufficientPrepared = errors.New("insufficient funds prepared")
	ErrExcessUnconfirmed    = errors.New("excess preparation requires confirmation")
	ErrChangeMismatch       = errors.New("submitted change differs from expected change")

	// Classification errors.
	ErrNoAPIKey             = errors.New("no AI API credential configured")
	ErrClassificationFailed = errors.New("AI classification unavailable")
	ErrMaxRetries           = errors.New("max retries exceeded")

	// Ledger errors.
	ErrLedgerConflict = errors.New("ledger entry appended concurrently")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user with a
// remediation-friendly message, distinct from the internal cause.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}
