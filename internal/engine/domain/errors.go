package domain

import "errors"

var (
	// ErrInvalidMessage is returned when a broker delivery cannot be parsed
	// into a valid JobMessage
	ErrInvalidMessage = errors.New("invalid job message")

	// ErrUnknownJobType is returned when no handler is registered for a
	// message's type
	ErrUnknownJobType = errors.New("no handler registered for job type")

	// ErrMaxAttemptsExceeded is returned when a retry would push attempt
	// past the configured ceiling
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
)

// RetryableError wraps transient infrastructure errors (broker unreachable,
// DB timeout). They are recovered by broker redelivery, never surfaced to
// the job's terminal state.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
