package dispatch

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start when the worker is already active.
	ErrAlreadyRunning = errors.New("dispatcher already running")

	// ErrStopped is reported for operations still queued when the dispatcher stops,
	// and for operations submitted after Stop.
	ErrStopped = errors.New("dispatcher stopped")

	// ErrRetryBudgetExhausted wraps a retryable error that persisted past MaxRetries.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrOperationPanicked wraps a panic recovered from an operation.
	ErrOperationPanicked = errors.New("operation panicked")
)

// retryable is implemented by errors that know whether a retry can help.
type retryable interface {
	IsRetryable() bool
}

// retryAfter is implemented by errors carrying a server-specified retry delay.
type retryAfter interface {
	RetryAfter() time.Duration
}

// IsRetryable reports whether any error in err's chain is classified retryable.
func IsRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r) && r.IsRetryable()
}

// RetryAfter returns the server-specified retry delay carried by err, or 0.
func RetryAfter(err error) time.Duration {
	var r retryAfter
	if errors.As(err, &r) {
		return r.RetryAfter()
	}
	return 0
}
