package gateway

import (
	"context"
	"errors"
	"fmt"
)

// RetryableError is implemented by errors that know whether the failed call
// may be attempted again.
type RetryableError interface {
	error
	Retryable() bool
}

// TransientError wraps a failure that may succeed on a later attempt
// (network error, rate limit, server error).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Retryable() bool { return true }

// PermanentError wraps a failure that will not change on retry, for example
// a user who blocked the bot or an edit of a deleted message.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Transient marks err as retryable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// Permanent marks err as not retryable.
func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Err: err}
}

// IsRetryable reports whether err may be retried. Errors that do not
// classify themselves are treated as transient; context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var r RetryableError
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// IsPermanent reports whether err is classified as permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
