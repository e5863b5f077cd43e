// Package fetch provides the retry strategy injected into network-bound
// collaborators (git fetches, registry index syncs).
//
// Transient failures are wrapped with [Retryable] so the strategy knows to
// attempt the operation again with exponential backoff; permanent failures
// (404, auth) pass through immediately. Each attempt runs under its own
// timeout, and exceeding it counts as a transient failure rather than an
// immediate hard failure.
package fetch

import (
	"context"
	"errors"
	"time"

	ccerrors "github.com/ccgo-build/ccgo/pkg/errors"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, 5xx responses) with this type
// so that [Strategy.Do] knows to attempt the operation again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks an error as transient. A nil error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped with RetryableError.
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Strategy bounds retries for one class of network operation.
// The zero value is not usable; use Default or construct explicitly.
type Strategy struct {
	Attempts int           // total attempts, minimum 1
	Delay    time.Duration // initial backoff, doubled after each failure
	Timeout  time.Duration // per-attempt timeout, 0 for none
}

// Default returns the standard strategy: 3 attempts, 1s initial backoff,
// 30s per-attempt timeout.
func Default() Strategy {
	return Strategy{Attempts: 3, Delay: time.Second, Timeout: 30 * time.Second}
}

// Do executes fn until it succeeds, fails permanently, or attempts are
// exhausted. Only errors wrapped with [Retryable] are retried; the delay
// doubles after each failed attempt. A per-attempt timeout expiry is
// treated as transient. Returns the last error, or ctx.Err() if cancelled.
func (s Strategy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(s.Attempts, 1)
	delay := s.Delay
	var lastErr error

	for i := range attempts {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

func (s Strategy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return Retryable(ccerrors.Wrap(ccerrors.ErrCodeTimeout, err, "operation exceeded %s", s.Timeout))
	}
	return err
}
