package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks a failure as transient. [Policy.Do] retries only
// errors that wrap one; everything else is returned on the first attempt.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Policy describes how an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	// Values below 1 mean a single call.
	Attempts int
	// Delay is the wait before the second call. It doubles after every
	// retry, up to MaxDelay when that is set.
	Delay    time.Duration
	MaxDelay time.Duration
	// OnRetry, if set, is called before each wait with the 1-based number
	// of the failed attempt and its error.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned; cancellation while waiting
// returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	wait := p.Delay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
	}
	return err
}

// Retry is shorthand for an uncapped Policy without a hook.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return Policy{Attempts: attempts, Delay: delay}.Do(ctx, fn)
}

// IsRetryable reports whether err wraps a [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}
