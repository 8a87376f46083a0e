// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds and filters retries.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below one are treated as one.
	Attempts int
	// Backoff is the pause before each retry. Zero retries immediately.
	Backoff time.Duration
	// Retryable reports whether a failed attempt may be tried again. Nil
	// treats every error as retryable.
	Retryable func(err error) bool
	// OnRetry, when set, is called before each retry with the number of the
	// attempt that failed and its error.
	OnRetry func(attempt int, err error)
}

// Permanent marks err as not retryable regardless of the policy.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do calls fn until it succeeds, returns a non-retryable error or the attempts
// run out. fn receives the 1-based attempt number. Do returns the number of
// attempts made and the last error, with any Permanent wrapper removed.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err == nil {
				err = cerr
			}
			return attempt - 1, err
		}

		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if attempt == attempts || ctx.Err() != nil {
			return attempt, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return attempt, err
			case <-t.C:
			}
		}
	}
	return attempts, err
}
