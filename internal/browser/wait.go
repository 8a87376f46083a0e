// internal/browser/wait.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Condition reports whether a page state holds. ErrNotFound and
// ErrStaleReference results count as "not yet" while waiting; any other error
// aborts the wait.
type Condition func(ctx context.Context, d Driver) (bool, error)

// Waiter polls conditions at a fixed interval until they hold or the timeout
// expires.
type Waiter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WithTimeout returns a copy of w using timeout.
func (w Waiter) WithTimeout(timeout time.Duration) Waiter {
	w.Timeout = timeout
	return w
}

// Until blocks until cond holds. On expiry it returns an error wrapping
// ErrTimeout that names desc and the last transient error seen.
func (w Waiter) Until(ctx context.Context, d Driver, desc string, cond Condition) error {
	_, err := w.UntilAny(ctx, d, desc, cond)
	return err
}

// UntilAny blocks until one of conds holds and returns its index. Conditions
// are checked in order on every poll.
func (w Waiter) UntilAny(ctx context.Context, d Driver, desc string, conds ...Condition) (int, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	waitCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		for i, cond := range conds {
			ok, err := cond(waitCtx, d)
			switch {
			case err == nil && ok:
				return i, nil
			case err == nil:
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrStaleReference), errors.Is(err, ErrTimeout):
				last = err
			case waitCtx.Err() != nil:
				// The condition was cut short by the deadline below.
			default:
				return -1, fmt.Errorf("waiting for %s: %w", desc, err)
			}
		}

		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return -1, err
			}
			if last != nil {
				return -1, fmt.Errorf("%w after %s: %s (last error: %v)", ErrTimeout, w.Timeout, desc, last)
			}
			return -1, fmt.Errorf("%w after %s: %s", ErrTimeout, w.Timeout, desc)
		case <-ticker.C:
		}
	}
}

// PresenceOf holds when at least one element matches l.
func PresenceOf(l Locator) Condition {
	return func(ctx context.Context, d Driver) (bool, error) {
		n, err := d.Count(ctx, l)
		return n > 0, err
	}
}

// VisibilityOf holds when e exists and is displayed.
func VisibilityOf(e Element) Condition {
	return func(ctx context.Context, d Driver) (bool, error) {
		return d.Visible(ctx, e)
	}
}

// AnyVisible holds when any element matching l is displayed.
func AnyVisible(l Locator) Condition {
	return func(ctx context.Context, d Driver) (bool, error) {
		n, err := d.Count(ctx, l)
		if err != nil {
			return false, err
		}
		for i := 0; i < n; i++ {
			ok, err := d.Visible(ctx, l.Nth(i))
			if err != nil {
				if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleReference) {
					continue
				}
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// Clickable holds when e is displayed and enabled.
func Clickable(e Element) Condition {
	return func(ctx context.Context, d Driver) (bool, error) {
		return d.Clickable(ctx, e)
	}
}

// URLContains holds when the current URL contains fragment.
func URLContains(fragment string) Condition {
	return func(ctx context.Context, d Driver) (bool, error) {
		u, err := d.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(u, fragment), nil
	}
}

// AnyOf holds when any of conds holds.
func AnyOf(conds ...Condition) Condition {
	return func(ctx context.Context, d Driver) (bool, error) {
		var last error
		for _, c := range conds {
			ok, err := c(ctx, d)
			if err == nil && ok {
				return true, nil
			}
			if err != nil {
				last = err
			}
		}
		return false, last
	}
}
