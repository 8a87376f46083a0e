// internal/browser/errors.go
package browser

import "errors"

// The closed set of failures the interaction layer distinguishes. Drivers map
// engine-specific errors onto these so callers can use errors.Is.
var (
	// ErrTimeout means a condition did not hold within its wait budget.
	ErrTimeout = errors.New("timed out waiting for condition")
	// ErrNotFound means an expected element is absent from the page.
	ErrNotFound = errors.New("element not found")
	// ErrStaleReference means an element was detached between lookup and use.
	ErrStaleReference = errors.New("stale element reference")
	// ErrUnsupportedEngine is returned for an unknown engine name.
	ErrUnsupportedEngine = errors.New("unsupported browser engine")
)

// IsTransient reports whether err is a timing failure that may clear up on a
// second attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrStaleReference)
}
