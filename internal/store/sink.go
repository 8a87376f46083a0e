package store

import (
	"context"

	"github.com/xkilldash9x/storefront-e2e/internal/reporting"
)

// Sink records every report flush in the run history.
type Sink struct {
	store   *Store
	cleanup func()
}

// NewSink wraps s as a report sink. cleanup, when set, runs on Close and
// usually closes the connection pool.
func NewSink(s *Store, cleanup func()) *Sink {
	return &Sink{store: s, cleanup: cleanup}
}

func (k *Sink) Write(ctx context.Context, run *reporting.Run) error {
	return k.store.SaveRun(ctx, run)
}

func (k *Sink) Close() error {
	if k.cleanup != nil {
		k.cleanup()
	}
	return nil
}
