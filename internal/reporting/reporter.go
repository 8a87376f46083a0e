package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reporter accumulates test entries and flushes the whole run to every sink
// after each entry. It is safe for concurrent use by parallel scenarios.
type Reporter struct {
	logger *zap.Logger
	sinks  []Sink
	now    func() time.Time

	mu  sync.Mutex
	run *Run

	// writeMu serializes flushes so an older snapshot never lands last.
	writeMu sync.Mutex
}

// New starts an empty run.
func New(title, engine string, logger *zap.Logger, sinks ...Sink) *Reporter {
	return &Reporter{
		logger: logger.Named("reporting"),
		sinks:  sinks,
		now:    time.Now,
		run: &Run{
			ID:      uuid.NewString(),
			Title:   title,
			Engine:  engine,
			Started: time.Now().UTC(),
		},
	}
}

// RunID returns the identifier of the run being recorded.
func (r *Reporter) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.ID
}

// Snapshot returns a copy of the run as recorded so far.
func (r *Reporter) Snapshot() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.clone()
}

// CreateTest adds a named test to the run.
func (r *Reporter) CreateTest(name string) *TestHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &Test{ID: uuid.NewString(), Name: name, Started: r.now().UTC()}
	r.run.Tests = append(r.run.Tests, t)
	return &TestHandle{r: r, test: t}
}

func (r *Reporter) log(ctx context.Context, t *Test, status Status, msg, shot string) error {
	r.mu.Lock()
	t.Entries = append(t.Entries, Entry{Status: status, Message: msg, Screenshot: shot, Time: r.now().UTC()})
	r.mu.Unlock()

	return r.Flush(ctx)
}

// Flush writes the current run to every sink, continuing past failing sinks.
func (r *Reporter) Flush(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	snap := r.Snapshot()

	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ctx, snap); err != nil {
			r.logger.Warn("Report sink write failed.", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes once more and closes every sink.
func (r *Reporter) Close(ctx context.Context) error {
	errs := []error{r.Flush(ctx)}
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TestHandle logs entries against one test.
type TestHandle struct {
	r    *Reporter
	test *Test
}

// Name returns the test name.
func (h *TestHandle) Name() string { return h.test.Name }

func (h *TestHandle) Info(ctx context.Context, msg, screenshot string) error {
	return h.r.log(ctx, h.test, StatusInfo, msg, screenshot)
}

func (h *TestHandle) Pass(ctx context.Context, msg, screenshot string) error {
	return h.r.log(ctx, h.test, StatusPass, msg, screenshot)
}

func (h *TestHandle) Fail(ctx context.Context, msg, screenshot string) error {
	return h.r.log(ctx, h.test, StatusFail, msg, screenshot)
}

func (h *TestHandle) Warning(ctx context.Context, msg, screenshot string) error {
	return h.r.log(ctx, h.test, StatusWarning, msg, screenshot)
}
