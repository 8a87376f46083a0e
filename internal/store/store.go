// Package store keeps a history of suite runs in PostgreSQL so reports can be
// rebuilt later.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/reporting"
)

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DBPool abstracts pgxpool.Pool so tests can use pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists runs with their tests and entries.
type Store struct {
	pool DBPool
	log  *zap.Logger

	mu sync.Mutex
	// saved counts the entries of each test already committed.
	saved map[string]int
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store"), saved: make(map[string]int)}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS e2e_runs (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    engine     TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS e2e_tests (
    id         TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL REFERENCES e2e_runs(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    outcome    TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS e2e_entries (
    test_id    TEXT NOT NULL REFERENCES e2e_tests(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    status     TEXT NOT NULL,
    message    TEXT NOT NULL,
    screenshot TEXT NOT NULL DEFAULT '',
    logged_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (test_id, seq)
);`

// EnsureSchema creates the history tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const (
	sqlUpsertRun = `
        INSERT INTO e2e_runs (id, title, engine, started_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO NOTHING;`
	sqlUpsertTest = `
        INSERT INTO e2e_tests (id, run_id, name, outcome, started_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET outcome = EXCLUDED.outcome;`
	sqlInsertEntry = `
        INSERT INTO e2e_entries (test_id, seq, status, message, screenshot, logged_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (test_id, seq) DO NOTHING;`
)

// SaveRun writes run in one transaction. It is idempotent and only sends the
// entries added since the last successful save, so the whole run can be
// saved after every entry.
func (s *Store) SaveRun(ctx context.Context, run *reporting.Run) error {
	from := s.savedCounts(run)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.saveRun(ctx, tx, run, from); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	for _, t := range run.Tests {
		if n := len(t.Entries); n > s.saved[t.ID] {
			s.saved[t.ID] = n
		}
	}
	s.mu.Unlock()
	return nil
}

// savedCounts returns, per test of run, how many entries are already stored.
func (s *Store) savedCounts(run *reporting.Run) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := make(map[string]int, len(run.Tests))
	for _, t := range run.Tests {
		from[t.ID] = s.saved[t.ID]
	}
	return from
}

func (s *Store) saveRun(ctx context.Context, tx pgx.Tx, run *reporting.Run, from map[string]int) error {
	if _, err := tx.Exec(ctx, sqlUpsertRun, run.ID, run.Title, run.Engine, run.Started.UTC()); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	for _, t := range run.Tests {
		if _, err := tx.Exec(ctx, sqlUpsertTest, t.ID, run.ID, t.Name, string(t.Outcome()), t.Started.UTC()); err != nil {
			return fmt.Errorf("failed to save test %s: %w", t.ID, err)
		}
		for i := from[t.ID]; i < len(t.Entries); i++ {
			e := t.Entries[i]
			if _, err := tx.Exec(ctx, sqlInsertEntry, t.ID, i, string(e.Status), e.Message, e.Screenshot, e.Time.UTC()); err != nil {
				return fmt.Errorf("failed to save entry %d of test %s: %w", i, t.ID, err)
			}
		}
	}
	return nil
}

// LoadRun rebuilds a stored run.
func (s *Store) LoadRun(ctx context.Context, runID string) (*reporting.Run, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT r.title, r.engine, r.started_at,
               t.id, t.name, t.started_at,
               e.status, e.message, e.screenshot, e.logged_at
        FROM e2e_runs r
        LEFT JOIN e2e_tests t ON t.run_id = r.id
        LEFT JOIN e2e_entries e ON e.test_id = t.id
        WHERE r.id = $1
        ORDER BY t.started_at, t.id, e.seq;`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var run *reporting.Run
	var current *reporting.Test
	for rows.Next() {
		var (
			r                           reporting.Run
			testID, testName            *string
			testStarted, logged         *time.Time
			status, message, screenshot *string
		)
		if err := rows.Scan(&r.Title, &r.Engine, &r.Started, &testID, &testName, &testStarted, &status, &message, &screenshot, &logged); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if run == nil {
			r.ID = runID
			run = &r
		}
		if testID == nil {
			continue
		}
		if current == nil || current.ID != *testID {
			current = &reporting.Test{ID: *testID, Name: deref(testName)}
			if testStarted != nil {
				current.Started = *testStarted
			}
			run.Tests = append(run.Tests, current)
		}
		if status == nil {
			continue
		}
		e := reporting.Entry{Status: reporting.Status(*status), Message: deref(message), Screenshot: deref(screenshot)}
		if logged != nil {
			e.Time = *logged
		}
		current.Entries = append(current.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
