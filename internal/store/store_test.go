package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/storefront-e2e/internal/reporting"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool
}

func newStore(t *testing.T, mockPool pgxmock.PgxPoolIface, logger *zap.Logger) *Store {
	t.Helper()
	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s
}

var started = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleRun() *reporting.Run {
	return &reporting.Run{
		ID:      "run-1",
		Title:   "Storefront E2E",
		Engine:  "chrome",
		Started: started,
		Tests: []*reporting.Test{{
			ID:      "test-1",
			Name:    "Storefront: add to cart",
			Started: started,
			Entries: []reporting.Entry{
				{Status: reporting.StatusInfo, Message: "started", Time: started},
				{Status: reporting.StatusFail, Message: "no quantity selector", Screenshot: "AAAA", Time: started.Add(time.Second)},
			},
		}},
	}
}

func TestNew(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool := newMock(t)
		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err := New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	mockPool := newMock(t)
	s := newStore(t, mockPool, zap.NewNop())

	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS e2e_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("writes run, tests and entries in one transaction", func(t *testing.T) {
		mockPool := newMock(t)
		s := newStore(t, mockPool, zap.NewNop())
		run := sampleRun()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("run-1", "Storefront E2E", "chrome", started).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertTest)).
			WithArgs("test-1", "run-1", "Storefront: add to cart", "fail", started).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).
			WithArgs("test-1", 0, "info", "started", "", started).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).
			WithArgs("test-1", 1, "fail", "no quantity selector", "AAAA", started.Add(time.Second)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		require.NoError(t, s.SaveRun(ctx, run))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rolls back when an insert fails", func(t *testing.T) {
		mockPool := newMock(t)
		core, logs := observer.New(zapcore.ErrorLevel)
		s := newStore(t, mockPool, zap.New(core))
		dbErr := errors.New("constraint violation")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertTest)).WillReturnError(dbErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRun())
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "test-1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.Len(), "a clean rollback is not logged")
	})

	t.Run("later saves only send new entries", func(t *testing.T) {
		mockPool := newMock(t)
		s := newStore(t, mockPool, zap.NewNop())
		run := sampleRun()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertTest)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WithArgs("test-1", 0, "info", "started", "", started).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WithArgs("test-1", 1, "fail", "no quantity selector", "AAAA", started.Add(time.Second)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		require.NoError(t, s.SaveRun(ctx, run))

		run.Tests[0].Entries = append(run.Tests[0].Entries,
			reporting.Entry{Status: reporting.StatusInfo, Message: "cleanup", Screenshot: "BBBB", Time: started.Add(2 * time.Second)})
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertTest)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WithArgs("test-1", 2, "info", "cleanup", "BBBB", started.Add(2*time.Second)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		require.NoError(t, s.SaveRun(ctx, run))

		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("a failed save is retried in full", func(t *testing.T) {
		mockPool := newMock(t)
		s := newStore(t, mockPool, zap.NewNop())
		run := sampleRun()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertTest)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WillReturnError(errors.New("connection reset"))
		mockPool.ExpectRollback()
		require.Error(t, s.SaveRun(ctx, run))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertTest)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WithArgs("test-1", 0, "info", "started", "", started).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEntry)).WithArgs("test-1", 1, "fail", "no quantity selector", "AAAA", started.Add(time.Second)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		require.NoError(t, s.SaveRun(ctx, run))

		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		mockPool := newMock(t)
		s := newStore(t, mockPool, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		err := s.SaveRun(ctx, sampleRun())
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func strp(s string) *string { return &s }

func timep(t time.Time) *time.Time { return &t }

var loadColumns = []string{"title", "engine", "started_at", "id", "name", "started_at", "status", "message", "screenshot", "logged_at"}

func TestLoadRun(t *testing.T) {
	ctx := context.Background()

	t.Run("groups entries by test", func(t *testing.T) {
		mockPool := newMock(t)
		s := newStore(t, mockPool, zap.NewNop())

		rows := pgxmock.NewRows(loadColumns).
			AddRow("Storefront E2E", "edge", started, strp("t1"), strp("search"), timep(started), strp("info"), strp("started"), strp(""), timep(started)).
			AddRow("Storefront E2E", "edge", started, strp("t1"), strp("search"), timep(started), strp("pass"), strp("done"), strp("AAAA"), timep(started.Add(time.Second))).
			AddRow("Storefront E2E", "edge", started, strp("t2"), strp("cart"), timep(started.Add(time.Minute)), nil, nil, nil, nil)
		mockPool.ExpectQuery("FROM e2e_runs r").WithArgs("run-9").WillReturnRows(rows)

		run, err := s.LoadRun(ctx, "run-9")
		require.NoError(t, err)
		assert.Equal(t, "run-9", run.ID)
		assert.Equal(t, "edge", run.Engine)
		require.Len(t, run.Tests, 2)
		assert.Equal(t, "search", run.Tests[0].Name)
		require.Len(t, run.Tests[0].Entries, 2)
		assert.Equal(t, reporting.StatusPass, run.Tests[0].Outcome())
		assert.Equal(t, "AAAA", run.Tests[0].Entries[1].Screenshot)
		assert.Empty(t, run.Tests[1].Entries)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown run", func(t *testing.T) {
		mockPool := newMock(t)
		s := newStore(t, mockPool, zap.NewNop())
		mockPool.ExpectQuery("FROM e2e_runs r").WithArgs("missing").WillReturnRows(pgxmock.NewRows(loadColumns))

		_, err := s.LoadRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestSink(t *testing.T) {
	mockPool := newMock(t)
	s := newStore(t, mockPool, zap.NewNop())
	closed := false
	sink := NewSink(s, func() { closed = true })

	run := &reporting.Run{ID: "r", Title: "t", Engine: "chrome", Started: started}
	mockPool.ExpectBegin()
	mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WithArgs("r", "t", "chrome", started).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()

	var _ reporting.Sink = sink
	require.NoError(t, sink.Write(context.Background(), run))
	require.NoError(t, sink.Close())
	assert.True(t, closed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
