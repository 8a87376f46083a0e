// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/config"
	"github.com/xkilldash9x/storefront-e2e/internal/observability"
	"github.com/xkilldash9x/storefront-e2e/internal/reporting"
	"github.com/xkilldash9x/storefront-e2e/internal/store"
)

// storeProvider creates the run history store. Tests inject a store backed
// by pgxmock instead of a live database.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its pool.
	Create(ctx context.Context, cfg *config.Config) (*store.Store, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider that connects to PostgreSQL.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the database named by database.url.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (*store.Store, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (STOREFRONT_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// newReportCmd creates the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var runID, outputPath, format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Rebuild the report of a stored run",
		Long: `Loads a run recorded with database.persist_runs enabled and renders it
again as HTML, JUnit XML or a JSON summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if outputPath == "" && format == reporting.FormatHTML {
				outputPath = cfg.Report.HTMLPath
			}
			return runReport(ctx, observability.GetLogger(), cfg, runID, outputPath, format, provider)
		},
	}

	reportCmd.Flags().StringVar(&runID, "run", "", "the id of the stored run (required)")
	_ = reportCmd.MarkFlagRequired("run")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file; JUnit and JSON print to stdout when unset")
	reportCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatHTML, "report format: html, junit or json")
	return reportCmd
}

// runReport loads runID from the store and writes it through one sink.
func runReport(ctx context.Context, logger *zap.Logger, cfg *config.Config, runID, outputPath, format string, provider storeProvider) error {
	logger.Info("Starting report generation", zap.String("run_id", runID))

	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	run, err := st.LoadRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	sink, err := reporting.NewSink(format, outputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := sink.Write(ctx, run); err != nil {
		_ = sink.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("Report written", zap.String("run_id", runID), zap.String("format", format), zap.String("path", outputPath), zap.Int("tests", len(run.Tests)))
	return nil
}
