// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/config"
	"github.com/xkilldash9x/storefront-e2e/internal/observability"
	"github.com/xkilldash9x/storefront-e2e/internal/reporting"
	"github.com/xkilldash9x/storefront-e2e/internal/steps"
	"github.com/xkilldash9x/storefront-e2e/internal/store"
)

// ErrScenariosFailed is returned by run when at least one scenario failed.
var ErrScenariosFailed = errors.New("scenarios failed")

// launcherFactory returns the launcher for one engine.
type launcherFactory func(engine string, logger *zap.Logger) (browser.Launcher, error)

var browserLaunchers launcherFactory = browser.NewLauncher

func newRunCmd(launchers launcherFactory, stores storeProvider) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [feature paths...]",
		Short: "Run the storefront scenarios",
		Long: `Runs the Gherkin scenarios against a real browser and writes the HTML
report after every step. With --engines the suite runs once per engine in
parallel, each with its own report files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Run.Features = args
			}
			return runSuites(ctx, observability.GetLogger(), cfg, launchers, stores, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().String("engine", config.EngineChrome, "browser engine: "+strings.Join(config.SupportedEngines, ", "))
	runCmd.Flags().StringSlice("engines", nil, "run the suite once per engine, in parallel")
	runCmd.Flags().StringSlice("features", []string{"features"}, "feature files or directories")
	runCmd.Flags().String("tags", "", "tag expression selecting scenarios, e.g. \"@cart && ~@wip\"")
	runCmd.Flags().String("format", "pretty", "godog output format")
	runCmd.Flags().Int("concurrency", 1, "scenarios run at once")
	runCmd.Flags().Bool("headless", false, "run the browser without a window")
	return runCmd
}

// runSuites runs the suite for every configured engine and fails when any
// scenario failed on any engine.
func runSuites(ctx context.Context, logger *zap.Logger, cfg *config.Config, launchers launcherFactory, stores storeProvider, out io.Writer) error {
	engines := cfg.Run.Engines
	if len(engines) == 0 {
		engines = []string{cfg.Browser.Engine}
	}
	multi := len(engines) > 1

	// Parallel suites print to one writer.
	var mu sync.Mutex
	output := out
	if multi {
		output = &lockedWriter{w: out, mu: &mu}
	}

	var (
		failedMu sync.Mutex
		failed   []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, engine := range engines {
		engineCfg := forEngine(cfg, engine, multi)
		g.Go(func() error {
			status, err := runSuite(gctx, logger, engineCfg, launchers, stores, output)
			if err != nil {
				return fmt.Errorf("%s: %w", engine, err)
			}
			if status != 0 {
				failedMu.Lock()
				failed = append(failed, engine)
				failedMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w on %s", ErrScenariosFailed, strings.Join(failed, ", "))
	}
	logger.Info("All scenarios passed.", zap.Strings("engines", engines))
	return nil
}

// runSuite runs every scenario on one engine and returns godog's status.
func runSuite(ctx context.Context, logger *zap.Logger, cfg *config.Config, launchers launcherFactory, stores storeProvider, out io.Writer) (int, error) {
	engine := cfg.Browser.Engine
	logger = logger.With(zap.String("engine", engine))

	launcher, err := launchers(engine, logger)
	if err != nil {
		return 0, err
	}
	sinks, err := buildSinks(ctx, logger, cfg, stores)
	if err != nil {
		return 0, err
	}

	reporter := reporting.New(cfg.Report.Title, engine, logger, sinks...)
	defer func() {
		if err := reporter.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()
	logger.Info("Starting run.", zap.String("run_id", reporter.RunID()), zap.Strings("features", cfg.Run.Features))

	suite := steps.NewSuite(cfg, launcher, reporter, logger)
	return suite.Run(ctx, steps.RunOptions{
		Paths:       cfg.Run.Features,
		Tags:        cfg.Run.Tags,
		Format:      cfg.Run.Format,
		Concurrency: cfg.Run.Concurrency,
		Output:      out,
	})
}

// buildSinks creates the report sinks named by the configuration.
func buildSinks(ctx context.Context, logger *zap.Logger, cfg *config.Config, stores storeProvider) ([]reporting.Sink, error) {
	var sinks []reporting.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	files := []struct{ format, path string }{
		{reporting.FormatHTML, cfg.Report.HTMLPath},
		{reporting.FormatJUnit, cfg.Report.JUnitPath},
		{reporting.FormatJSON, cfg.Report.JSONPath},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		s, err := reporting.NewSink(f.format, f.path)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create %s report: %w", f.format, err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Database.PersistRuns {
		st, cleanup, err := stores.Create(ctx, cfg)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			if cleanup != nil {
				cleanup()
			}
			closeAll()
			return nil, err
		}
		sinks = append(sinks, store.NewSink(st, cleanup))
		logger.Debug("Run history enabled.")
	}
	return sinks, nil
}

// forEngine copies cfg for one engine. When several engines share a run,
// report files get the engine name as a suffix.
func forEngine(cfg *config.Config, engine string, multi bool) *config.Config {
	c := *cfg
	c.Browser.Engine = engine
	c.Run.Engines = nil
	if multi {
		c.Report.HTMLPath = enginePath(c.Report.HTMLPath, engine)
		c.Report.JUnitPath = enginePath(c.Report.JUnitPath, engine)
		c.Report.JSONPath = enginePath(c.Report.JSONPath, engine)
		if c.Report.ScreenshotsDir != "" {
			c.Report.ScreenshotsDir = filepath.Join(c.Report.ScreenshotsDir, engine)
		}
	}
	return &c
}

// enginePath turns "reports/index.html" into "reports/index-firefox.html".
func enginePath(path, engine string) string {
	if path == "" || path == "stdout" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + engine + ext
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
