package steps

import (
	"context"
	"errors"
	"io"

	"github.com/cucumber/godog"
	"go.uber.org/zap"
)

// RunOptions selects what the runner executes and how it prints progress.
type RunOptions struct {
	Paths       []string
	Tags        string
	Format      string
	Concurrency int
	Output      io.Writer
	// Features are in-memory feature files, used instead of Paths when set.
	Features []godog.Feature
}

// Run executes the selected scenarios and returns godog's exit status:
// 0 when every scenario passed, non-zero otherwise.
func (s *Suite) Run(ctx context.Context, opts RunOptions) (int, error) {
	if len(opts.Paths) == 0 && len(opts.Features) == 0 {
		return 0, errors.New("no feature paths to run")
	}
	if opts.Format == "" {
		opts.Format = "pretty"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	suite := godog.TestSuite{
		Name: "storefront",
		TestSuiteInitializer: func(tsc *godog.TestSuiteContext) {
			tsc.BeforeSuite(func() {
				s.logger.Info("Suite started.", zap.Strings("paths", opts.Paths), zap.String("tags", opts.Tags))
			})
			tsc.AfterSuite(func() {
				if err := s.reporter.Flush(ctx); err != nil {
					s.logger.Warn("Final report flush failed.", zap.Error(err))
				}
				s.logger.Info("Suite finished.", zap.String("run_id", s.reporter.RunID()))
			})
		},
		ScenarioInitializer: s.InitializeScenario,
		Options: &godog.Options{
			Format:          opts.Format,
			Paths:           opts.Paths,
			Tags:            opts.Tags,
			Concurrency:     opts.Concurrency,
			Output:          opts.Output,
			Strict:          true,
			NoColors:        opts.Output != nil,
			DefaultContext:  ctx,
			FeatureContents: opts.Features,
		},
	}
	return suite.Run(), nil
}
