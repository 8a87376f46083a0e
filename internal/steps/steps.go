// Package steps binds the shopping-flow Gherkin steps to the storefront page
// layer and records every outcome in the report.
package steps

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/config"
	"github.com/xkilldash9x/storefront-e2e/internal/humanoid"
	"github.com/xkilldash9x/storefront-e2e/internal/observability"
	"github.com/xkilldash9x/storefront-e2e/internal/reporting"
	"github.com/xkilldash9x/storefront-e2e/internal/storefront"
)

// Step expressions.
const (
	stepHome      = `^the user is on the store home page$`
	stepSearch    = `^they search for "([^"]*)"$`
	stepPageTwo   = `^they go to the second results page$`
	stepSelect    = `^they select the third available product$`
	stepAddToCart = `^they add (\d+) units to the cart if available$`
)

// Suite wires scenarios to browsers and the report. One Suite serves every
// scenario of a run; each scenario gets its own provider and session.
type Suite struct {
	cfg      *config.Config
	launcher browser.Launcher
	reporter *reporting.Reporter
	logger   *zap.Logger
}

// NewSuite creates a suite that launches browsers with launcher.
func NewSuite(cfg *config.Config, launcher browser.Launcher, reporter *reporting.Reporter, logger *zap.Logger) *Suite {
	return &Suite{cfg: cfg, launcher: launcher, reporter: reporter, logger: logger}
}

// InitializeScenario registers hooks and steps for one scenario. godog calls
// it once per scenario, so the state captured here is never shared.
func (s *Suite) InitializeScenario(sc *godog.ScenarioContext) {
	st := &scenario{suite: s}

	sc.Before(st.before)
	sc.After(st.after)

	sc.Step(stepHome, st.openHome)
	sc.Step(stepSearch, st.search)
	sc.Step(stepPageTwo, st.goToPageTwo)
	sc.Step(stepSelect, st.selectThird)
	sc.Step(stepAddToCart, st.addToCart)
}

// scenario is the per-scenario state.
type scenario struct {
	suite    *Suite
	logger   *zap.Logger
	provider *browser.Provider
	test     *reporting.TestHandle

	mu   sync.Mutex
	page *storefront.Page
}

func (st *scenario) before(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	cfg := st.suite.cfg
	st.logger = observability.ScenarioLogger(st.suite.logger, sc.Name, cfg.Browser.Engine)
	st.provider = browser.NewProvider(cfg, st.suite.launcher, st.logger)
	st.test = st.suite.reporter.CreateTest("Storefront: " + sc.Name)

	st.logger.Info("Scenario started.")
	st.report(ctx, st.test.Info, "Scenario started: "+sc.Name, "")
	return ctx, nil
}

func (st *scenario) after(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
	shot := st.screenshot(ctx)
	if err != nil {
		st.logger.Error("Scenario failed.", zap.Error(err))
		st.report(ctx, st.test.Fail, "Scenario failed: "+err.Error(), shot)
	} else {
		st.logger.Info("Scenario passed.")
		st.report(ctx, st.test.Pass, "Scenario passed", shot)
	}

	if qerr := st.provider.Quit(context.WithoutCancel(ctx)); qerr != nil {
		st.logger.Warn("Could not close the browser.", zap.Error(qerr))
	}
	return ctx, nil
}

// pageFor returns the storefront bound to this scenario's session, starting
// the browser on first use.
func (st *scenario) pageFor(ctx context.Context) (*storefront.Page, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.page != nil {
		return st.page, nil
	}

	session, err := st.provider.Session(ctx)
	if err != nil {
		return nil, err
	}
	cfg := st.suite.cfg
	pacer := humanoid.New(cfg.Humanoid, st.logger)
	page, err := storefront.New(session, cfg.Site, pacer, st.logger, cfg.Report.ScreenshotsDir)
	if err != nil {
		return nil, err
	}
	st.page = page
	return page, nil
}

// screenshot captures the active session, or returns "" when there is none.
func (st *scenario) screenshot(ctx context.Context) string {
	if !st.provider.Active() {
		return ""
	}
	session, err := st.provider.Session(ctx)
	if err != nil {
		return ""
	}
	shot, err := session.ScreenshotBase64(ctx)
	if err != nil {
		st.logger.Debug("Could not capture screenshot.", zap.Error(err))
		return ""
	}
	return shot
}

func (st *scenario) report(ctx context.Context, log func(context.Context, string, string) error, msg, shot string) {
	if err := log(ctx, msg, shot); err != nil {
		st.logger.Warn("Could not write report entry.", zap.Error(err))
	}
}

// run executes one step against the page, then logs its outcome with a
// screenshot to both the report and the scenario log.
func (st *scenario) run(ctx context.Context, step string, fn func(ctx context.Context, p *storefront.Page) (string, error)) error {
	page, err := st.pageFor(ctx)
	var msg string
	if err == nil {
		msg, err = fn(ctx, page)
	}

	if err != nil {
		var cartErr *storefront.CartAddError
		if errors.As(err, &cartErr) {
			err = fmt.Errorf("%s: %s", step, cartErr.Error())
		} else {
			err = fmt.Errorf("%s: %w", step, err)
		}
		st.logger.Error("Step failed.", zap.String("step", step), zap.Error(err))
		st.report(ctx, st.test.Fail, err.Error(), st.screenshot(ctx))
		return err
	}

	st.logger.Info(msg, zap.String("step", step))
	st.report(ctx, st.test.Pass, msg, st.screenshot(ctx))
	return nil
}

func (st *scenario) openHome(ctx context.Context) error {
	return st.run(ctx, "open home page", func(ctx context.Context, p *storefront.Page) (string, error) {
		return "Opened the store home page", p.OpenHome(ctx)
	})
}

func (st *scenario) search(ctx context.Context, term string) error {
	return st.run(ctx, "search", func(ctx context.Context, p *storefront.Page) (string, error) {
		return fmt.Sprintf("Searched for %q", term), p.Search(ctx, term)
	})
}

func (st *scenario) goToPageTwo(ctx context.Context) error {
	return st.run(ctx, "go to results page 2", func(ctx context.Context, p *storefront.Page) (string, error) {
		return "Moved to the second results page", p.GoToPage2(ctx)
	})
}

func (st *scenario) selectThird(ctx context.Context) error {
	return st.run(ctx, "select third product", func(ctx context.Context, p *storefront.Page) (string, error) {
		sel, err := p.SelectThirdResult(ctx)
		if err != nil {
			return "", err
		}
		title := sel.ProductTitle
		if title == "" {
			title = sel.Title
		}
		return fmt.Sprintf("Opened the third product: %s", title), nil
	})
}

func (st *scenario) addToCart(ctx context.Context, quantity int) error {
	return st.run(ctx, "add to cart", func(ctx context.Context, p *storefront.Page) (string, error) {
		res, err := p.AddToCart(ctx, quantity)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added %d units to the cart (%s, attempt %d)", quantity, res.ConfirmedBy, res.Attempts), nil
	})
}
