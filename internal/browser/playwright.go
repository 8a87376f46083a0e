// internal/browser/playwright.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser/stealth"
	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

// PlaywrightLauncher starts Firefox, Edge or WebKit through Playwright.
type PlaywrightLauncher struct {
	logger *zap.Logger
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.logger.Info("Launching browser through Playwright.", zap.String("engine", opts.Engine), zap.Bool("headless", opts.Headless))

	browserName := "chromium"
	switch opts.Engine {
	case config.EngineFirefox:
		browserName = "firefox"
	case config.EngineWebKit:
		browserName = "webkit"
	}
	if opts.InstallDrivers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{browserName}}); err != nil {
			return nil, fmt.Errorf("could not install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecPath)
	}

	var browser playwright.Browser
	switch opts.Engine {
	case config.EngineFirefox:
		browser, err = pw.Firefox.Launch(launch)
	case config.EngineWebKit:
		browser, err = pw.WebKit.Launch(launch)
	case config.EngineEdge:
		launch.Channel = playwright.String("msedge")
		launch.Args = append(launch.Args, "--disable-blink-features=AutomationControlled")
		browser, err = pw.Chromium.Launch(launch)
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, opts.Engine)
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch %s: %w", opts.Engine, err)
	}

	w, h := opts.window()
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(opts.userAgent()),
		Viewport:  &playwright.Size{Width: w, Height: h},
		Locale:    playwright.String("en-US"),
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealth.Script())}); err != nil {
		l.logger.Warn("Could not install evasions script.", zap.Error(err))
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("could not open page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeouts.Script.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(opts.Timeouts.PageLoad.Milliseconds()))

	l.logger.Info("Browser launched.", zap.String("engine", opts.Engine))
	return &playwrightDriver{
		engine:   opts.Engine,
		logger:   l.logger,
		timeouts: opts.Timeouts,
		pw:       pw,
		browser:  browser,
		bctx:     bctx,
		page:     page,
		seen:     map[playwright.Page]bool{page: true},
	}, nil
}

type playwrightDriver struct {
	engine   string
	logger   *zap.Logger
	timeouts config.TimeoutsConfig

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	seen    map[playwright.Page]bool
}

func (d *playwrightDriver) Engine() string { return d.engine }

func (d *playwrightDriver) current() playwright.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

// budget converts the time left on ctx, capped at limit, into Playwright
// milliseconds.
func budget(ctx context.Context, limit time.Duration) *float64 {
	return playwright.Float(float64(remaining(ctx, limit).Milliseconds()))
}

func (d *playwrightDriver) locator(e Element) playwright.Locator {
	var sel string
	if e.Locator.Strategy == ByXPath {
		sel = "xpath=" + e.Locator.Value
	} else {
		css, _ := e.Locator.Selector()
		sel = "css=" + css
	}
	return d.current().Locator(sel).Nth(e.Index)
}

func (d *playwrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.current().Goto(url, playwright.PageGotoOptions{
		Timeout:   budget(ctx, d.timeouts.PageLoad),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, mapPlaywrightError(err))
	}
	return nil
}

func (d *playwrightDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.current().URL(), nil
}

func (d *playwrightDriver) eval(ctx context.Context, script string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := d.current().Evaluate(script)
	if err != nil {
		return nil, mapPlaywrightError(err)
	}
	return json.Marshal(v)
}

func (d *playwrightDriver) Evaluate(ctx context.Context, script string, out any) error {
	raw, err := d.eval(ctx, script)
	if err != nil || out == nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (d *playwrightDriver) element(ctx context.Context, e Element, body string, out any) error {
	raw, err := d.eval(ctx, elementScript(e, body))
	if err != nil {
		return err
	}
	var res scriptResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode result for %s: %w", e, err)
	}
	if !res.Found {
		return fmt.Errorf("%w: %s", ErrNotFound, e)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(res.Value, out)
}

func (d *playwrightDriver) Count(ctx context.Context, l Locator) (int, error) {
	var n int
	err := d.Evaluate(ctx, countScript(l), &n)
	return n, err
}

func (d *playwrightDriver) boolean(ctx context.Context, e Element, body string) (bool, error) {
	var ok bool
	err := d.element(ctx, e, body, &ok)
	return ok, err
}

func (d *playwrightDriver) Visible(ctx context.Context, e Element) (bool, error) {
	return d.boolean(ctx, e, visibleBody)
}

func (d *playwrightDriver) Clickable(ctx context.Context, e Element) (bool, error) {
	return d.boolean(ctx, e, clickableBody)
}

// present fails fast with ErrNotFound so native actions do not sit out
// Playwright's auto-wait on a missing element.
func (d *playwrightDriver) present(ctx context.Context, e Element) error {
	n, err := d.Count(ctx, e.Locator)
	if err != nil {
		return err
	}
	if e.Index >= n {
		return fmt.Errorf("%w: %s", ErrNotFound, e)
	}
	return nil
}

func (d *playwrightDriver) Click(ctx context.Context, e Element) error {
	if err := d.present(ctx, e); err != nil {
		return err
	}
	if err := d.locator(e).Click(playwright.LocatorClickOptions{Timeout: budget(ctx, d.timeouts.Implicit)}); err != nil {
		return fmt.Errorf("click %s: %w", e, mapPlaywrightError(err))
	}
	return nil
}

func (d *playwrightDriver) ScriptClick(ctx context.Context, e Element) error {
	return d.element(ctx, e, clickBody, nil)
}

func (d *playwrightDriver) Clear(ctx context.Context, e Element) error {
	return d.element(ctx, e, clearBody, nil)
}

func (d *playwrightDriver) Type(ctx context.Context, e Element, text string) error {
	if err := d.present(ctx, e); err != nil {
		return err
	}
	err := d.locator(e).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: budget(ctx, d.timeouts.Implicit)})
	return mapPlaywrightError(err)
}

func (d *playwrightDriver) SelectValue(ctx context.Context, e Element, value string) error {
	ok, err := d.boolean(ctx, e, selectBody(value))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: option %q in %s", ErrNotFound, value, e)
	}
	return nil
}

func (d *playwrightDriver) ScrollIntoView(ctx context.Context, e Element) error {
	return d.element(ctx, e, scrollBody, nil)
}

func (d *playwrightDriver) Highlight(ctx context.Context, e Element) error {
	return d.element(ctx, e, highlightBody, nil)
}

func (d *playwrightDriver) Text(ctx context.Context, e Element) (string, error) {
	var s string
	err := d.element(ctx, e, textBody, &s)
	return s, err
}

func (d *playwrightDriver) Attribute(ctx context.Context, e Element, name string) (string, bool, error) {
	var v *string
	if err := d.element(ctx, e, attributeBody(name), &v); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (d *playwrightDriver) OuterHTML(ctx context.Context, e Element) (string, error) {
	var s string
	err := d.element(ctx, e, outerHTMLBody, &s)
	return s, err
}

func (d *playwrightDriver) Mark(ctx context.Context, e Element, token string) error {
	return d.element(ctx, e, markBody(token), nil)
}

func (d *playwrightDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := d.current().Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Timeout:  budget(ctx, d.timeouts.Script),
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", mapPlaywrightError(err))
	}
	return buf, nil
}

func (d *playwrightDriver) SwitchToNewTab(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	var fresh playwright.Page
	for _, p := range d.bctx.Pages() {
		if !d.seen[p] {
			d.seen[p] = true
			fresh = p
		}
	}
	if fresh != nil {
		d.page = fresh
	}
	d.mu.Unlock()

	if fresh == nil {
		return false, nil
	}
	if err := fresh.BringToFront(); err != nil {
		return true, mapPlaywrightError(err)
	}
	err := fresh.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: budget(ctx, d.timeouts.PageLoad),
	})
	d.logger.Debug("Switched to new tab.", zap.String("url", fresh.URL()))
	return true, mapPlaywrightError(err)
}

func (d *playwrightDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	var errs []error
	if err := d.bctx.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	d.pw = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close %s: %w", d.engine, err)
	}
	return nil
}

func mapPlaywrightError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(err.Error(), "not attached to the DOM"),
		strings.Contains(err.Error(), "Element is detached"):
		return fmt.Errorf("%w: %v", ErrStaleReference, err)
	}
	return err
}
