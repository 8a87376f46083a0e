// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser/stealth"
	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

// ChromeLauncher starts Chrome through the DevTools protocol.
type ChromeLauncher struct {
	logger *zap.Logger
}

// Launch starts a Chrome process, applies the stealth persona and returns a
// driver bound to its first tab.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	l.logger.Info("Launching Chrome.", zap.Bool("headless", opts.Headless))

	// The browser must outlive the launching call, so it is not bound to ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	d := &chromeDriver{
		logger:   l.logger,
		timeouts: opts.Timeouts,
		browser:  browserCtx,
		tab:      browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		seen: make(map[target.ID]bool),
	}

	startCtx, stop := CombineContext(browserCtx, ctx)
	defer stop()
	persona := stealth.DefaultPersona(opts.userAgent())
	if err := chromedp.Run(startCtx, stealth.Apply(persona, l.logger)); err != nil {
		d.cancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	if t := chromedp.FromContext(browserCtx).Target; t != nil {
		d.seen[t.TargetID] = true
	}
	l.logger.Info("Chrome launched.")
	return d, nil
}

// allocatorOptions assembles the launch flags: the chromedp defaults with
// automation markers suppressed, the persona user agent and any extra args.
func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	w, h := opts.window()
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.WindowSize(w, h),
		chromedp.UserAgent(opts.userAgent()),
	)
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	for _, arg := range opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			out = append(out, chromedp.Flag(name, value))
		} else {
			out = append(out, chromedp.Flag(name, true))
		}
	}
	if runtime.GOOS == "linux" {
		out = append(out,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return out
}

type chromeDriver struct {
	logger   *zap.Logger
	timeouts config.TimeoutsConfig

	mu      sync.Mutex
	browser context.Context
	tab     context.Context
	tabStop context.CancelFunc
	cancel  context.CancelFunc
	seen    map[target.ID]bool
}

func (d *chromeDriver) Engine() string { return config.EngineChrome }

// run executes actions on the current tab until ctx is done.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	tab := d.tab
	d.mu.Unlock()

	runCtx, stop := CombineContext(tab, ctx)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return mapChromeError(err)
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, remaining(ctx, d.timeouts.PageLoad))
	defer cancel()
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *chromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

// eval runs a script under the script timeout and stores the raw JSON result.
func (d *chromeDriver) eval(ctx context.Context, script string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, remaining(ctx, d.timeouts.Script))
	defer cancel()
	var raw []byte
	if err := d.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}
	return raw, nil
}

func (d *chromeDriver) Evaluate(ctx context.Context, script string, out any) error {
	raw, err := d.eval(ctx, script)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// element runs an element script and decodes its value into out.
func (d *chromeDriver) element(ctx context.Context, e Element, body string, out any) error {
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

func (d *chromeDriver) Count(ctx context.Context, l Locator) (int, error) {
	raw, err := d.eval(ctx, countScript(l))
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode count for %s: %w", l, err)
	}
	return n, nil
}

func (d *chromeDriver) boolean(ctx context.Context, e Element, body string) (bool, error) {
	var ok bool
	err := d.element(ctx, e, body, &ok)
	return ok, err
}

func (d *chromeDriver) Visible(ctx context.Context, e Element) (bool, error) {
	return d.boolean(ctx, e, visibleBody)
}

func (d *chromeDriver) Clickable(ctx context.Context, e Element) (bool, error) {
	return d.boolean(ctx, e, clickableBody)
}

// node resolves e to a DOM node for input-level actions.
func (d *chromeDriver) node(ctx context.Context, e Element) (*cdp.Node, error) {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	sel := e.Locator.Value
	if e.Locator.Strategy == ByXPath {
		opts = append(opts, chromedp.BySearch)
	} else {
		sel, _ = e.Locator.Selector()
		opts = append(opts, chromedp.ByQueryAll)
	}
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	if e.Index >= len(nodes) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, e)
	}
	return nodes[e.Index], nil
}

func (d *chromeDriver) Click(ctx context.Context, e Element) error {
	n, err := d.node(ctx, e)
	if err != nil {
		return err
	}
	if err := d.run(ctx, chromedp.MouseClickNode(n)); err != nil {
		return fmt.Errorf("click %s: %w", e, err)
	}
	return nil
}

func (d *chromeDriver) ScriptClick(ctx context.Context, e Element) error {
	return d.element(ctx, e, clickBody, nil)
}

func (d *chromeDriver) Clear(ctx context.Context, e Element) error {
	return d.element(ctx, e, clearBody, nil)
}

func (d *chromeDriver) Type(ctx context.Context, e Element, text string) error {
	n, err := d.node(ctx, e)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.SendKeys([]cdp.NodeID{n.NodeID}, text, chromedp.ByNodeID))
}

func (d *chromeDriver) SelectValue(ctx context.Context, e Element, value string) error {
	ok, err := d.boolean(ctx, e, selectBody(value))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: option %q in %s", ErrNotFound, value, e)
	}
	return nil
}

func (d *chromeDriver) ScrollIntoView(ctx context.Context, e Element) error {
	return d.element(ctx, e, scrollBody, nil)
}

func (d *chromeDriver) Highlight(ctx context.Context, e Element) error {
	return d.element(ctx, e, highlightBody, nil)
}

func (d *chromeDriver) Text(ctx context.Context, e Element) (string, error) {
	var s string
	err := d.element(ctx, e, textBody, &s)
	return s, err
}

func (d *chromeDriver) Attribute(ctx context.Context, e Element, name string) (string, bool, error) {
	var v *string
	if err := d.element(ctx, e, attributeBody(name), &v); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (d *chromeDriver) OuterHTML(ctx context.Context, e Element) (string, error) {
	var s string
	err := d.element(ctx, e, outerHTMLBody, &s)
	return s, err
}

func (d *chromeDriver) Mark(ctx context.Context, e Element, token string) error {
	return d.element(ctx, e, markBody(token), nil)
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// SwitchToNewTab attaches to the most recent page target not seen before.
func (d *chromeDriver) SwitchToNewTab(ctx context.Context) (bool, error) {
	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()

	infos, err := chromedp.Targets(browser)
	if err != nil {
		return false, fmt.Errorf("list targets: %w", err)
	}

	var fresh target.ID
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		d.mu.Lock()
		known := d.seen[info.TargetID]
		d.seen[info.TargetID] = true
		d.mu.Unlock()
		if !known {
			fresh = info.TargetID
		}
	}
	if fresh == "" {
		return false, nil
	}

	tab, stop := chromedp.NewContext(browser, chromedp.WithTargetID(fresh))
	attachCtx, cancel := CombineContext(tab, ctx)
	defer cancel()
	if err := chromedp.Run(attachCtx); err != nil {
		stop()
		return false, fmt.Errorf("attach to tab %s: %w", fresh, err)
	}

	d.mu.Lock()
	if d.tabStop != nil {
		d.tabStop()
	}
	d.tab, d.tabStop = tab, stop
	d.mu.Unlock()

	d.logger.Debug("Switched to new tab.", zap.String("target", string(fresh)))
	return true, nil
}

func (d *chromeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return nil
	}
	if d.tabStop != nil {
		d.tabStop()
		d.tabStop = nil
	}
	err := chromedp.Cancel(d.browser)
	d.cancel()
	d.cancel = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// mapChromeError folds CDP failures onto the package's error set.
func mapChromeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "could not find node"),
		strings.Contains(msg, "node is detached"),
		strings.Contains(msg, "no node with given id"),
		strings.Contains(msg, "node does not have a layout object"):
		return fmt.Errorf("%w: %v", ErrStaleReference, err)
	}
	return err
}
