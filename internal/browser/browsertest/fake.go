// Package browsertest provides a scripted in-memory browser.Driver for tests
// of code that drives pages.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
)

// PNG is the image returned by Driver.Screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Element is one scripted DOM element.
type Element struct {
	Visible  bool
	Disabled bool
	Text     string
	Value    string
	HTML     string
	Attrs    map[string]string
	// Options lists the values a select element accepts.
	Options []string
	// Children are returned for locators scoped to this element with
	// Locator.Within, keyed by the unscoped locator's textual form.
	Children map[string][]*Element
	// OnClick runs after a successful click of either kind.
	OnClick func(d *Driver)

	mark string
}

// Tab is the state a new tab switches the driver to.
type Tab struct {
	URL      string
	Elements map[string][]*Element
}

// Driver is a scripted browser.Driver. It is safe for concurrent use;
// callbacks run without the driver lock held.
type Driver struct {
	EngineName string

	mu         sync.Mutex
	url        string
	elements   map[string][]*Element
	failures   map[string][]error
	onNavigate func(d *Driver, url string)
	pendingTab *Tab
	calls      []string
	shots      int
	closed     bool
}

// New returns an empty driver for engine "fake".
func New() *Driver {
	return &Driver{
		EngineName: "fake",
		elements:   make(map[string][]*Element),
		failures:   make(map[string][]error),
	}
}

// Set replaces the elements matched by l.
func (d *Driver) Set(l browser.Locator, els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[l.String()] = els
}

// Remove drops every element matched by l.
func (d *Driver) Remove(l browser.Locator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, l.String())
}

// SetURL sets the current URL without recording a navigation.
func (d *Driver) SetURL(u string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = u
}

// OnNavigate registers fn to run after every navigation.
func (d *Driver) OnNavigate(fn func(d *Driver, url string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onNavigate = fn
}

// OpenTab makes the next SwitchToNewTab move onto tab.
func (d *Driver) OpenTab(tab *Tab) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingTab = tab
}

// FailNext queues err as the result of the next op ("Click", "Type", ...) on
// l. Queued errors are consumed one call at a time.
func (d *Driver) FailNext(op string, l browser.Locator, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := op + " " + l.String()
	d.failures[key] = append(d.failures[key], errs...)
}

// Calls returns the recorded calls whose operation is op, or every call when
// op is empty.
func (d *Driver) Calls(op string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.calls {
		if op == "" || strings.HasPrefix(c, op+" ") {
			out = append(out, c)
		}
	}
	return out
}

// Screenshots returns how many screenshots were taken.
func (d *Driver) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shots
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *Driver) popFailure(op string, l browser.Locator) error {
	key := op + " " + l.String()
	q := d.failures[key]
	if len(q) == 0 {
		return nil
	}
	d.failures[key] = q[1:]
	return q[0]
}

// resolve returns the elements matched by l. Locators scoped to a marked
// element resolve to that element's children.
func (d *Driver) resolve(l browser.Locator) []*Element {
	if els, ok := d.elements[l.String()]; ok {
		return els
	}
	for _, els := range d.elements {
		for _, el := range els {
			if el.mark == "" {
				continue
			}
			for key, children := range el.Children {
				inner, err := browser.ParseLocator(key)
				if err != nil {
					continue
				}
				scoped, err := inner.Within(browser.MarkSelector(el.mark))
				if err == nil && scoped == l {
					return children
				}
			}
		}
	}
	return nil
}

func (d *Driver) lookup(op string, e browser.Element) (*Element, error) {
	if err := d.popFailure(op, e.Locator); err != nil {
		return nil, err
	}
	els := d.resolve(e.Locator)
	if e.Index < 0 || e.Index >= len(els) {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, e)
	}
	return els[e.Index], nil
}

func (d *Driver) Engine() string { return d.EngineName }

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.record("Navigate %s", url)
	if err := d.popFailure("Navigate", browser.Locator{}); err != nil {
		d.mu.Unlock()
		return err
	}
	d.url = url
	fn := d.onNavigate
	d.mu.Unlock()

	if fn != nil {
		fn(d, url)
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, ctx.Err()
}

func (d *Driver) Count(ctx context.Context, l browser.Locator) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.popFailure("Count", l); err != nil {
		return 0, err
	}
	return len(d.resolve(l)), ctx.Err()
}

func (d *Driver) Visible(ctx context.Context, e browser.Element) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("Visible", e)
	if err != nil {
		return false, err
	}
	return el.Visible, ctx.Err()
}

func (d *Driver) Clickable(ctx context.Context, e browser.Element) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("Clickable", e)
	if err != nil {
		return false, err
	}
	return el.Visible && !el.Disabled, ctx.Err()
}

func (d *Driver) click(ctx context.Context, op string, e browser.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.record("%s %s", op, e)
	el, err := d.lookup(op, e)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if el.OnClick != nil {
		el.OnClick(d)
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, e browser.Element) error {
	return d.click(ctx, "Click", e)
}

func (d *Driver) ScriptClick(ctx context.Context, e browser.Element) error {
	return d.click(ctx, "ScriptClick", e)
}

// mutate records op and applies fn to the element under the lock.
func (d *Driver) mutate(ctx context.Context, op string, e browser.Element, detail string, fn func(el *Element) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if detail != "" {
		d.record("%s %s %s", op, e, detail)
	} else {
		d.record("%s %s", op, e)
	}
	el, err := d.lookup(op, e)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	return fn(el)
}

func (d *Driver) Clear(ctx context.Context, e browser.Element) error {
	return d.mutate(ctx, "Clear", e, "", func(el *Element) error {
		el.Value = ""
		return nil
	})
}

func (d *Driver) Type(ctx context.Context, e browser.Element, text string) error {
	return d.mutate(ctx, "Type", e, text, func(el *Element) error {
		el.Value += text
		return nil
	})
}

func (d *Driver) SelectValue(ctx context.Context, e browser.Element, value string) error {
	return d.mutate(ctx, "Select", e, value, func(el *Element) error {
		for _, o := range el.Options {
			if o == value {
				el.Value = value
				return nil
			}
		}
		return fmt.Errorf("%w: option %q in %s", browser.ErrNotFound, value, e)
	})
}

func (d *Driver) ScrollIntoView(ctx context.Context, e browser.Element) error {
	return d.mutate(ctx, "Scroll", e, "", nil)
}

func (d *Driver) Highlight(ctx context.Context, e browser.Element) error {
	return d.mutate(ctx, "Highlight", e, "", nil)
}

func (d *Driver) Mark(ctx context.Context, e browser.Element, token string) error {
	return d.mutate(ctx, "Mark", e, token, func(el *Element) error {
		el.mark = token
		return nil
	})
}

func (d *Driver) Text(ctx context.Context, e browser.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("Text", e)
	if err != nil {
		return "", err
	}
	return el.Text, ctx.Err()
}

func (d *Driver) Attribute(ctx context.Context, e browser.Element, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("Attribute", e)
	if err != nil {
		return "", false, err
	}
	v, ok := el.Attrs[name]
	return v, ok, ctx.Err()
}

func (d *Driver) OuterHTML(ctx context.Context, e browser.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("OuterHTML", e)
	if err != nil {
		return "", err
	}
	return el.HTML, ctx.Err()
}

func (d *Driver) Evaluate(ctx context.Context, script string, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Evaluate %d", len(script))
	return ctx.Err()
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.popFailure("Screenshot", browser.Locator{}); err != nil {
		return nil, err
	}
	d.shots++
	return PNG, ctx.Err()
}

func (d *Driver) SwitchToNewTab(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tab := d.pendingTab
	if tab == nil {
		return false, ctx.Err()
	}
	d.pendingTab = nil
	d.record("SwitchTab %s", tab.URL)
	d.url = tab.URL
	if tab.Elements != nil {
		d.elements = tab.Elements
	}
	return true, ctx.Err()
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Launcher hands out scripted drivers and counts launches.
type Launcher struct {
	// New builds the driver for each launch; nil yields New().
	New func() *Driver
	// Err, when set, fails every launch.
	Err error

	mu       sync.Mutex
	launches int
	drivers  []*Driver
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.Err != nil {
		return nil, l.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var d *Driver
	if l.New != nil {
		d = l.New()
	} else {
		d = New()
	}
	if opts.Engine != "" {
		d.EngineName = opts.Engine
	}
	l.drivers = append(l.drivers, d)
	return d, nil
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Drivers returns every driver handed out so far.
func (l *Launcher) Drivers() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Driver(nil), l.drivers...)
}
