// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

// Driver is the engine-neutral surface the page layer drives. Element methods
// resolve their Element against the live DOM on every call and return
// ErrNotFound when it does not exist.
type Driver interface {
	Engine() string

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	Count(ctx context.Context, l Locator) (int, error)
	Visible(ctx context.Context, e Element) (bool, error)
	Clickable(ctx context.Context, e Element) (bool, error)

	// Click performs a native pointer click at the element's center.
	Click(ctx context.Context, e Element) error
	// ScriptClick dispatches the click from page script, bypassing overlays.
	ScriptClick(ctx context.Context, e Element) error
	Clear(ctx context.Context, e Element) error
	Type(ctx context.Context, e Element, text string) error
	SelectValue(ctx context.Context, e Element, value string) error
	ScrollIntoView(ctx context.Context, e Element) error
	Highlight(ctx context.Context, e Element) error

	Text(ctx context.Context, e Element) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, e Element, name string) (string, bool, error)
	OuterHTML(ctx context.Context, e Element) (string, error)
	// Mark stamps the element with MarkAttribute=token.
	Mark(ctx context.Context, e Element, token string) error

	// Evaluate runs a script in the page and decodes its JSON result into out,
	// which may be nil.
	Evaluate(ctx context.Context, script string, out any) error
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// SwitchToNewTab moves the driver onto a tab opened since the last switch,
	// reporting whether one existed.
	SwitchToNewTab(ctx context.Context) (bool, error)

	Close(ctx context.Context) error
}

// LaunchOptions carries everything an engine needs to start a browser.
type LaunchOptions struct {
	Engine         string
	Headless       bool
	UserAgent      string
	Args           []string
	ExecPath       string
	WindowWidth    int
	WindowHeight   int
	InstallDrivers bool
	Timeouts       config.TimeoutsConfig
}

// LaunchOptionsFrom derives launch options from the loaded configuration.
func LaunchOptionsFrom(cfg *config.Config) LaunchOptions {
	return LaunchOptions{
		Engine:         cfg.Browser.Engine,
		Headless:       cfg.Browser.Headless,
		UserAgent:      cfg.Browser.UserAgent,
		Args:           cfg.Browser.Args,
		ExecPath:       cfg.Browser.ExecPath,
		WindowWidth:    cfg.Browser.WindowWidth,
		WindowHeight:   cfg.Browser.WindowHeight,
		InstallDrivers: cfg.Browser.InstallDrivers,
		Timeouts:       cfg.Timeouts,
	}
}

// Launcher starts a browser and returns a Driver for it.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Driver, error)

func (f LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	return f(ctx, opts)
}

// NewLauncher returns the launcher for engine.
func NewLauncher(engine string, logger *zap.Logger) (Launcher, error) {
	switch engine {
	case config.EngineChrome:
		return &ChromeLauncher{logger: logger.Named("chrome")}, nil
	case config.EngineFirefox, config.EngineEdge, config.EngineWebKit:
		return &PlaywrightLauncher{logger: logger.Named(engine)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}
}

// Default user agents applied when browser.user_agent is empty.
const (
	chromeUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.7103.49 Safari/537.36"
	firefoxUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0"
	edgeUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.7103.49 Safari/537.36 Edg/136.0.3240.50"
	webkitUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"
)

// DefaultUserAgent returns the user agent used for engine when none is set.
func DefaultUserAgent(engine string) string {
	switch engine {
	case config.EngineFirefox:
		return firefoxUserAgent
	case config.EngineEdge:
		return edgeUserAgent
	case config.EngineWebKit:
		return webkitUserAgent
	default:
		return chromeUserAgent
	}
}

func (o LaunchOptions) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return DefaultUserAgent(o.Engine)
}

func (o LaunchOptions) window() (int, int) {
	w, h := o.WindowWidth, o.WindowHeight
	if w <= 0 {
		w = 1920
	}
	if h <= 0 {
		h = 1080
	}
	return w, h
}

// remaining returns the time left before ctx's deadline, capped at limit.
func remaining(ctx context.Context, limit time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < limit {
			if left < 0 {
				return 0
			}
			return left
		}
	}
	return limit
}
