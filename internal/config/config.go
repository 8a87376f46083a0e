// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Supported browser engines. Chrome is driven through the DevTools protocol,
// the others through Playwright.
const (
	EngineChrome  = "chrome"
	EngineFirefox = "firefox"
	EngineEdge    = "edge"
	EngineWebKit  = "webkit"
)

// SupportedEngines lists every value accepted by browser.engine.
var SupportedEngines = []string{EngineChrome, EngineFirefox, EngineEdge, EngineWebKit}

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Humanoid HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	Site     SiteConfig     `mapstructure:"site" yaml:"site"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Run      RunConfig      `mapstructure:"run" yaml:"run"`
}

// LoggerConfig configures the zap logger and its optional rotating file output.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and hardens the browser engine.
type BrowserConfig struct {
	Engine         string   `mapstructure:"engine" yaml:"engine"`
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent      string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args           []string `mapstructure:"args" yaml:"args"`
	ExecPath       string   `mapstructure:"exec_path" yaml:"exec_path"`
	WindowWidth    int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int      `mapstructure:"window_height" yaml:"window_height"`
	InstallDrivers bool     `mapstructure:"install_drivers" yaml:"install_drivers"`
	// NavRate caps page navigations per second. Zero disables throttling.
	NavRate  float64 `mapstructure:"nav_rate" yaml:"nav_rate"`
	NavBurst int     `mapstructure:"nav_burst" yaml:"nav_burst"`
}

// TimeoutsConfig holds the fixed wait budgets applied to every session.
type TimeoutsConfig struct {
	ElementWait  time.Duration `mapstructure:"element_wait" yaml:"element_wait"`
	Implicit     time.Duration `mapstructure:"implicit" yaml:"implicit"`
	PageLoad     time.Duration `mapstructure:"page_load" yaml:"page_load"`
	Script       time.Duration `mapstructure:"script" yaml:"script"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// SiteConfig describes the storefront under test.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// StrictHome turns a home landmark that never shows up into a failure
	// instead of a logged warning.
	StrictHome   bool `mapstructure:"strict_home" yaml:"strict_home"`
	HomeReloads  int  `mapstructure:"home_reloads" yaml:"home_reloads"`
	CartAttempts int  `mapstructure:"cart_attempts" yaml:"cart_attempts"`
	MaxResults   int  `mapstructure:"max_results" yaml:"max_results"`
	// Locators overrides entries of the locator table, keyed by name,
	// using the "strategy=value" form.
	Locators map[string]string `mapstructure:"locators" yaml:"locators"`
}

// ReportConfig controls the report artifacts written during a run.
type ReportConfig struct {
	Title          string `mapstructure:"title" yaml:"title"`
	HTMLPath       string `mapstructure:"html_path" yaml:"html_path"`
	JUnitPath      string `mapstructure:"junit_path" yaml:"junit_path"`
	JSONPath       string `mapstructure:"json_path" yaml:"json_path"`
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
}

// DatabaseConfig holds the optional run history connection.
type DatabaseConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	PersistRuns bool   `mapstructure:"persist_runs" yaml:"persist_runs"`
}

// RunConfig drives the scenario runner.
type RunConfig struct {
	Features    []string `mapstructure:"features" yaml:"features"`
	Tags        string   `mapstructure:"tags" yaml:"tags"`
	Format      string   `mapstructure:"format" yaml:"format"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
	Engines     []string `mapstructure:"engines" yaml:"engines"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "storefront-e2e")
	v.SetDefault("logger.log_file", "storefront-e2e.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChrome)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.install_drivers", false)
	v.SetDefault("browser.nav_rate", 1.0)
	v.SetDefault("browser.nav_burst", 2)

	// -- Timeouts --
	v.SetDefault("timeouts.element_wait", "20s")
	v.SetDefault("timeouts.implicit", "5s")
	v.SetDefault("timeouts.page_load", "30s")
	v.SetDefault("timeouts.script", "30s")
	v.SetDefault("timeouts.poll_interval", "250ms")

	setHumanoidDefaults(v)

	// -- Site --
	v.SetDefault("site.base_url", "https://www.amazon.com/")
	v.SetDefault("site.strict_home", false)
	v.SetDefault("site.home_reloads", 3)
	v.SetDefault("site.cart_attempts", 2)
	v.SetDefault("site.max_results", 10)

	// -- Report --
	v.SetDefault("report.title", "Storefront E2E")
	v.SetDefault("report.html_path", "reports/index.html")
	v.SetDefault("report.screenshots_dir", "target/screenshots")

	// -- Database --
	v.SetDefault("database.persist_runs", false)

	// -- Run --
	v.SetDefault("run.features", []string{"features"})
	v.SetDefault("run.format", "pretty")
	v.SetDefault("run.concurrency", 1)
}

// Load unmarshals a populated viper instance, expands home-relative paths and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Browser.Engine = strings.ToLower(strings.TrimSpace(cfg.Browser.Engine))

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Logger.LogFile,
		&c.Browser.ExecPath,
		&c.Report.HTMLPath,
		&c.Report.JUnitPath,
		&c.Report.JSONPath,
		&c.Report.ScreenshotsDir,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if !IsSupportedEngine(c.Browser.Engine) {
		return fmt.Errorf("browser.engine %q is not supported (use one of %s)", c.Browser.Engine, strings.Join(SupportedEngines, ", "))
	}
	for _, e := range c.Run.Engines {
		if !IsSupportedEngine(e) {
			return fmt.Errorf("run.engines contains unsupported engine %q", e)
		}
	}
	if c.Browser.NavRate < 0 {
		return fmt.Errorf("browser.nav_rate must not be negative")
	}
	if err := c.Timeouts.Validate(); err != nil {
		return fmt.Errorf("timeouts: %w", err)
	}
	if err := c.Humanoid.Validate(); err != nil {
		return fmt.Errorf("humanoid: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if c.Report.HTMLPath == "" {
		return fmt.Errorf("report.html_path is required")
	}
	if c.Database.PersistRuns && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.persist_runs is enabled")
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks that every wait budget is usable.
func (t TimeoutsConfig) Validate() error {
	if t.ElementWait <= 0 {
		return fmt.Errorf("element_wait must be a positive duration")
	}
	if t.Implicit < 0 {
		return fmt.Errorf("implicit must not be negative")
	}
	if t.PageLoad <= 0 || t.Script <= 0 {
		return fmt.Errorf("page_load and script must be positive durations")
	}
	if t.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}

// Validate checks the site description. Locator strings are parsed by the
// storefront package, which owns the locator names.
func (s SiteConfig) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute URL", s.BaseURL)
	}
	if s.HomeReloads < 0 {
		return fmt.Errorf("home_reloads must not be negative")
	}
	if s.CartAttempts <= 0 {
		return fmt.Errorf("cart_attempts must be a positive integer")
	}
	if s.MaxResults < 3 {
		return fmt.Errorf("max_results must be at least 3")
	}
	return nil
}

// IsSupportedEngine reports whether name is a known browser engine.
func IsSupportedEngine(name string) bool {
	for _, e := range SupportedEngines {
		if e == name {
			return true
		}
	}
	return false
}
