// internal/browser/session.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

// Session is one browser plus its wait policy, owned by a single scenario.
type Session struct {
	ID       string
	Driver   Driver
	Wait     Waiter
	Timeouts config.TimeoutsConfig

	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSession wraps d with the configured timeouts. A nil limiter disables
// navigation throttling.
func NewSession(id string, d Driver, timeouts config.TimeoutsConfig, limiter *rate.Limiter, logger *zap.Logger) *Session {
	return &Session{
		ID:       id,
		Driver:   d,
		Wait:     Waiter{Timeout: timeouts.ElementWait, Interval: timeouts.PollInterval},
		Timeouts: timeouts,
		limiter:  limiter,
		logger:   logger.With(zap.String("session_id", id)),
	}
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Navigate loads url, waiting for the navigation throttle first.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigation throttle: %w", err)
		}
	}
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.Driver.Navigate(ctx, url)
}

// FindAll waits up to the implicit timeout for l to match and returns the
// match count, which is zero when nothing showed up.
func (s *Session) FindAll(ctx context.Context, l Locator) (int, error) {
	if s.Timeouts.Implicit > 0 {
		err := s.Wait.WithTimeout(s.Timeouts.Implicit).Until(ctx, s.Driver, "presence of "+l.String(), PresenceOf(l))
		if err != nil && ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	return s.Driver.Count(ctx, l)
}

// ScreenshotBase64 captures the viewport as base64 PNG.
func (s *Session) ScreenshotBase64(ctx context.Context) (string, error) {
	png, err := s.Driver.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SaveScreenshot writes a timestamped PNG named after name into dir and
// returns its path.
func (s *Session) SaveScreenshot(ctx context.Context, dir, name string) (string, error) {
	png, err := s.Driver.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	file := fmt.Sprintf("%s_%s.png", unsafeName.ReplaceAllString(name, "_"), time.Now().Format("20060102_150405.000"))
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	s.logger.Info("Saved screenshot.", zap.String("path", path))
	return path, nil
}

// Close shuts the browser down.
func (s *Session) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}
