// internal/browser/provider.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

// Provider lazily creates and caches the browser session of one owner.
// Every scenario gets its own Provider.
type Provider struct {
	launcher Launcher
	opts     LaunchOptions
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu      sync.Mutex
	session *Session
}

// NewProvider builds a provider that launches browsers through launcher.
func NewProvider(cfg *config.Config, launcher Launcher, logger *zap.Logger) *Provider {
	var limiter *rate.Limiter
	if cfg.Browser.NavRate > 0 {
		burst := cfg.Browser.NavBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Browser.NavRate), burst)
	}
	return &Provider{
		launcher: launcher,
		opts:     LaunchOptionsFrom(cfg),
		limiter:  limiter,
		logger:   logger.Named("provider"),
	}
}

// Session returns the active session, launching a browser on first use.
// Launch failures are returned unchanged and leave no cached state.
func (p *Provider) Session(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return p.session, nil
	}

	d, err := p.launcher.Launch(ctx, p.opts)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", p.opts.Engine, err)
	}
	p.session = NewSession(uuid.NewString(), d, p.opts.Timeouts, p.limiter, p.logger)
	p.logger.Info("Browser session started.", zap.String("session_id", p.session.ID), zap.String("engine", d.Engine()))
	return p.session, nil
}

// Active reports whether a session is cached.
func (p *Provider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// Quit closes the active session, if any, and clears it. The cache is cleared
// even when closing the browser fails.
func (p *Provider) Quit(ctx context.Context) error {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Close(ctx); err != nil {
		return fmt.Errorf("quit session %s: %w", s.ID, err)
	}
	p.logger.Info("Browser session closed.", zap.String("session_id", s.ID))
	return nil
}
