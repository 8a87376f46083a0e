// Package humanoid paces scripted browser input so it reads like a person at
// the keyboard: jittered keystrokes, think pauses between actions and short
// settle delays after the page moves.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer produces human-like delays. It is safe for concurrent use.
type Pacer struct {
	cfg    config.HumanoidConfig
	logger *zap.Logger
	sleep  SleepFunc

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Pacer.
type Option func(*Pacer)

// WithSleep replaces the context-aware timer used for every pause.
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) { p.sleep = fn }
}

// New creates a pacer from cfg. A zero seed draws one from the clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger, opts ...Option) *Pacer {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Pacer{
		cfg:    cfg,
		logger: logger.Named("humanoid"),
		sleep:  Sleep,
		rng:    rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sleep waits for d, returning early with ctx.Err() when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// uniform returns a duration drawn uniformly from [lo, hi].
func (p *Pacer) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)+1))
}

// ThinkPause returns a think pause in [PauseMin, PauseMax], or zero when
// pacing is disabled.
func (p *Pacer) ThinkPause() time.Duration {
	if !p.cfg.Enabled {
		return 0
	}
	return p.uniform(p.cfg.PauseMin, p.cfg.PauseMax)
}

// Think sleeps for a think pause.
func (p *Pacer) Think(ctx context.Context) error {
	d := p.ThinkPause()
	p.logger.Debug("Thinking.", zap.Duration("pause", d))
	return p.sleep(ctx, d)
}

// Settle sleeps for the fixed delay d scaled by the configured settle scale.
// Settle delays apply even when random pacing is disabled.
func (p *Pacer) Settle(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, time.Duration(float64(d)*p.cfg.SettleScale))
}
