// Package storefront drives the shopping flow of the store under test: open
// the home page, search, paginate, pick a product and add it to the cart.
//
// Every element is located afresh right before it is used; nothing returned
// by the browser is cached across waits.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/config"
	"github.com/xkilldash9x/storefront-e2e/internal/humanoid"
)

// Fixed settle delays applied after the page moves under the cursor.
const (
	settleResults  = time.Second
	settleScroll   = 500 * time.Millisecond
	settleDropdown = time.Second
	settleBody     = 500 * time.Millisecond
)

// Page is the storefront as seen through one browser session.
type Page struct {
	session  *browser.Session
	driver   browser.Driver
	site     config.SiteConfig
	loc      Locators
	pacer    *humanoid.Pacer
	logger   *zap.Logger
	shotsDir string
}

// New binds the storefront to a session. Locator overrides from site are
// applied on top of the default table.
func New(session *browser.Session, site config.SiteConfig, pacer *humanoid.Pacer, logger *zap.Logger, shotsDir string) (*Page, error) {
	loc, err := DefaultLocators().Override(site.Locators)
	if err != nil {
		return nil, err
	}
	return &Page{
		session:  session,
		driver:   session.Driver,
		site:     site,
		loc:      loc,
		pacer:    pacer,
		logger:   logger.Named("storefront"),
		shotsDir: shotsDir,
	}, nil
}

// Locators returns the table in use.
func (p *Page) Locators() Locators { return p.loc }

// capture saves a named screenshot. Failures are logged and otherwise ignored.
func (p *Page) capture(ctx context.Context, name string) string {
	if p.shotsDir == "" {
		return ""
	}
	path, err := p.session.SaveScreenshot(ctx, p.shotsDir, name)
	if err != nil {
		p.logger.Debug("Could not take screenshot.", zap.String("name", name), zap.Error(err))
		return ""
	}
	return path
}

// scrollTo brings e to the middle of the viewport and pauses like a reader
// would. Failures are logged and otherwise ignored.
func (p *Page) scrollTo(ctx context.Context, e browser.Element) error {
	if err := p.driver.ScrollIntoView(ctx, e); err != nil {
		p.logger.Debug("Could not scroll.", zap.Stringer("element", e), zap.Error(err))
	}
	return p.pacer.Think(ctx)
}

// clickWithFallback clicks e natively and falls back to a script click.
func (p *Page) clickWithFallback(ctx context.Context, e browser.Element) error {
	err := p.driver.Click(ctx, e)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	p.logger.Debug("Native click failed, using script click.", zap.Stringer("element", e), zap.Error(err))
	if serr := p.driver.ScriptClick(ctx, e); serr != nil {
		return fmt.Errorf("click %s: %w", e, errors.Join(err, serr))
	}
	return nil
}

// dismissDialogs closes every visible consent or popover dialog by clicking
// the first visible accept control inside it, and returns how many it closed.
// Visible dialogs are all stamped before the first click, so a dialog that
// leaves the DOM does not shift the ones after it. Nothing here fails the
// caller.
func (p *Page) dismissDialogs(ctx context.Context) int {
	n, err := p.driver.Count(ctx, p.loc.Dialogs)
	if err != nil || n == 0 {
		p.logger.Debug("No dialogs to close.", zap.Error(err))
		return 0
	}

	var tokens []string
	for i := 0; i < n; i++ {
		dialog := p.loc.Dialogs.Nth(i)
		if visible, err := p.driver.Visible(ctx, dialog); err != nil || !visible {
			continue
		}
		token := "dialog-" + uuid.NewString()
		if err := p.driver.Mark(ctx, dialog, token); err != nil {
			continue
		}
		tokens = append(tokens, token)
	}

	closed := 0
	for i, token := range tokens {
		accept, err := p.loc.AcceptControls.Within(browser.MarkSelector(token))
		if err != nil {
			continue
		}
		btn := accept.First()
		if visible, err := p.driver.Visible(ctx, btn); err != nil || !visible {
			continue
		}
		if err := p.driver.Click(ctx, btn); err != nil {
			p.logger.Debug("Could not close dialog.", zap.Int("dialog", i), zap.Error(err))
			continue
		}
		closed++
		if err := p.pacer.Think(ctx); err != nil {
			break
		}
	}
	if closed > 0 {
		p.logger.Info("Closed dialogs.", zap.Int("count", closed))
	}
	return closed
}
