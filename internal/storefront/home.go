package storefront

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/retry"
)

// OpenHome loads the store's home page and waits for the logo, reloading up
// to site.home_reloads times when it does not show. It then closes consent
// dialogs and waits for the search box.
//
// If the logo never shows, OpenHome logs a warning and returns nil without
// touching dialogs, unless site.strict_home is set, in which case it returns
// an error wrapping browser.ErrTimeout.
func (p *Page) OpenHome(ctx context.Context) error {
	logo := p.loc.Logo.First()

	attempts, err := retry.Do(ctx, retry.Policy{
		Attempts:  1 + p.site.HomeReloads,
		Retryable: func(err error) bool { return errors.Is(err, errLandmarkMissing) },
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("Home page logo not visible, reloading.", zap.Int("reload", attempt), zap.Error(err))
		},
	}, func(ctx context.Context, _ int) error {
		if err := p.session.Navigate(ctx, p.site.BaseURL); err != nil {
			return retry.Permanent(err)
		}
		if err := p.session.Wait.Until(ctx, p.driver, "site logo", browser.VisibilityOf(logo)); err != nil {
			if errors.Is(err, browser.ErrTimeout) {
				return fmt.Errorf("%w: %w", errLandmarkMissing, err)
			}
			return err
		}
		return nil
	})

	switch {
	case errors.Is(err, errLandmarkMissing):
		reloads := attempts - 1
		if p.site.StrictHome {
			return fmt.Errorf("open home: logo missing after %d reloads: %w", reloads, err)
		}
		p.logger.Warn("Home page logo never appeared; continuing.", zap.Int("reloads", reloads))
		return nil
	case err != nil:
		return fmt.Errorf("open home: %w", err)
	}

	p.dismissDialogs(ctx)

	if err := p.session.Wait.Until(ctx, p.driver, "search box", browser.VisibilityOf(p.loc.SearchBox.First())); err != nil {
		return fmt.Errorf("open home: %w", err)
	}
	p.logger.Info("Home page loaded.", zap.String("url", p.site.BaseURL), zap.Int("loads", attempts))
	return nil
}
