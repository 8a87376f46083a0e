package storefront

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/retry"
)

// Search types term into the search box one character at a time, submits it
// and waits for results.
func (p *Page) Search(ctx context.Context, term string) error {
	box := p.loc.SearchBox.First()
	if err := p.session.Wait.Until(ctx, p.driver, "search box clickable", browser.Clickable(box)); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := p.driver.Clear(ctx, box); err != nil {
		return fmt.Errorf("search: clear box: %w", err)
	}
	if err := p.pacer.Think(ctx); err != nil {
		return err
	}

	err := p.pacer.Type(ctx, term, func(ctx context.Context, char string) error {
		return p.driver.Type(ctx, box, char)
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := p.pacer.Think(ctx); err != nil {
		return err
	}

	submit := p.loc.SearchButton.First()
	if err := p.session.Wait.Until(ctx, p.driver, "search button clickable", browser.Clickable(submit)); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := p.driver.Click(ctx, submit); err != nil {
		return fmt.Errorf("search: submit: %w", err)
	}
	if err := p.session.Wait.Until(ctx, p.driver, "search results", browser.PresenceOf(p.loc.Results)); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	p.logger.Info("Search submitted.", zap.String("term", term))
	return nil
}

// GoToPage2 clicks the pagination control labelled "2", falling back to the
// second generic pagination item, and waits for the new results. It fails
// with browser.ErrNotFound when no usable pagination control exists.
func (p *Page) GoToPage2(ctx context.Context) error {
	_, err := retry.Do(ctx, retry.Policy{
		Attempts:  2,
		Retryable: browser.IsTransient,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("Pagination click failed, retrying.", zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func(ctx context.Context, _ int) error {
		target, err := p.pageTwoControl(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		if err := p.scrollTo(ctx, target); err != nil {
			return err
		}
		return p.driver.Click(ctx, target)
	})
	if err != nil {
		return fmt.Errorf("go to page 2: %w", err)
	}

	if err := p.session.Wait.Until(ctx, p.driver, "page 2 results", browser.PresenceOf(p.loc.Results)); err != nil {
		return fmt.Errorf("go to page 2: %w", err)
	}
	p.logger.Info("Moved to results page 2.")
	return nil
}

// pageTwoControl locates the control that leads to page 2.
func (p *Page) pageTwoControl(ctx context.Context) (browser.Element, error) {
	n, err := p.session.FindAll(ctx, p.loc.PageTwo)
	if err != nil {
		return browser.Element{}, err
	}
	if n > 0 {
		return p.loc.PageTwo.First(), nil
	}

	p.logger.Info("No exact page 2 link, falling back to pagination items.")
	n, err = p.driver.Count(ctx, p.loc.PaginationItem)
	if err != nil {
		return browser.Element{}, err
	}
	if n < 2 {
		return browser.Element{}, fmt.Errorf("%w: no pagination control (found %d pagination items)", browser.ErrNotFound, n)
	}
	return p.loc.PaginationItem.Nth(1), nil
}
