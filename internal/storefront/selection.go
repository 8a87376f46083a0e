package storefront

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/retry"
)

// Selection describes the product opened by SelectThirdResult.
type Selection struct {
	// DOMIndex is the position of the picked container among the results.
	DOMIndex int
	// Filtered is false when too few real products forced a pick from the
	// unfiltered list.
	Filtered     bool
	Title        string
	ProductTitle string
	PreviousURL  string
	URL          string
}

// SelectThirdResult opens the third real product among the first results,
// following it into a new tab if the store opens one, and waits for the
// product page.
func (p *Page) SelectThirdResult(ctx context.Context) (*Selection, error) {
	sel, err := p.selectThird(ctx)
	if err != nil {
		p.capture(ctx, "selection_error")
		return nil, fmt.Errorf("select third result: %w", err)
	}
	return sel, nil
}

func (p *Page) selectThird(ctx context.Context) (*Selection, error) {
	if err := p.session.Wait.Until(ctx, p.driver, "search results", browser.PresenceOf(p.loc.Results)); err != nil {
		return nil, err
	}
	if err := p.pacer.Settle(ctx, settleResults); err != nil {
		return nil, err
	}

	caps, err := p.inspectResults(ctx)
	if err != nil {
		return nil, err
	}
	idx, filtered, err := ChooseThird(caps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", browser.ErrNotFound, err)
	}
	if !filtered {
		p.logger.Warn("Too few real products, using the unfiltered results.", zap.Int("results", len(caps)))
	}

	item := p.loc.Results.Nth(idx)
	sel := &Selection{DOMIndex: idx, Filtered: filtered, Title: caps[idx].Title}
	p.logger.Info("Selecting third result.", zap.Int("dom_index", idx), zap.String("title", sel.Title))

	p.capture(ctx, "before_third_result_click")
	if err := p.driver.ScrollIntoView(ctx, item); err != nil {
		p.logger.Debug("Could not scroll to result.", zap.Error(err))
	}
	if err := p.driver.Highlight(ctx, item); err != nil {
		p.logger.Debug("Could not outline result.", zap.Error(err))
	}
	if err := p.pacer.Settle(ctx, settleScroll); err != nil {
		return nil, err
	}

	link, err := p.resultLink(ctx, item)
	if err != nil {
		return nil, err
	}

	if sel.PreviousURL, err = p.driver.CurrentURL(ctx); err != nil {
		return nil, err
	}
	_, err = retry.Do(ctx, retry.Policy{Attempts: 2, Retryable: browser.IsTransient}, func(ctx context.Context, _ int) error {
		return p.clickWithFallback(ctx, link)
	})
	if err != nil {
		return nil, fmt.Errorf("could not click result link: %w", err)
	}

	switched, err := p.driver.SwitchToNewTab(ctx)
	if err != nil {
		return nil, err
	}
	if switched {
		p.logger.Info("Product opened in a new tab.")
	}

	_, err = p.session.Wait.UntilAny(ctx, p.driver, "product page",
		browser.VisibilityOf(p.loc.ProductTitle.First()),
		browser.VisibilityOf(p.loc.AddToCart.First()),
	)
	if err != nil {
		p.capture(ctx, "product_load_error")
		return nil, err
	}

	if title, err := p.driver.Text(ctx, p.loc.ProductTitle.First()); err == nil {
		sel.ProductTitle = title
	}
	if sel.URL, err = p.driver.CurrentURL(ctx); err != nil {
		return nil, err
	}
	p.logger.Info("Product page loaded.", zap.String("product", sel.ProductTitle), zap.String("url", sel.URL))
	return sel, nil
}

// inspectResults classifies up to site.max_results result containers.
func (p *Page) inspectResults(ctx context.Context) ([]Capabilities, error) {
	n, err := p.driver.Count(ctx, p.loc.Results)
	if err != nil {
		return nil, err
	}
	if n > p.site.MaxResults {
		n = p.site.MaxResults
	}

	caps := make([]Capabilities, 0, n)
	for i := 0; i < n; i++ {
		c := p.inspect(ctx, p.loc.Results.Nth(i))
		p.logger.Debug("Result.", zap.Int("index", i), zap.String("title", c.Title), zap.Bool("real", IsRealProduct(c)))
		caps = append(caps, c)
	}
	return caps, nil
}

// inspect builds the capability set of one result. When its HTML cannot be
// read or parsed only the marker attribute is consulted.
func (p *Page) inspect(ctx context.Context, item browser.Element) Capabilities {
	html, err := p.driver.OuterHTML(ctx, item)
	if err == nil {
		var c Capabilities
		if c, err = ParseCapabilities(html); err == nil {
			return c
		}
	}
	p.logger.Debug("Falling back to the marker attribute.", zap.Stringer("result", item), zap.Error(err))
	v, ok, aerr := p.driver.Attribute(ctx, item, markerAttr)
	label, _, _ := p.driver.Attribute(ctx, item, "aria-label")
	return Capabilities{HasMarker: aerr == nil && ok && v == markerValue, Title: label}
}

// resultLink finds the anchor to click inside item, preferring the title
// link over any other anchor.
func (p *Page) resultLink(ctx context.Context, item browser.Element) (browser.Element, error) {
	token := "result-" + uuid.NewString()
	if err := p.driver.Mark(ctx, item, token); err != nil {
		return browser.Element{}, err
	}
	scope := browser.MarkSelector(token)

	for _, probe := range []string{linkProbe, anchorProbe} {
		loc, err := browser.CSS(probe).Within(scope)
		if err != nil {
			return browser.Element{}, err
		}
		n, err := p.driver.Count(ctx, loc)
		if err != nil {
			return browser.Element{}, err
		}
		if n > 0 {
			return loc.First(), nil
		}
	}
	return browser.Element{}, fmt.Errorf("%w: no clickable link in %s", browser.ErrNotFound, item)
}
