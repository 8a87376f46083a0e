package storefront

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
)

// Probes run inside a single search result.
const (
	titleProbe  = "h2, .a-text-normal"
	linkProbe   = "h2 a, a.a-link-normal"
	anchorProbe = "a"
	markerAttr  = "data-component-type"
	markerValue = "s-search-result"
)

// Locators is the storefront's locator table.
type Locators struct {
	SearchBox        browser.Locator
	SearchButton     browser.Locator
	PageTwo          browser.Locator
	PaginationItem   browser.Locator
	Results          browser.Locator
	Quantity         browser.Locator
	AddToCart        browser.Locator
	ProductTitle     browser.Locator
	AcceptControls   browser.Locator
	Dialogs          browser.Locator
	Logo             browser.Locator
	CartConfirmation browser.Locator
	Body             browser.Locator
}

// DefaultLocators returns the table for the default storefront.
func DefaultLocators() Locators {
	return Locators{
		SearchBox:        browser.ID("twotabsearchtextbox"),
		SearchButton:     browser.ID("nav-search-submit-button"),
		PageTwo:          browser.XPath("//a[contains(@class,'s-pagination-item') and normalize-space(text())='2']"),
		PaginationItem:   browser.CSS(".s-pagination-item"),
		Results:          browser.CSS("div[data-component-type='s-search-result'], div.s-result-item:not(.AdHolder)"),
		Quantity:         browser.ID("quantity"),
		AddToCart:        browser.ID("add-to-cart-button"),
		ProductTitle:     browser.ID("productTitle"),
		AcceptControls:   browser.CSS("#sp-cc-accept, .a-button-close, [data-action='a-popover-close']"),
		Dialogs:          browser.CSS("#sp-cc, .a-popover-visible, .a-modal-active"),
		Logo:             browser.ID("nav-logo-sprites"),
		CartConfirmation: browser.CSS("div#sw-ptc-container, #huc-v2-order-row-confirm-text, #attach-accessory-pane"),
		Body:             browser.CSS("body"),
	}
}

func (l *Locators) byName() map[string]*browser.Locator {
	return map[string]*browser.Locator{
		"search_box":        &l.SearchBox,
		"search_button":     &l.SearchButton,
		"page_two":          &l.PageTwo,
		"pagination_item":   &l.PaginationItem,
		"results":           &l.Results,
		"quantity":          &l.Quantity,
		"add_to_cart":       &l.AddToCart,
		"product_title":     &l.ProductTitle,
		"accept_controls":   &l.AcceptControls,
		"dialogs":           &l.Dialogs,
		"logo":              &l.Logo,
		"cart_confirmation": &l.CartConfirmation,
		"body":              &l.Body,
	}
}

// Names lists the keys accepted by Override, sorted.
func (l Locators) Names() []string {
	m := l.byName()
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Override returns a copy of l with entries replaced from overrides, which
// maps table names to textual locators.
func (l Locators) Override(overrides map[string]string) (Locators, error) {
	out := l
	fields := out.byName()
	for name, raw := range overrides {
		field, ok := fields[name]
		if !ok {
			return Locators{}, fmt.Errorf("unknown locator %q (known: %v)", name, out.Names())
		}
		loc, err := browser.ParseLocator(raw)
		if err != nil {
			return Locators{}, fmt.Errorf("locator %q: %w", name, err)
		}
		*field = loc
	}
	// Accept controls are looked up inside each dialog, which needs CSS.
	if out.AcceptControls.Strategy == browser.ByXPath {
		return Locators{}, fmt.Errorf("locator %q must be an id or css locator", "accept_controls")
	}
	return out, nil
}
