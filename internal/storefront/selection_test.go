package storefront

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/browser/browsertest"
	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

const searchURL = baseURL + "s?k=laptop&page=2"

func product(title string) *browsertest.Element {
	return &browsertest.Element{
		Visible: true,
		HTML:    fmt.Sprintf(`<div data-component-type="s-search-result"><h2><a href="/dp/%s">%s</a></h2></div>`, title, title),
		Attrs:   map[string]string{markerAttr: markerValue},
	}
}

// placeholder is a marked result container with no link or title yet.
func placeholder() *browsertest.Element {
	return &browsertest.Element{
		Visible: true,
		HTML:    `<div data-component-type="s-search-result"><span>loading</span></div>`,
		Attrs:   map[string]string{markerAttr: markerValue},
	}
}

func banner() *browsertest.Element {
	return &browsertest.Element{Visible: true, HTML: `<div class="s-result-item AdHolder"><span>Sponsored</span></div>`}
}

// withLink gives el a title link whose click runs onClick.
func withLink(el *browsertest.Element, probe string, onClick func(d *browsertest.Driver)) *browsertest.Element {
	el.Children = map[string][]*browsertest.Element{
		browser.CSS(probe).String(): {{Visible: true, OnClick: onClick}},
	}
	return el
}

func TestSelectThirdResult_SkipsNonProducts(t *testing.T) {
	f := newFixture(t)
	f.driver.SetURL(searchURL)

	productTab := &browsertest.Tab{
		URL: baseURL + "dp/gamma",
		Elements: map[string][]*browsertest.Element{
			f.loc.ProductTitle.String(): {{Visible: true, Text: "Gamma Laptop 15in"}},
			f.loc.AddToCart.String():    {visible()},
		},
	}
	results := make([]*browsertest.Element, 0, 12)
	for i := 0; i < 12; i++ {
		results = append(results, banner())
	}
	results[1] = product("alpha")
	results[3] = product("beta")
	results[4] = withLink(product("gamma"), linkProbe, func(d *browsertest.Driver) { d.OpenTab(productTab) })
	results[6] = product("delta")
	f.driver.Set(f.loc.Results, results...)

	sel, err := f.page.SelectThirdResult(testContext(t))
	require.NoError(t, err)

	assert.Equal(t, 4, sel.DOMIndex)
	assert.True(t, sel.Filtered)
	assert.Equal(t, "gamma", sel.Title)
	assert.Equal(t, "Gamma Laptop 15in", sel.ProductTitle)
	assert.Equal(t, searchURL, sel.PreviousURL)
	assert.Equal(t, baseURL+"dp/gamma", sel.URL)
	assert.Len(t, f.driver.Calls("SwitchTab"), 1)
	assert.Len(t, f.driver.Calls("Highlight"), 1)
}

func TestSelectThirdResult_SkipsMarkedPlaceholders(t *testing.T) {
	f := newFixture(t)
	f.driver.SetURL(searchURL)

	productTab := &browsertest.Tab{
		URL: baseURL + "dp/gamma",
		Elements: map[string][]*browsertest.Element{
			f.loc.ProductTitle.String(): {{Visible: true, Text: "Gamma"}},
		},
	}
	f.driver.Set(f.loc.Results,
		placeholder(), product("alpha"), placeholder(), product("beta"),
		withLink(product("gamma"), linkProbe, func(d *browsertest.Driver) { d.OpenTab(productTab) }),
	)

	sel, err := f.page.SelectThirdResult(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 4, sel.DOMIndex)
	assert.True(t, sel.Filtered)
}

func TestSelectThirdResult_OnlyInspectsMaxResults(t *testing.T) {
	f := newFixture(t, func(s *config.SiteConfig) { s.MaxResults = 4 })
	f.driver.SetURL(searchURL)

	// Only the first four are inspected, so "c" never counts and the pick
	// falls back to position two of the unfiltered list.
	f.driver.Set(f.loc.Results,
		product("a"), product("b"),
		withLink(banner(), anchorProbe, func(d *browsertest.Driver) {
			d.SetURL(baseURL + "dp/two")
			d.Set(f.loc.ProductTitle, &browsertest.Element{Visible: true, Text: "Two"})
		}),
		banner(),
		product("c"),
	)

	sel, err := f.page.SelectThirdResult(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, sel.DOMIndex)
	assert.False(t, sel.Filtered)
	assert.Equal(t, "Two", sel.ProductTitle)
	assert.Empty(t, f.driver.Calls("SwitchTab"), "same-tab navigation")
	assert.Equal(t, 1, f.logs.FilterMessage("Too few real products, using the unfiltered results.").Len())
}

func TestSelectThirdResult_TooFewResults(t *testing.T) {
	f := newFixture(t)
	f.driver.Set(f.loc.Results, product("a"), product("b"))

	_, err := f.page.SelectThirdResult(testContext(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Empty(t, f.driver.Calls("Click"))
	assert.Equal(t, 1, f.driver.Screenshots(), "failure screenshot")
}

func TestSelectThirdResult_ProductPageNeverLoads(t *testing.T) {
	f := newFixture(t)
	f.driver.Set(f.loc.Results,
		product("a"), product("b"),
		withLink(product("c"), linkProbe, func(*browsertest.Driver) {}),
	)

	_, err := f.page.SelectThirdResult(testContext(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Len(t, f.driver.Calls("Click"), 1)
	assert.Equal(t, 3, f.driver.Screenshots(), "before click, product load and selection failure")
}

func TestSelectThirdResult_NoLinkInResult(t *testing.T) {
	f := newFixture(t)
	f.driver.Set(f.loc.Results, product("a"), product("b"), product("c"))

	_, err := f.page.SelectThirdResult(testContext(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.ErrorContains(t, err, "no clickable link")
}

func TestInspect_FallsBackToMarker(t *testing.T) {
	f := newFixture(t)
	f.driver.Set(f.loc.Results, &browsertest.Element{
		Attrs: map[string]string{markerAttr: markerValue, "aria-label": "Boxed item"},
	})
	f.driver.FailNext("OuterHTML", f.loc.Results, browser.ErrStaleReference)

	c := f.page.inspect(testContext(t), f.loc.Results.First())
	assert.Equal(t, Capabilities{HasMarker: true, Title: "Boxed item"}, c)
	assert.True(t, IsRealProduct(c))
}
