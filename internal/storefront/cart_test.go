package storefront

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/browser/browsertest"
)

// productPage scripts a product page whose add-to-cart button runs confirm
// on the given click numbers.
func productPage(f *fixture, confirm func(d *browsertest.Driver, click int)) *browsertest.Element {
	f.driver.SetURL(baseURL + "dp/gamma")
	qty := &browsertest.Element{Visible: true, Value: "1", Options: []string{"1", "2", "3", "4", "5"}}
	f.driver.Set(f.loc.Quantity, qty)
	f.driver.Set(f.loc.Body, visible())
	clicks := 0
	f.driver.Set(f.loc.AddToCart, &browsertest.Element{
		Visible: true,
		OnClick: func(d *browsertest.Driver) {
			clicks++
			confirm(d, clicks)
		},
	})
	return qty
}

func countCalls(calls []string, want string) int {
	n := 0
	for _, c := range calls {
		if c == want {
			n++
		}
	}
	return n
}

func cartError(t *testing.T, err error) *CartAddError {
	t.Helper()
	var ce *CartAddError
	require.True(t, errors.As(err, &ce), "want *CartAddError, got %v", err)
	return ce
}

func TestAddToCart_ConfirmationPanel(t *testing.T) {
	f := newFixture(t)
	qty := productPage(f, func(d *browsertest.Driver, _ int) {
		d.Set(f.loc.CartConfirmation, &browsertest.Element{}, visible())
	})

	res, err := f.page.AddToCart(testContext(t), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, ConfirmedByPanel, res.ConfirmedBy)
	assert.Equal(t, "2", qty.Value)
	assert.Equal(t, []string{"Select " + f.loc.Quantity.First().String() + " 2"}, f.driver.Calls("Select"))
	assert.Contains(t, f.driver.Calls("Click"), "Click "+f.loc.Body.First().String(), "dropdown is closed")
}

func TestAddToCart_ConfirmedByURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"cart page", baseURL + "cart/view.html", ConfirmedByCart},
		{"upsell page", baseURL + "gp/huc/view.html", ConfirmedByHUC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			productPage(f, func(d *browsertest.Driver, _ int) { d.SetURL(tt.url) })

			res, err := f.page.AddToCart(testContext(t), 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.ConfirmedBy)
			assert.Equal(t, tt.url, res.URL)
		})
	}
}

func TestAddToCart_RetriesAfterConfirmationTimeout(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(d *browsertest.Driver, click int) {
		if click == 2 {
			d.SetURL(baseURL + "cart/view.html")
		}
	})

	res, err := f.page.AddToCart(testContext(t), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, f.logs.FilterMessage("add-to-cart attempt").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("Add to cart failed, retrying.").Len())
}

func TestAddToCart_NeverConfirmed(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(*browsertest.Driver, int) {})

	_, err := f.page.AddToCart(testContext(t), 2)
	require.Error(t, err)
	ce := cartError(t, err)
	assert.Equal(t, CartConfirmationTimeout, ce.Reason)
	assert.Equal(t, 2, ce.Attempts)
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Equal(t, 2, countCalls(f.driver.Calls("Click"), "Click "+f.loc.AddToCart.First().String()))
}

func TestAddToCart_NoQuantitySelector(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(d *browsertest.Driver, _ int) { d.SetURL(baseURL + "cart") })
	f.driver.Remove(f.loc.Quantity)

	_, err := f.page.AddToCart(testContext(t), 2)
	require.Error(t, err)
	ce := cartError(t, err)
	assert.Equal(t, CartNoQuantitySelector, ce.Reason)
	assert.Equal(t, 1, ce.Attempts, "a missing selector is not retried")
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Empty(t, f.driver.Calls("Click"))
	assert.Equal(t, "could not add to cart: no quantity selector available (attempt 1): "+ce.Err.Error(), err.Error())
}

func TestAddToCart_HiddenQuantitySelector(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(*browsertest.Driver, int) {})
	f.driver.Set(f.loc.Quantity, &browsertest.Element{Options: []string{"2"}})

	_, err := f.page.AddToCart(testContext(t), 2)
	ce := cartError(t, err)
	assert.Equal(t, CartNoQuantitySelector, ce.Reason)
	assert.Equal(t, 1, ce.Attempts)
}

func TestAddToCart_QuantityUnavailable(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(*browsertest.Driver, int) {})

	_, err := f.page.AddToCart(testContext(t), 9)
	ce := cartError(t, err)
	assert.Equal(t, CartNoQuantitySelector, ce.Reason)
	assert.Equal(t, 1, ce.Attempts)
}

func TestAddToCart_ScriptClickFallback(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(d *browsertest.Driver, _ int) { d.SetURL(baseURL + "cart") })
	f.driver.FailNext("Click", f.loc.AddToCart, errors.New("element click intercepted"))

	res, err := f.page.AddToCart(testContext(t), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, f.driver.Calls("ScriptClick"), 1)
}

func TestAddToCart_ButtonNeverClickable(t *testing.T) {
	f := newFixture(t)
	productPage(f, func(*browsertest.Driver, int) {})
	f.driver.Set(f.loc.AddToCart, &browsertest.Element{Visible: true, Disabled: true})

	_, err := f.page.AddToCart(testContext(t), 2)
	ce := cartError(t, err)
	assert.Equal(t, CartClickFailed, ce.Reason)
	assert.Equal(t, 2, ce.Attempts)
}

func TestAddToCart_RejectsZeroQuantity(t *testing.T) {
	f := newFixture(t)

	_, err := f.page.AddToCart(testContext(t), 0)
	ce := cartError(t, err)
	assert.Equal(t, CartUnexpected, ce.Reason)
	assert.Empty(t, f.driver.Calls(""))
}
