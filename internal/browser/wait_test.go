// internal/browser/wait_test.go
package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/browser/browsertest"
)

var fastWait = browser.Waiter{Timeout: 200 * time.Millisecond, Interval: 5 * time.Millisecond}

func TestWaiter_VisibilityAppearsLater(t *testing.T) {
	d := browsertest.New()
	logo := browser.ID("nav-logo-sprites")
	d.Set(logo, &browsertest.Element{Visible: false})

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Set(logo, &browsertest.Element{Visible: true})
	}()

	err := fastWait.Until(context.Background(), d, "logo", browser.VisibilityOf(logo.First()))
	assert.NoError(t, err)
}

func TestWaiter_TimeoutWrapsLastError(t *testing.T) {
	d := browsertest.New()

	err := fastWait.WithTimeout(30*time.Millisecond).Until(context.Background(), d, "logo", browser.VisibilityOf(browser.ID("missing").First()))
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Contains(t, err.Error(), "element not found")
}

func TestWaiter_HardErrorAborts(t *testing.T) {
	d := browsertest.New()
	boom := errors.New("target crashed")
	l := browser.CSS("body")
	d.FailNext("Count", l, boom)

	start := time.Now()
	err := fastWait.Until(context.Background(), d, "body", browser.PresenceOf(l))
	assert.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), fastWait.Timeout)
}

func TestWaiter_ParentCancel(t *testing.T) {
	d := browsertest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastWait.Until(ctx, d, "body", browser.PresenceOf(browser.CSS("body")))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, browser.ErrTimeout)
}

func TestWaiter_UntilAnyReportsIndex(t *testing.T) {
	d := browsertest.New()
	d.SetURL("https://shop.test/gp/huc/view.html")
	panel := browser.CSS("#sw-ptc-container, #attach-accessory-pane")
	d.Set(panel, &browsertest.Element{Visible: false}, &browsertest.Element{Visible: false})

	idx, err := fastWait.UntilAny(context.Background(), d, "cart confirmation",
		browser.AnyVisible(panel),
		browser.URLContains("cart"),
		browser.URLContains("huc"),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	d.Set(panel, &browsertest.Element{Visible: false}, &browsertest.Element{Visible: true})
	idx, err = fastWait.UntilAny(context.Background(), d, "cart confirmation", browser.AnyVisible(panel))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestConditions(t *testing.T) {
	ctx := context.Background()
	d := browsertest.New()
	btn := browser.ID("add-to-cart-button")
	d.Set(btn, &browsertest.Element{Visible: true, Disabled: true})

	ok, err := browser.Clickable(btn.First())(ctx, d)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = browser.AnyOf(browser.PresenceOf(browser.CSS(".none")), browser.VisibilityOf(btn.First()))(ctx, d)
	require.NoError(t, err)
	assert.True(t, ok)
}
