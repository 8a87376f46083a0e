package storefront

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-e2e/internal/browser"
	"github.com/xkilldash9x/storefront-e2e/internal/retry"
)

// Confirmation signals accepted after clicking add to cart.
const (
	ConfirmedByPanel = "confirmation panel"
	ConfirmedByCart  = "url contains cart"
	ConfirmedByHUC   = "url contains huc"
)

// CartResult describes a confirmed add-to-cart.
type CartResult struct {
	Attempts    int
	ConfirmedBy string
	URL         string
}

// stageError tags an attempt failure with the state it failed in.
type stageError struct {
	stage CartFailure
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func failAt(stage CartFailure, err error) error {
	return &stageError{stage: stage, err: err}
}

// AddToCart sets the quantity selector to quantity and adds the product to
// the cart, trying up to site.cart_attempts times. It returns only once a
// confirmation signal was seen. A page without a quantity selector fails on
// the first attempt. Every failure is a *CartAddError.
func (p *Page) AddToCart(ctx context.Context, quantity int) (CartResult, error) {
	if quantity < 1 {
		return CartResult{}, &CartAddError{Reason: CartUnexpected, Err: fmt.Errorf("quantity must be at least 1, got %d", quantity)}
	}

	max := p.site.CartAttempts
	var confirmedBy string
	attempts, err := retry.Do(ctx, retry.Policy{
		Attempts: max,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("Add to cart failed, retrying.", zap.Int("attempt", attempt), zap.Int("max_attempts", max), zap.Error(err))
		},
	}, func(ctx context.Context, attempt int) error {
		p.logger.Info("add-to-cart attempt", zap.Int("attempt", attempt), zap.Int("max_attempts", max), zap.Int("quantity", quantity))
		var err error
		confirmedBy, err = p.addOnce(ctx, quantity)
		return err
	})
	if err != nil {
		reason := CartUnexpected
		var se *stageError
		if errors.As(err, &se) {
			reason = se.stage
			err = se.err
		}
		return CartResult{Attempts: attempts}, &CartAddError{Reason: reason, Attempts: attempts, Err: err}
	}

	res := CartResult{Attempts: attempts, ConfirmedBy: confirmedBy}
	res.URL, _ = p.driver.CurrentURL(ctx)
	p.logger.Info("Product added to cart.", zap.Int("attempts", attempts), zap.String("confirmed_by", confirmedBy))
	return res, nil
}

// addOnce runs a single attempt: set quantity, click add, await confirmation.
func (p *Page) addOnce(ctx context.Context, quantity int) (string, error) {
	if err := p.pacer.Think(ctx); err != nil {
		return "", failAt(CartUnexpected, err)
	}
	p.dismissDialogs(ctx)

	if err := p.setQuantity(ctx, quantity); err != nil {
		return "", retry.Permanent(failAt(CartNoQuantitySelector, err))
	}

	button := p.loc.AddToCart.First()
	if err := p.session.Wait.Until(ctx, p.driver, "add to cart clickable", browser.Clickable(button)); err != nil {
		return "", failAt(CartClickFailed, err)
	}
	if err := p.scrollTo(ctx, button); err != nil {
		return "", failAt(CartUnexpected, err)
	}
	if err := p.clickWithFallback(ctx, button); err != nil {
		return "", failAt(CartClickFailed, err)
	}

	signals := []string{ConfirmedByPanel, ConfirmedByCart, ConfirmedByHUC}
	idx, err := p.session.Wait.UntilAny(ctx, p.driver, "cart confirmation",
		browser.AnyVisible(p.loc.CartConfirmation),
		browser.URLContains("cart"),
		browser.URLContains("huc"),
	)
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return "", failAt(CartConfirmationTimeout, err)
		}
		return "", failAt(CartClickFailed, err)
	}
	return signals[idx], nil
}

// setQuantity picks quantity in the quantity selector and closes the
// dropdown with a click on the page body.
func (p *Page) setQuantity(ctx context.Context, quantity int) error {
	sel := p.loc.Quantity.First()
	visible, err := p.driver.Visible(ctx, sel)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%w: quantity selector is not visible", browser.ErrNotFound)
	}
	if err := p.scrollTo(ctx, sel); err != nil {
		return err
	}
	if err := p.driver.SelectValue(ctx, sel, strconv.Itoa(quantity)); err != nil {
		return err
	}
	if err := p.pacer.Settle(ctx, settleDropdown); err != nil {
		return err
	}
	if err := p.driver.Click(ctx, p.loc.Body.First()); err != nil {
		return fmt.Errorf("close quantity dropdown: %w", err)
	}
	if err := p.pacer.Settle(ctx, settleBody); err != nil {
		return err
	}
	p.logger.Info("Quantity selected.", zap.Int("quantity", quantity))
	return nil
}
