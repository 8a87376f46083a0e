package storefront

import (
	"errors"
	"fmt"
)

// CartFailure names the terminal state of a failed add-to-cart.
type CartFailure string

const (
	CartNoQuantitySelector  CartFailure = "no quantity selector available"
	CartClickFailed         CartFailure = "could not click add to cart"
	CartConfirmationTimeout CartFailure = "timed out waiting for cart confirmation"
	CartUnexpected          CartFailure = "unexpected error"
)

// CartAddError reports that a product could not be added to the cart.
type CartAddError struct {
	Reason   CartFailure
	Attempts int
	Err      error
}

func (e *CartAddError) Error() string {
	return fmt.Sprintf("could not add to cart: %s (attempt %d): %v", e.Reason, e.Attempts, e.Err)
}

func (e *CartAddError) Unwrap() error { return e.Err }

// errLandmarkMissing marks a home page load whose logo never appeared.
var errLandmarkMissing = errors.New("home page landmark not visible")
