package cartflow

import "errors"

// Checkout errors
var (
	// ErrCheckoutInProgress indicates a checkout attempt is already running.
	ErrCheckoutInProgress = errors.New("payment already in progress")

	// ErrInvalidTransition indicates an invalid checkout state transition.
	ErrInvalidTransition = errors.New("invalid checkout state transition")

	// ErrEmptyCart indicates checkout was submitted with no items.
	ErrEmptyCart = errors.New("cart is empty")
)
