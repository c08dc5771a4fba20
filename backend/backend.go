// Package backend defines the commerce backend surface the checkout flow
// talks to: product catalog reads, server-side cart persistence, and
// checkout session creation.
package backend

import (
	"context"
	"errors"

	"cartflow/cart"
	"cartflow/inventory"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrCartNotFound indicates the customer has no server-side cart.
	// It aliases cart.ErrRemoteCartNotFound so errors.Is matches across
	// both packages.
	ErrCartNotFound = cart.ErrRemoteCartNotFound

	// ErrProductNotFound indicates a requested product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrSessionNotFound indicates an unknown checkout session ID.
	ErrSessionNotFound = errors.New("checkout session not found")

	// ErrBackendFailure wraps infrastructure-level failures of an adapter.
	ErrBackendFailure = errors.New("backend operation failed")
)

// ============================================================================
// Checkout Sessions
// ============================================================================

// SessionKind tells the caller how to continue after session creation.
type SessionKind string

const (
	// KindRedirect means the buyer must be sent to Session.URL to pay.
	KindRedirect SessionKind = "redirect"

	// KindCustom means payment completes in-page; Session.Data carries
	// whatever the payment integration needs (client secret, order ID).
	KindCustom SessionKind = "custom"
)

// Session is a created checkout session.
type Session struct {
	ID   string         `json:"id"`
	Kind SessionKind    `json:"kind"`
	URL  string         `json:"url,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Address is a postal address collected during checkout.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Customer is the buyer identity collected during checkout. Address
// pointers are nil when the corresponding address was not collected.
type Customer struct {
	Email           string   `json:"email"`
	Name            string   `json:"name,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
}

// SessionRequest is the input to CreateCheckoutSession.
type SessionRequest struct {
	Cart          cart.State        `json:"cart"`
	Customer      Customer          `json:"customer"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	SuccessURL    string            `json:"success_url,omitempty"`
	CancelURL     string            `json:"cancel_url,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ============================================================================
// Adapter
// ============================================================================

// Adapter is the pluggable commerce backend. It covers the three concerns
// the client-side flow needs: catalog reads (it satisfies
// inventory.ProductReader), server-side carts (it satisfies
// cart.RemoteCart), and checkout session creation.
type Adapter interface {
	// ListProducts returns the full catalog.
	ListProducts(ctx context.Context) ([]inventory.Product, error)

	// GetProductsByIDs returns the latest records for the given product
	// IDs. Missing products are absent from the result, not an error.
	GetProductsByIDs(ctx context.Context, ids []string) ([]inventory.Product, error)

	// GetCart returns the server-side cart for a customer, or
	// ErrCartNotFound when none exists.
	GetCart(ctx context.Context, customerID string) (*cart.State, error)

	// MergeCart combines a locally-built cart into the customer's
	// server-side cart and returns the merged result.
	MergeCart(ctx context.Context, customerID string, local cart.State) (cart.State, error)

	// UpdateCart replaces the server-side cart for a customer.
	UpdateCart(ctx context.Context, customerID string, s cart.State) error

	// CreateCheckoutSession creates a payment session for the given cart
	// and customer.
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Interface satisfaction checks against the consumer-side interfaces.
type adapterCompat interface {
	inventory.ProductReader
	cart.RemoteCart
}

var _ adapterCompat = (Adapter)(nil)
