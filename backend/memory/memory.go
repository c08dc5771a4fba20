// Package memory provides an in-memory backend.Adapter for tests, examples,
// and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cartflow/backend"
	"cartflow/cart"
	"cartflow/inventory"
)

// Backend is an in-memory backend.Adapter. Safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	products map[string]inventory.Product
	carts    map[string]cart.State
	sessions map[string]*backend.Session

	sessionKind backend.SessionKind
	checkoutURL string

	failCart    error
	failSession error
}

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithProducts seeds the catalog.
func WithProducts(products ...inventory.Product) Option {
	return func(b *Backend) {
		for _, p := range products {
			b.products[p.ID] = p
		}
	}
}

// WithSessionKind sets the kind of checkout session the backend creates.
// Defaults to redirect.
func WithSessionKind(kind backend.SessionKind) Option {
	return func(b *Backend) {
		b.sessionKind = kind
	}
}

// WithCheckoutURL sets the base URL for redirect sessions.
func WithCheckoutURL(url string) Option {
	return func(b *Backend) {
		b.checkoutURL = url
	}
}

// WithCartError makes every cart operation fail with err.
func WithCartError(err error) Option {
	return func(b *Backend) {
		b.failCart = err
	}
}

// WithSessionError makes CreateCheckoutSession fail with err.
func WithSessionError(err error) Option {
	return func(b *Backend) {
		b.failSession = err
	}
}

// New creates an in-memory backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		products:    make(map[string]inventory.Product),
		carts:       make(map[string]cart.State),
		sessions:    make(map[string]*backend.Session),
		sessionKind: backend.KindRedirect,
		checkoutURL: "https://checkout.example.com/pay",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ============================================================================
// Catalog
// ============================================================================

func (b *Backend) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]inventory.Product, 0, len(b.products))
	for _, p := range b.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Backend) GetProductsByIDs(ctx context.Context, ids []string) ([]inventory.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]inventory.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := b.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// SetProduct inserts or replaces a catalog record. Useful for simulating
// stock changes between polls.
func (b *Backend) SetProduct(p inventory.Product) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.products[p.ID] = p
}

// ============================================================================
// Carts
// ============================================================================

func (b *Backend) GetCart(ctx context.Context, customerID string) (*cart.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failCart != nil {
		return nil, b.failCart
	}
	s, ok := b.carts[customerID]
	if !ok {
		return nil, backend.ErrCartNotFound
	}
	clone := s.Clone()
	return &clone, nil
}

func (b *Backend) MergeCart(ctx context.Context, customerID string, local cart.State) (cart.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failCart != nil {
		return cart.State{}, b.failCart
	}
	merged := cart.Merge(local, b.carts[customerID])
	b.carts[customerID] = merged.Clone()
	return merged, nil
}

func (b *Backend) UpdateCart(ctx context.Context, customerID string, s cart.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failCart != nil {
		return b.failCart
	}
	b.carts[customerID] = s.Clone()
	return nil
}

// ============================================================================
// Checkout Sessions
// ============================================================================

func (b *Backend) CreateCheckoutSession(ctx context.Context, req backend.SessionRequest) (*backend.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSession != nil {
		return nil, b.failSession
	}

	id := "cs_" + uuid.NewString()
	session := &backend.Session{ID: id, Kind: b.sessionKind}
	switch b.sessionKind {
	case backend.KindRedirect:
		session.URL = fmt.Sprintf("%s?session_id=%s", b.checkoutURL, id)
	case backend.KindCustom:
		session.Data = map[string]any{
			"order_id":      "ord_" + uuid.NewString(),
			"client_secret": "secret_" + uuid.NewString(),
		}
	}

	b.sessions[id] = session
	return session, nil
}

// Session returns a previously created session by ID.
func (b *Backend) Session(id string) (*backend.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return nil, backend.ErrSessionNotFound
	}
	return s, nil
}

// SessionCount returns how many sessions were created.
func (b *Backend) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

var _ backend.Adapter = (*Backend)(nil)
