// Package mysql provides a MySQL implementation of the backend.Adapter
// interface. Carts are stored as one JSON blob per customer, the shape the
// client-side flow reads and replaces wholesale.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cartflow/backend"
	"cartflow/cart"
	"cartflow/inventory"
)

// Store implements backend.Adapter using MySQL.
type Store struct {
	db *sql.DB
}

// New creates a Store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ============================================================================
// Catalog Operations
// ============================================================================

const productColumns = "product_id, status, track_quantity, quantity, variants"

// ListProducts returns the full catalog.
func (s *Store) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM cartflow_products
		ORDER BY product_id ASC
	`, productColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %v", backend.ErrBackendFailure, err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// GetProductsByIDs returns the latest records for the given product IDs.
// Missing products are absent from the result.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]inventory.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM cartflow_products
		WHERE product_id IN (%s)
		ORDER BY product_id ASC
	`, productColumns, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get products: %v", backend.ErrBackendFailure, err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// UpsertProduct inserts or replaces a catalog record.
func (s *Store) UpsertProduct(ctx context.Context, p inventory.Product) error {
	query := `
		INSERT INTO cartflow_products (product_id, status, track_quantity, quantity, variants, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status), track_quantity = VALUES(track_quantity),
			quantity = VALUES(quantity), variants = VALUES(variants),
			updated_at = VALUES(updated_at)
	`

	variants, err := json.Marshal(p.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query, p.ID, p.Status, p.TrackQuantity, p.Quantity, variants, time.Now())
	if err != nil {
		return fmt.Errorf("%w: upsert product: %v", backend.ErrBackendFailure, err)
	}
	return nil
}

func scanProducts(rows *sql.Rows) ([]inventory.Product, error) {
	var products []inventory.Product
	for rows.Next() {
		var p inventory.Product
		var variants []byte
		if err := rows.Scan(&p.ID, &p.Status, &p.TrackQuantity, &p.Quantity, &variants); err != nil {
			return nil, fmt.Errorf("%w: scan product: %v", backend.ErrBackendFailure, err)
		}
		if len(variants) > 0 {
			if err := json.Unmarshal(variants, &p.Variants); err != nil {
				return nil, fmt.Errorf("unmarshal variants: %w", err)
			}
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate products: %v", backend.ErrBackendFailure, err)
	}
	return products, nil
}

// ============================================================================
// Cart Operations
// ============================================================================

// GetCart returns the server-side cart for a customer.
func (s *Store) GetCart(ctx context.Context, customerID string) (*cart.State, error) {
	query := `SELECT state FROM cartflow_carts WHERE customer_id = ?`

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, backend.ErrCartNotFound
		}
		return nil, fmt.Errorf("%w: get cart: %v", backend.ErrBackendFailure, err)
	}

	state := &cart.State{}
	if err := json.Unmarshal(blob, state); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return state, nil
}

// UpdateCart replaces the server-side cart for a customer.
func (s *Store) UpdateCart(ctx context.Context, customerID string, state cart.State) error {
	query := `
		INSERT INTO cartflow_carts (customer_id, state, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)
	`

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query, customerID, blob, time.Now())
	if err != nil {
		return fmt.Errorf("%w: update cart: %v", backend.ErrBackendFailure, err)
	}
	return nil
}

// MergeCart combines a local cart into the customer's server-side cart and
// persists the result. A customer without a server cart just gets the local
// cart stored.
func (s *Store) MergeCart(ctx context.Context, customerID string, local cart.State) (cart.State, error) {
	server, err := s.GetCart(ctx, customerID)
	if err != nil && err != backend.ErrCartNotFound {
		return cart.State{}, err
	}

	merged := local
	if server != nil {
		merged = cart.Merge(local, *server)
	}

	if err := s.UpdateCart(ctx, customerID, merged); err != nil {
		return cart.State{}, err
	}
	return merged, nil
}

// ============================================================================
// Checkout Session Operations
// ============================================================================

// CreateCheckoutSession records a checkout session and returns it. The URL
// and data shape mirror what a hosted payment page integration returns.
func (s *Store) CreateCheckoutSession(ctx context.Context, req backend.SessionRequest) (*backend.Session, error) {
	query := `
		INSERT INTO cartflow_checkout_sessions (session_id, kind, url, cart, customer, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	id := "cs_" + uuid.NewString()
	url := req.SuccessURL
	if url == "" {
		url = fmt.Sprintf("https://checkout.example.com/pay?session_id=%s", id)
	} else {
		url = fmt.Sprintf("%s?session_id=%s", strings.TrimSuffix(url, "/"), id)
	}

	cartJSON, err := json.Marshal(req.Cart)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	customerJSON, err := json.Marshal(req.Customer)
	if err != nil {
		return nil, fmt.Errorf("marshal customer: %w", err)
	}
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		id, backend.KindRedirect, url, cartJSON, customerJSON, metadataJSON, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", backend.ErrBackendFailure, err)
	}

	return &backend.Session{ID: id, Kind: backend.KindRedirect, URL: url}, nil
}

// GetCheckoutSession retrieves a previously created session.
func (s *Store) GetCheckoutSession(ctx context.Context, id string) (*backend.Session, error) {
	query := `SELECT session_id, kind, url FROM cartflow_checkout_sessions WHERE session_id = ?`

	session := &backend.Session{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&session.ID, &session.Kind, &session.URL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, backend.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: get checkout session: %v", backend.ErrBackendFailure, err)
	}
	return session, nil
}

// Ensure Store implements backend.Adapter.
var _ backend.Adapter = (*Store)(nil)
