// Package cart provides the locally-authoritative shopping cart: a pure
// reducer over line items plus a store that persists state to durable
// storage and reconciles it with a remote copy once the user is identified.
package cart

import (
	"errors"
	"time"
)

// Reducer errors
var (
	// ErrUnknownAction indicates an unrecognized action type was dispatched.
	// This is a programming error, never silently ignored.
	ErrUnknownAction = errors.New("unknown cart action")
)

// ItemKey is the identity key of a cart line item. An absent variant is the
// explicit empty string, not a distinct value.
type ItemKey struct {
	ProductID string
	VariantID string
}

// LineItem is a single cart entry. Prices are minor units (cents) in the
// given ISO 4217 currency. Title and image are snapshots taken at
// add-to-cart time so the cart renders even if the product changes.
type LineItem struct {
	ProductID     string            `json:"product_id"`
	VariantID     string            `json:"variant_id,omitempty"`
	Qty           int               `json:"qty"`
	UnitPrice     int64             `json:"unit_price"`
	Currency      string            `json:"currency"`
	TitleSnapshot string            `json:"title_snapshot"`
	ImageSnapshot string            `json:"image_snapshot,omitempty"`
	HoldID        string            `json:"hold_id,omitempty"`
	HoldExpiresAt *time.Time        `json:"hold_expires_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Key returns the line item's identity key.
func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, VariantID: li.VariantID}
}

// clone returns a deep copy of the line item.
func (li LineItem) clone() LineItem {
	out := li
	if li.HoldExpiresAt != nil {
		t := *li.HoldExpiresAt
		out.HoldExpiresAt = &t
	}
	if li.Metadata != nil {
		out.Metadata = make(map[string]string, len(li.Metadata))
		for k, v := range li.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// State is the cart value. It is replaced wholesale on every reducer
// transition and never mutated in place, so consumers can diff by reference.
type State struct {
	Items     []LineItem `json:"items"`
	PromoCode string     `json:"promo_code,omitempty"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{PromoCode: s.PromoCode}
	if s.Items != nil {
		out.Items = make([]LineItem, 0, len(s.Items))
		for _, li := range s.Items {
			out.Items = append(out.Items, li.clone())
		}
	}
	return out
}

// IsEmpty reports whether the cart has no items.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// Find returns the index of the item with the given identity key, or -1.
func (s State) Find(productID, variantID string) int {
	key := ItemKey{ProductID: productID, VariantID: variantID}
	for i, li := range s.Items {
		if li.Key() == key {
			return i
		}
	}
	return -1
}

// ProductIDs returns the distinct product IDs referenced by the cart, in
// first-appearance order.
func (s State) ProductIDs() []string {
	seen := make(map[string]struct{}, len(s.Items))
	ids := make([]string, 0, len(s.Items))
	for _, li := range s.Items {
		if _, ok := seen[li.ProductID]; ok {
			continue
		}
		seen[li.ProductID] = struct{}{}
		ids = append(ids, li.ProductID)
	}
	return ids
}

// Subtotal returns the cart subtotal in minor units. Mixed-currency carts are
// summed as-is; callers enforcing a single currency do so at add time.
func (s State) Subtotal() int64 {
	var total int64
	for _, li := range s.Items {
		total += li.UnitPrice * int64(li.Qty)
	}
	return total
}

// Merge combines local and server carts by identity key: quantities of
// duplicate items are summed, server-only items are appended after local
// ones, and the server's promo code is used only when local has none.
func Merge(local, server State) State {
	merged := local.Clone()
	for _, li := range server.Items {
		if idx := merged.Find(li.ProductID, li.VariantID); idx >= 0 {
			merged.Items[idx].Qty += li.Qty
			continue
		}
		merged.Items = append(merged.Items, li.clone())
	}
	if merged.PromoCode == "" {
		merged.PromoCode = server.PromoCode
	}
	return merged
}

// validStoredItem reports whether a line item parsed from storage satisfies
// the required shape. Invalid items are dropped on hydration, never crashed on.
func validStoredItem(li LineItem) bool {
	return li.ProductID != "" &&
		li.Qty >= 1 &&
		li.UnitPrice >= 0 &&
		li.Currency != "" &&
		li.TitleSnapshot != ""
}
