// Package inventory keeps the cart's perceived stock status fresh without
// blocking callers, and tracks perishable hold-expiry countdowns.
package inventory

// Status classifies a product or variant's stock level.
type Status string

const (
	StatusInStock    Status = "in_stock"
	StatusLow        Status = "low"
	StatusOutOfStock Status = "out_of_stock"
	StatusBackorder  Status = "backorder"
	StatusUnknown    Status = "unknown"
)

// Product is a stock record returned by the commerce backend.
type Product struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	TrackQuantity bool      `json:"track_quantity"`
	Quantity      int       `json:"quantity"`
	Variants      []Variant `json:"variants,omitempty"`
}

// Variant is a per-variant stock record.
type Variant struct {
	ID            string `json:"id"`
	Status        Status `json:"status"`
	TrackQuantity bool   `json:"track_quantity"`
	Quantity      int    `json:"quantity"`
}

// Variant returns the variant with the given ID, or nil.
func (p *Product) Variant(variantID string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}

// Snapshot is the derived stock classification for a single cart line item.
// It holds no independent state: it is recomputed from the latest poll
// result plus the current cart on every poll.
type Snapshot struct {
	ProductID        string
	VariantID        string
	RequestedQty     int
	Available        *int
	Status           Status
	OutOfStock       bool
	ExceedsAvailable bool
	LowStock         bool
	Message          string
}

// Blocking reports whether this snapshot should block checkout. Low stock
// alone is informational.
func (s Snapshot) Blocking() bool {
	return s.OutOfStock || s.ExceedsAvailable
}
