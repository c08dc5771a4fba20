// Package event provides event definitions and the event bus for the cartflow library.
package event

import (
	"time"
)

// Type identifies an event kind.
type Type string

const (
	// Cart lifecycle events
	TypeCartHydrated   Type = "cart.hydrated"
	TypeCartUpdated    Type = "cart.updated"
	TypeCartMerged     Type = "cart.merged"
	TypeCartSynced     Type = "cart.synced"
	TypeCartSyncFailed Type = "cart.sync_failed"

	// Hold lifecycle events
	TypeHoldExpiring Type = "hold.expiring"
	TypeHoldExpired  Type = "hold.expired"

	// Inventory events
	TypeInventoryIssue Type = "inventory.issue"

	// Checkout lifecycle events
	TypeCheckoutSubmitted      Type = "checkout.submitted"
	TypeCheckoutSessionCreated Type = "checkout.session_created"
	TypeCheckoutRedirect       Type = "checkout.redirect"
	TypeCheckoutFailed         Type = "checkout.failed"
)

// Event carries a single occurrence through the bus. Fields that do not
// apply to a given event type are left zero.
type Event struct {
	Type       Type
	ProductID  string
	VariantID  string
	CustomerID string
	AttemptID  string
	Timestamp  time.Time
	Data       map[string]any
	Error      error
}

// New creates a new event with the given type and sets the timestamp.
func New(eventType Type) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// WithItem returns a copy of the event annotated with a line-item identity.
func (e Event) WithItem(productID, variantID string) Event {
	e.ProductID = productID
	e.VariantID = variantID
	return e
}

// WithError returns a copy of the event annotated with an error.
func (e Event) WithError(err error) Event {
	e.Error = err
	return e
}

// WithData returns a copy of the event with a data entry set.
func (e Event) WithData(key string, value any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}
