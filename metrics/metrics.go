// Package metrics provides the metrics interface for the cartflow library.
package metrics

import "time"

// Metrics defines the interface for collecting observability metrics.
// Implementations can use Prometheus, StatsD, or other metrics backends.
type Metrics interface {
	// Deduplication metrics
	DedupHit(kind string)
	DedupExecuted(success bool)
	CooldownBlocked()

	// Cart metrics
	CartAction(action string)
	CartPersistFailed()
	CartMerged()
	SyncPushed(success bool)
	SyncSkipped()

	// Inventory metrics
	InventoryPolled(itemCount int)
	InventoryIssues(count int)
	HoldExpiring()
	HoldExpired()

	// Checkout metrics
	CheckoutSubmitted(paymentMethod string)
	CheckoutCompleted(kind string, duration time.Duration)
	CheckoutFailed(reason string)
}

// Dedup hit kinds.
const (
	DedupHitInFlight = "inflight"
	DedupHitWindow   = "window"
)

// Checkout failure reasons.
const (
	FailValidation = "validation"
	FailInventory  = "inventory"
	FailBackend    = "backend"
	FailDuplicate  = "duplicate"
)

// NoopMetrics is a no-op implementation of Metrics for testing or when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (n *NoopMetrics) DedupHit(kind string)                           {}
func (n *NoopMetrics) DedupExecuted(success bool)                     {}
func (n *NoopMetrics) CooldownBlocked()                               {}
func (n *NoopMetrics) CartAction(action string)                       {}
func (n *NoopMetrics) CartPersistFailed()                             {}
func (n *NoopMetrics) CartMerged()                                    {}
func (n *NoopMetrics) SyncPushed(success bool)                        {}
func (n *NoopMetrics) SyncSkipped()                                   {}
func (n *NoopMetrics) InventoryPolled(itemCount int)                  {}
func (n *NoopMetrics) InventoryIssues(count int)                      {}
func (n *NoopMetrics) HoldExpiring()                                  {}
func (n *NoopMetrics) HoldExpired()                                   {}
func (n *NoopMetrics) CheckoutSubmitted(paymentMethod string)         {}
func (n *NoopMetrics) CheckoutCompleted(kind string, d time.Duration) {}
func (n *NoopMetrics) CheckoutFailed(reason string)                   {}
