package cartflow

import (
	"time"

	"go.uber.org/zap"

	"cartflow/cart"
	"cartflow/dedup"
	"cartflow/event"
	"cartflow/inventory"
	"cartflow/metrics"
	"cartflow/tracing"
)

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithCartStore wires the cart store the orchestrator reads from. It also
// enables the remove-unavailable remediation on inventory conflicts.
func WithCartStore(store *cart.Store) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithInventoryMonitor enables the pre-submit inventory re-verification.
func WithInventoryMonitor(m *inventory.Monitor) Option {
	return func(o *Orchestrator) {
		o.monitor = m
	}
}

// WithRedirector sets the collaborator that performs the browser handoff
// for redirect-kind sessions.
func WithRedirector(r Redirector) Option {
	return func(o *Orchestrator) {
		o.redirector = r
	}
}

// WithReturnURLs sets the success and cancel URLs passed to the backend
// when creating a session.
func WithReturnURLs(successURL, cancelURL string) Option {
	return func(o *Orchestrator) {
		o.successURL = successURL
		o.cancelURL = cancelURL
	}
}

// WithThrowOnDuplicate makes Submit surface duplicate submissions as errors
// instead of silent results: dedup.ErrDuplicateRequest for a
// window-suppressed duplicate, ErrCheckoutInProgress when the submission
// guard blocks a re-entrant call.
func WithThrowOnDuplicate() Option {
	return func(o *Orchestrator) {
		o.throwOnDuplicate = true
	}
}

// WithDeduplicator replaces the internal session-call deduplicator.
func WithDeduplicator(d *dedup.Deduplicator) Option {
	return func(o *Orchestrator) {
		o.dedup = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithBus sets the event bus.
func WithBus(bus event.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracing.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}
