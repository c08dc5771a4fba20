// Package tracing provides OpenTelemetry tracing integration for the cart
// and checkout flows.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer defines the interface for distributed tracing.
type Tracer interface {
	// StartCheckout starts a root span for a checkout attempt.
	StartCheckout(ctx context.Context, attemptID string, itemCount int) (context.Context, Span)

	// StartCartSync starts a span for a server-side cart push.
	StartCartSync(ctx context.Context, customerID string) (context.Context, Span)

	// StartInventoryPoll starts a span for an inventory poll.
	StartInventoryPoll(ctx context.Context, productCount int) (context.Context, Span)
}

// Span represents an active tracing span.
type Span interface {
	// End completes the span.
	End()

	// SetError marks the span as having an error.
	SetError(err error)

	// SetStatus sets the span status.
	SetStatus(code codes.Code, description string)

	// SetAttributes adds attributes to the span.
	SetAttributes(attrs ...attribute.KeyValue)

	// AddEvent adds an event to the span.
	AddEvent(name string, attrs ...attribute.KeyValue)
}

// OTelTracer implements Tracer using OpenTelemetry.
type OTelTracer struct {
	tracer trace.Tracer
}

// Config holds configuration for OTelTracer.
type Config struct {
	// ServiceName is the name of the service for tracing.
	ServiceName string
	// TracerProvider is the OpenTelemetry tracer provider. If nil, the global provider is used.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "cartflow",
		TracerProvider: nil,
	}
}

// NewOTelTracer creates a new OTelTracer with the given configuration.
func NewOTelTracer(cfg Config) *OTelTracer {
	var tp trace.TracerProvider
	if cfg.TracerProvider != nil {
		tp = cfg.TracerProvider
	} else {
		tp = otel.GetTracerProvider()
	}

	return &OTelTracer{
		tracer: tp.Tracer(cfg.ServiceName),
	}
}

// StartCheckout starts a root span for a checkout attempt.
func (t *OTelTracer) StartCheckout(ctx context.Context, attemptID string, itemCount int) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, "checkout.submit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("checkout.attempt_id", attemptID),
			attribute.Int("cart.item_count", itemCount),
		),
	)
	return ctx, &otelSpan{span: span}
}

// StartCartSync starts a span for a server-side cart push.
func (t *OTelTracer) StartCartSync(ctx context.Context, customerID string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, "cart.sync",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cart.customer_id", customerID),
		),
	)
	return ctx, &otelSpan{span: span}
}

// StartInventoryPoll starts a span for an inventory poll.
func (t *OTelTracer) StartInventoryPoll(ctx context.Context, productCount int) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, "inventory.poll",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("inventory.product_count", productCount),
		),
	)
	return ctx, &otelSpan{span: span}
}

// otelSpan wraps an OpenTelemetry span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetError(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// NoopTracer is a no-op implementation of Tracer for testing or when tracing is disabled.
type NoopTracer struct{}

var _ Tracer = (*NoopTracer)(nil)

func (n *NoopTracer) StartCheckout(ctx context.Context, attemptID string, itemCount int) (context.Context, Span) {
	return ctx, &noopSpan{}
}

func (n *NoopTracer) StartCartSync(ctx context.Context, customerID string) (context.Context, Span) {
	return ctx, &noopSpan{}
}

func (n *NoopTracer) StartInventoryPoll(ctx context.Context, productCount int) (context.Context, Span) {
	return ctx, &noopSpan{}
}

// noopSpan is a no-op span implementation.
type noopSpan struct{}

func (s *noopSpan) End()                                              {}
func (s *noopSpan) SetError(err error)                                {}
func (s *noopSpan) SetStatus(code codes.Code, description string)     {}
func (s *noopSpan) SetAttributes(attrs ...attribute.KeyValue)         {}
func (s *noopSpan) AddEvent(name string, attrs ...attribute.KeyValue) {}
