package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*OTelTracer, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	tracer := NewOTelTracer(Config{
		ServiceName:    "test-cartflow",
		TracerProvider: tp,
	})
	return tracer, exporter, tp
}

func TestOTelTracer_StartCheckout(t *testing.T) {
	tracer, exporter, tp := newTestTracer(t)

	ctx := context.Background()
	_, span := tracer.StartCheckout(ctx, "attempt-123", 3)
	span.End()

	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if s.Name != "checkout.submit" {
		t.Errorf("expected span name 'checkout.submit', got '%s'", s.Name)
	}

	foundAttempt := false
	foundCount := false
	for _, attr := range s.Attributes {
		switch string(attr.Key) {
		case "checkout.attempt_id":
			foundAttempt = true
			if attr.Value.AsString() != "attempt-123" {
				t.Errorf("expected attempt_id 'attempt-123', got '%s'", attr.Value.AsString())
			}
		case "cart.item_count":
			foundCount = true
			if attr.Value.AsInt64() != 3 {
				t.Errorf("expected item_count 3, got %d", attr.Value.AsInt64())
			}
		}
	}
	if !foundAttempt {
		t.Error("checkout.attempt_id attribute not found")
	}
	if !foundCount {
		t.Error("cart.item_count attribute not found")
	}
}

func TestOTelTracer_StartCartSync(t *testing.T) {
	tracer, exporter, tp := newTestTracer(t)

	_, span := tracer.StartCartSync(context.Background(), "cust_1")
	span.End()
	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "cart.sync" {
		t.Errorf("expected span name 'cart.sync', got '%s'", spans[0].Name)
	}
}

func TestOTelSpan_SetError(t *testing.T) {
	tracer, exporter, tp := newTestTracer(t)

	_, span := tracer.StartInventoryPoll(context.Background(), 2)
	span.SetError(errors.New("backend unavailable"))
	span.End()
	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if s.Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status.Code)
	}
	if len(s.Events) != 1 {
		t.Errorf("expected 1 recorded error event, got %d", len(s.Events))
	}
}

func TestOTelSpan_SetErrorNil(t *testing.T) {
	tracer, exporter, tp := newTestTracer(t)

	_, span := tracer.StartCheckout(context.Background(), "attempt-1", 1)
	span.SetError(nil)
	span.End()
	tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if spans[0].Status.Code == codes.Error {
		t.Error("nil error must not mark the span failed")
	}
}

func TestNoopTracer(t *testing.T) {
	tracer := &NoopTracer{}
	ctx := context.Background()

	_, span := tracer.StartCheckout(ctx, "attempt-1", 1)
	span.SetError(errors.New("ignored"))
	span.AddEvent("ignored")
	span.End()

	_, span = tracer.StartCartSync(ctx, "cust_1")
	span.End()

	_, span = tracer.StartInventoryPoll(ctx, 0)
	span.End()
}
