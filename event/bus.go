package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler processes a published event. Handler errors are logged, never
// propagated to the publisher.
type Handler func(ctx context.Context, event Event) error

// Bus is the event bus interface.
type Bus interface {
	// Publish publishes an event to all subscribed handlers.
	Publish(ctx context.Context, event Event) error
	// Subscribe registers a handler for a single event type.
	Subscribe(eventType Type, handler Handler) error
	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler Handler) error
}

// MemoryBus is an in-memory Bus implementation.
type MemoryBus struct {
	mu          sync.RWMutex
	handlers    map[Type][]Handler
	allHandlers []Handler
	logger      *zap.Logger
}

// MemoryBusOption configures a MemoryBus.
type MemoryBusOption func(*MemoryBus)

// WithLogger sets a custom logger for the event bus.
func WithLogger(logger *zap.Logger) MemoryBusOption {
	return func(b *MemoryBus) {
		b.logger = logger
	}
}

// NewMemoryBus creates a new in-memory event bus.
func NewMemoryBus(opts ...MemoryBusOption) *MemoryBus {
	bus := &MemoryBus{
		handlers: make(map[Type][]Handler),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Publish publishes an event to all subscribed handlers.
// Handler errors are logged but do not block the publisher.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	// Copy handlers to avoid holding the lock during execution
	typeHandlers := make([]Handler, len(b.handlers[event.Type]))
	copy(typeHandlers, b.handlers[event.Type])
	allHandlers := make([]Handler, len(b.allHandlers))
	copy(allHandlers, b.allHandlers)
	b.mu.RUnlock()

	for _, handler := range typeHandlers {
		b.executeHandler(ctx, handler, event)
	}
	for _, handler := range allHandlers {
		b.executeHandler(ctx, handler, event)
	}

	return nil
}

// executeHandler executes a single handler, recovering panics and logging
// errors so a misbehaving subscriber cannot break the publishing component.
func (b *MemoryBus) executeHandler(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("event", string(event.Type)),
				zap.Any("panic", r))
		}
	}()

	if err := handler(ctx, event); err != nil {
		b.logger.Warn("event handler error",
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
}

// Subscribe registers a handler for a single event type.
func (b *MemoryBus) Subscribe(eventType Type, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for every event type.
func (b *MemoryBus) SubscribeAll(handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

var _ Bus = (*MemoryBus)(nil)
