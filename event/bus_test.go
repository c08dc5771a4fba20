package event

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryBus_PublishToTypeHandler(t *testing.T) {
	bus := NewMemoryBus()

	var got []Event
	bus.Subscribe(TypeCartUpdated, func(ctx context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	e := New(TypeCartUpdated).WithItem("sku_a", "")
	if err := bus.Publish(context.Background(), e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ProductID != "sku_a" {
		t.Errorf("expected product sku_a, got %s", got[0].ProductID)
	}
}

func TestMemoryBus_TypeHandlerNotCalledForOtherTypes(t *testing.T) {
	bus := NewMemoryBus()

	called := false
	bus.Subscribe(TypeHoldExpired, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})

	bus.Publish(context.Background(), New(TypeCartUpdated))
	if called {
		t.Error("hold handler should not receive cart events")
	}
}

func TestMemoryBus_SubscribeAll(t *testing.T) {
	bus := NewMemoryBus()

	count := 0
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		count++
		return nil
	})

	bus.Publish(context.Background(), New(TypeCartUpdated))
	bus.Publish(context.Background(), New(TypeHoldExpired))
	bus.Publish(context.Background(), New(TypeCheckoutFailed))

	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}

func TestMemoryBus_HandlerErrorDoesNotBlockOthers(t *testing.T) {
	bus := NewMemoryBus()

	second := false
	bus.Subscribe(TypeCartUpdated, func(ctx context.Context, e Event) error {
		return errors.New("subscriber broke")
	})
	bus.Subscribe(TypeCartUpdated, func(ctx context.Context, e Event) error {
		second = true
		return nil
	})

	if err := bus.Publish(context.Background(), New(TypeCartUpdated)); err != nil {
		t.Fatalf("publish should not surface handler errors, got %v", err)
	}
	if !second {
		t.Error("second handler should still run")
	}
}

func TestMemoryBus_HandlerPanicRecovered(t *testing.T) {
	bus := NewMemoryBus()

	bus.Subscribe(TypeCheckoutFailed, func(ctx context.Context, e Event) error {
		panic("boom")
	})

	if err := bus.Publish(context.Background(), New(TypeCheckoutFailed)); err != nil {
		t.Fatalf("publish should survive handler panic, got %v", err)
	}
}

func TestMemoryBus_ConcurrentPublish(t *testing.T) {
	bus := NewMemoryBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), New(TypeCartUpdated))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Errorf("expected 50 deliveries, got %d", count)
	}
}
