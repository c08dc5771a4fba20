package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cartflow/storage"
)

// ============================================================================
// Test Helpers
// ============================================================================

// failingStorage fails every operation; used to verify persistence errors
// are swallowed.
type failingStorage struct{}

func (failingStorage) Read(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func (failingStorage) Write(ctx context.Context, key string, value []byte) error {
	return errors.New("disk on fire")
}

func (failingStorage) Delete(ctx context.Context, key string) error {
	return errors.New("disk on fire")
}

// ============================================================================
// Hydration Tests
// ============================================================================

func TestStore_HydrateEmptyStorage(t *testing.T) {
	st := NewStore(WithStorage(storage.NewMemoryStore(), ""))

	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if !st.Hydrated() {
		t.Error("expected store hydrated")
	}
	if !st.State().IsEmpty() {
		t.Errorf("expected empty cart, got %+v", st.State())
	}
}

func TestStore_HydrateRestoresPersistedCart(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()

	persisted := State{Items: []LineItem{item("sku_a", "", 2)}, PromoCode: "SAVE10"}
	blob, _ := json.Marshal(persisted)
	mem.Write(ctx, DefaultStorageKey, blob)

	st := NewStore(WithStorage(mem, ""))
	if err := st.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	got := st.State()
	if len(got.Items) != 1 || got.Items[0].Qty != 2 {
		t.Errorf("expected restored cart, got %+v", got)
	}
	if got.PromoCode != "SAVE10" {
		t.Errorf("expected promo restored, got %q", got.PromoCode)
	}
}

func TestStore_HydrateDropsInvalidItems(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()

	stored := State{Items: []LineItem{
		item("sku_a", "", 1),
		{ProductID: "", Qty: 1, UnitPrice: 100, Currency: "USD", TitleSnapshot: "x"}, // no product id
		{ProductID: "sku_b", Qty: 0, UnitPrice: 100, Currency: "USD", TitleSnapshot: "x"}, // zero qty
		{ProductID: "sku_c", Qty: 1, UnitPrice: 100, Currency: "", TitleSnapshot: "x"}, // no currency
		{ProductID: "sku_d", Qty: 1, UnitPrice: 100, Currency: "USD", TitleSnapshot: ""}, // no title
	}}
	blob, _ := json.Marshal(stored)
	mem.Write(ctx, DefaultStorageKey, blob)

	st := NewStore(WithStorage(mem, ""))
	st.Hydrate(ctx)

	got := st.State()
	if len(got.Items) != 1 || got.Items[0].ProductID != "sku_a" {
		t.Errorf("expected only the valid item to survive, got %+v", got.Items)
	}
}

func TestStore_HydrateSwallowsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	mem.Write(ctx, DefaultStorageKey, []byte("not json {{{"))

	st := NewStore(WithStorage(mem, ""))
	if err := st.Hydrate(ctx); err != nil {
		t.Fatalf("corrupt blob must not fail hydration: %v", err)
	}
	if !st.State().IsEmpty() {
		t.Errorf("expected empty cart, got %+v", st.State())
	}
}

func TestStore_HydrateSwallowsReadFailure(t *testing.T) {
	st := NewStore(WithStorage(failingStorage{}, ""))
	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("read failure must not fail hydration: %v", err)
	}
	if !st.Hydrated() {
		t.Error("expected store hydrated despite read failure")
	}
}

// ============================================================================
// Dispatch and Persistence Tests
// ============================================================================

func TestStore_DispatchPersistsAfterHydration(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	st := NewStore(WithStorage(mem, ""))
	st.Hydrate(ctx)

	if err := st.Dispatch(ctx, Add{Item: item("sku_a", "", 0), Qty: 2}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	blob, err := mem.Read(ctx, DefaultStorageKey)
	if err != nil {
		t.Fatalf("expected persisted blob: %v", err)
	}
	var persisted State
	if err := json.Unmarshal(blob, &persisted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(persisted.Items) != 1 || persisted.Items[0].Qty != 2 {
		t.Errorf("expected persisted cart, got %+v", persisted)
	}
}

func TestStore_DispatchSurvivesWriteFailure(t *testing.T) {
	ctx := context.Background()
	st := NewStore(WithStorage(failingStorage{}, ""))
	st.Hydrate(ctx)

	if err := st.Dispatch(ctx, Add{Item: item("sku_a", "", 0), Qty: 1}); err != nil {
		t.Fatalf("write failure must not fail dispatch: %v", err)
	}
	if len(st.State().Items) != 1 {
		t.Error("local state must stay authoritative despite write failure")
	}
}

func TestStore_DispatchUnknownActionFails(t *testing.T) {
	type rogueAction struct{ Action }
	st := NewStore()
	if err := st.Dispatch(context.Background(), rogueAction{}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestStore_SubscribersSeeEveryTransition(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	st.Hydrate(ctx)

	var states []State
	st.Subscribe(func(s State) {
		states = append(states, s)
	})

	st.Dispatch(ctx, Add{Item: item("sku_a", "", 0), Qty: 1})
	st.Dispatch(ctx, SetQty{ProductID: "sku_a", Qty: 4})

	if len(states) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(states))
	}
	if states[1].Items[0].Qty != 4 {
		t.Errorf("expected final qty 4, got %d", states[1].Items[0].Qty)
	}
}

func TestStore_StateReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	st.Hydrate(ctx)
	st.Dispatch(ctx, Add{Item: item("sku_a", "", 0), Qty: 1})

	got := st.State()
	got.Items[0].Qty = 99

	if st.State().Items[0].Qty != 1 {
		t.Error("store state mutated through returned copy")
	}
}
