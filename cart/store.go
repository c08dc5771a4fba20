package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"cartflow/event"
	"cartflow/metrics"
	"cartflow/storage"
)

// DefaultStorageKey is the storage key the cart blob is persisted under.
const DefaultStorageKey = "cartflow:cart"

// Store owns the authoritative local cart. State is only ever replaced
// wholesale through the reducer; other components read a copy or dispatch
// actions. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	state    State
	hydrated bool

	storage    storage.Store
	storageKey string
	logger     *zap.Logger
	bus        event.Bus
	metrics    metrics.Metrics

	subs   []func(State)
	syncer *Syncer
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithStorage sets the durable storage backend and key.
func WithStorage(s storage.Store, key string) StoreOption {
	return func(st *Store) {
		st.storage = s
		if key != "" {
			st.storageKey = key
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(st *Store) {
		st.logger = logger
	}
}

// WithStoreBus sets the event bus.
func WithStoreBus(bus event.Bus) StoreOption {
	return func(st *Store) {
		st.bus = bus
	}
}

// WithStoreMetrics sets the metrics collector.
func WithStoreMetrics(m metrics.Metrics) StoreOption {
	return func(st *Store) {
		st.metrics = m
	}
}

// NewStore creates a new cart store. Call Hydrate before dispatching so the
// persisted cart survives reloads.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		storageKey: DefaultStorageKey,
		logger:     zap.NewNop(),
		bus:        event.NewMemoryBus(),
		metrics:    &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Hydrate loads the persisted cart from storage, drops any stored line items
// that fail shape validation, and marks the store hydrated. Storage failures
// are logged and swallowed; the in-memory cart stays authoritative.
func (st *Store) Hydrate(ctx context.Context) error {
	loaded := State{}

	if st.storage != nil {
		blob, err := st.storage.Read(ctx, st.storageKey)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// First visit, nothing persisted yet.
		case err != nil:
			st.logger.Warn("cart storage read failed", zap.Error(err))
		default:
			var stored State
			if err := json.Unmarshal(blob, &stored); err != nil {
				st.logger.Warn("discarding unparseable cart blob", zap.Error(err))
			} else {
				loaded = filterValid(stored, st.logger)
			}
		}
	}

	st.mu.Lock()
	next, err := Apply(st.state, Hydrate{State: loaded})
	if err != nil {
		st.mu.Unlock()
		return err
	}
	st.state = next
	st.hydrated = true
	st.mu.Unlock()

	st.notify(next)
	st.bus.Publish(ctx, event.New(event.TypeCartHydrated).WithData("items", len(next.Items)))
	return nil
}

// Hydrated reports whether Hydrate has completed.
func (st *Store) Hydrated() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.hydrated
}

// Dispatch applies an action through the reducer, persists the new state
// best-effort, notifies subscribers, and schedules a server push when a
// syncer is attached. The only error returned is a reducer error.
func (st *Store) Dispatch(ctx context.Context, action Action) error {
	st.mu.Lock()
	next, err := Apply(st.state, action)
	if err != nil {
		st.mu.Unlock()
		return err
	}
	st.state = next
	persist := st.hydrated
	syncer := st.syncer
	st.mu.Unlock()

	st.metrics.CartAction(action.name())

	if persist {
		st.persist(ctx, next)
	}

	st.notify(next)
	st.bus.Publish(ctx, event.New(event.TypeCartUpdated).WithData("action", action.name()))

	if syncer != nil {
		if _, isHydrate := action.(Hydrate); !isHydrate {
			syncer.Schedule(next)
		}
	}
	return nil
}

// State returns a copy of the current cart state.
func (st *Store) State() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Clone()
}

// Subscribe registers a listener invoked with the new state after every
// transition. Listeners run on the dispatching goroutine and must not block.
func (st *Store) Subscribe(fn func(State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subs = append(st.subs, fn)
}

// persist writes the state to storage. Failures are logged and swallowed,
// never surfaced to the dispatcher.
func (st *Store) persist(ctx context.Context, s State) {
	if st.storage == nil {
		return
	}

	blob, err := json.Marshal(s)
	if err != nil {
		st.logger.Error("cart serialize failed", zap.Error(err))
		st.metrics.CartPersistFailed()
		return
	}
	if err := st.storage.Write(ctx, st.storageKey, blob); err != nil {
		st.logger.Warn("cart storage write failed", zap.Error(err))
		st.metrics.CartPersistFailed()
	}
}

func (st *Store) notify(s State) {
	st.mu.RLock()
	subs := make([]func(State), len(st.subs))
	copy(subs, st.subs)
	st.mu.RUnlock()

	for _, fn := range subs {
		fn(s.Clone())
	}
}

func (st *Store) attachSyncer(s *Syncer) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.syncer = s
}

// hydrateMerged replaces the state with a merge result without scheduling a
// push; the syncer pushes the merged state itself.
func (st *Store) hydrateMerged(ctx context.Context, merged State) error {
	st.mu.Lock()
	next, err := Apply(st.state, Hydrate{State: merged})
	if err != nil {
		st.mu.Unlock()
		return err
	}
	st.state = next
	persist := st.hydrated
	st.mu.Unlock()

	if persist {
		st.persist(ctx, next)
	}
	st.notify(next)
	return nil
}

// filterValid drops stored line items that fail shape validation.
func filterValid(s State, logger *zap.Logger) State {
	out := State{PromoCode: s.PromoCode}
	for _, li := range s.Items {
		if !validStoredItem(li) {
			logger.Warn("dropping invalid stored cart item",
				zap.String("product_id", li.ProductID),
				zap.String("variant_id", li.VariantID))
			continue
		}
		out.Items = append(out.Items, li)
	}
	return out
}
