package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"cartflow/event"
	"cartflow/metrics"
	"cartflow/tracing"
)

// DefaultDebounce is the debounce applied to server pushes: rapid local
// mutations coalesce into a single push of the latest state.
const DefaultDebounce = 800 * time.Millisecond

// ErrRemoteCartNotFound indicates the customer has no server-side cart yet.
var ErrRemoteCartNotFound = errors.New("remote cart not found")

// RemoteCart is the subset of the commerce backend the syncer needs.
// Declared here so the cart package does not depend on the backend package.
type RemoteCart interface {
	// GetCart returns the server-side cart for a customer, or
	// ErrRemoteCartNotFound when none exists.
	GetCart(ctx context.Context, customerID string) (*State, error)

	// UpdateCart replaces the server-side cart for a customer.
	UpdateCart(ctx context.Context, customerID string, s State) error
}

// Syncer reconciles the local cart with its server copy: it merges exactly
// once per signed-in session, then pushes subsequent local mutations on a
// debounce, skipping pushes whose payload matches the last one sent. Push
// failures never roll back local state.
type Syncer struct {
	store  *Store
	remote RemoteCart

	mu         sync.Mutex
	customerID string
	mergedFor  string
	merging    string
	pending    *State
	timer      *time.Timer
	stopped    bool

	lastPushedHash uint64
	hasPushed      bool

	debounce time.Duration
	logger   *zap.Logger
	bus      event.Bus
	metrics  metrics.Metrics
	tracer   tracing.Tracer
}

// SyncerOption is a functional option for configuring a Syncer.
type SyncerOption func(*Syncer)

// WithDebounce sets the push debounce interval.
func WithDebounce(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithSyncerLogger sets the logger.
func WithSyncerLogger(logger *zap.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithSyncerBus sets the event bus.
func WithSyncerBus(bus event.Bus) SyncerOption {
	return func(s *Syncer) {
		s.bus = bus
	}
}

// WithSyncerMetrics sets the metrics collector.
func WithSyncerMetrics(m metrics.Metrics) SyncerOption {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithSyncerTracer sets the tracer used for push spans.
func WithSyncerTracer(t tracing.Tracer) SyncerOption {
	return func(s *Syncer) {
		s.tracer = t
	}
}

// NewSyncer creates a syncer bound to the given store and remote backend,
// and attaches it to the store so dispatches schedule pushes.
func NewSyncer(store *Store, remote RemoteCart, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		store:    store,
		remote:   remote,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		bus:      event.NewMemoryBus(),
		metrics:  &metrics.NoopMetrics{},
		tracer:   &tracing.NoopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	store.attachSyncer(s)
	return s
}

// MergeForUser reconciles the local cart with the server copy for the given
// customer, exactly once per signed-in session. A call overlapping an
// in-flight merge for the same customer returns immediately without applying
// the server cart a second time. Passing a different customer ID resets the
// guard; passing the empty string signs the syncer out and stops pushes.
func (s *Syncer) MergeForUser(ctx context.Context, customerID string) error {
	s.mu.Lock()
	if customerID == "" {
		s.customerID = ""
		s.mergedFor = ""
		s.merging = ""
		s.hasPushed = false
		s.mu.Unlock()
		return nil
	}
	if s.mergedFor == customerID || s.merging == customerID {
		s.mu.Unlock()
		return nil
	}
	if s.mergedFor != "" && s.mergedFor != customerID {
		// User changed mid-session: forget the previous session's push state.
		s.hasPushed = false
	}
	// Claimed before the fetch starts so overlapping calls see it; released
	// on failure so a later merge retries.
	s.merging = customerID
	s.mu.Unlock()

	server := State{}
	remote, err := s.remote.GetCart(ctx, customerID)
	switch {
	case errors.Is(err, ErrRemoteCartNotFound):
		// Nothing server-side yet; the merged cart is just the local one.
	case err != nil:
		s.logger.Warn("server cart fetch failed", zap.String("customer_id", customerID), zap.Error(err))
		s.releaseMerge(customerID)
		return fmt.Errorf("fetch server cart: %w", err)
	case remote != nil:
		server = *remote
	}

	merged := Merge(s.store.State(), server)
	if err := s.store.hydrateMerged(ctx, merged); err != nil {
		s.releaseMerge(customerID)
		return err
	}

	s.mu.Lock()
	s.customerID = customerID
	s.mergedFor = customerID
	if s.merging == customerID {
		s.merging = ""
	}
	s.mu.Unlock()

	s.metrics.CartMerged()
	s.bus.Publish(ctx, event.New(event.TypeCartMerged).WithData("customer_id", customerID))

	// Push the merged result so the server converges; goes through the
	// debounce so an immediately following mutation coalesces with it.
	s.Schedule(merged)
	return nil
}

// releaseMerge drops the in-flight claim for the given customer without
// marking the merge done.
func (s *Syncer) releaseMerge(customerID string) {
	s.mu.Lock()
	if s.merging == customerID {
		s.merging = ""
	}
	s.mu.Unlock()
}

// Schedule records state as the pending push payload and arms the debounce
// timer if it is not already running. Only the latest state within the
// debounce window is sent. No-op before a successful merge or after Stop.
func (s *Syncer) Schedule(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.customerID == "" {
		return
	}

	s.pending = &state
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, func() {
			s.FlushNow(context.Background())
		})
	}
}

// FlushNow pushes the pending state immediately, bypassing the debounce.
// A payload identical to the last successfully pushed one is skipped
// entirely. Safe to call with no pending state.
func (s *Syncer) FlushNow(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending == nil || s.customerID == "" {
		s.mu.Unlock()
		return
	}
	state := *s.pending
	s.pending = nil
	customerID := s.customerID
	s.mu.Unlock()

	blob, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("cart push serialize failed", zap.Error(err))
		return
	}
	h := fnv.New64a()
	h.Write(blob)
	hash := h.Sum64()

	s.mu.Lock()
	if s.hasPushed && s.lastPushedHash == hash {
		s.mu.Unlock()
		s.metrics.SyncSkipped()
		s.logger.Debug("cart push skipped, payload unchanged", zap.String("customer_id", customerID))
		return
	}
	s.mu.Unlock()

	ctx, span := s.tracer.StartCartSync(ctx, customerID)
	defer span.End()

	if err := s.remote.UpdateCart(ctx, customerID, state); err != nil {
		// Local state stays authoritative; the next mutation retries with
		// the newest payload.
		span.SetError(err)
		s.logger.Warn("cart push failed", zap.String("customer_id", customerID), zap.Error(err))
		s.metrics.SyncPushed(false)
		s.bus.Publish(ctx, event.New(event.TypeCartSyncFailed).WithError(err))
		return
	}

	s.mu.Lock()
	s.lastPushedHash = hash
	s.hasPushed = true
	s.mu.Unlock()

	s.metrics.SyncPushed(true)
	s.bus.Publish(ctx, event.New(event.TypeCartSynced).WithData("customer_id", customerID))
}

// Stop cancels the debounce timer. In-flight pushes run to completion; their
// results are simply no longer relevant.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}
