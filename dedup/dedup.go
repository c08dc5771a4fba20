// Package dedup provides request deduplication for the cartflow library.
//
// A Deduplicator guarantees at-most-one concurrent execution per request key:
// while an operation is in flight, additional callers for the same key attach
// to the in-flight execution and receive its result. After an operation
// settles, re-issuing it within the completion window is treated as a
// duplicate and either suppressed or surfaced as ErrDuplicateRequest.
package dedup

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cartflow/metrics"
)

// ErrDuplicateRequest is a control-flow signal, not a true failure: it means
// the exact operation identified by the key is already running or just ran.
var ErrDuplicateRequest = errors.New("duplicate request")

// DefaultCapacity is the maximum number of tracked keys per map before bulk eviction.
const DefaultCapacity = 1000

// DefaultWindow is the default completion window during which a settled key
// is still treated as a duplicate.
const DefaultWindow = 2 * time.Second

// call tracks a single in-flight execution. Callers wait on done and then
// read val/err; both are written exactly once, before done is closed.
type call struct {
	done chan struct{}
	val  any
	err  error
}

// Deduplicator is a bounded-size, time-windowed cache of in-flight and
// recently-completed request keys. It is safe for concurrent use.
type Deduplicator struct {
	mu sync.Mutex

	inFlight      map[string]*call
	inFlightOrder []string

	completed      map[string]time.Time
	completedOrder []string

	capacity int
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  metrics.Metrics
}

// Option is a functional option for configuring a Deduplicator.
type Option func(*Deduplicator)

// WithCapacity sets the maximum number of tracked keys per map.
func WithCapacity(capacity int) Option {
	return func(d *Deduplicator) {
		if capacity > 0 {
			d.capacity = capacity
		}
	}
}

// WithWindow sets the default completion window.
func WithWindow(window time.Duration) Option {
	return func(d *Deduplicator) {
		d.window = window
	}
}

// WithNow sets the time source. Used in tests for deterministic time control.
func WithNow(now func() time.Time) Option {
	return func(d *Deduplicator) {
		d.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Deduplicator) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) Option {
	return func(d *Deduplicator) {
		d.metrics = m
	}
}

// New creates a new Deduplicator with the given options.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		inFlight:  make(map[string]*call),
		completed: make(map[string]time.Time),
		capacity:  DefaultCapacity,
		window:    DefaultWindow,
		now:       time.Now,
		logger:    zap.NewNop(),
		metrics:   &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// doConfig holds per-call configuration.
type doConfig struct {
	window           time.Duration
	throwOnDuplicate bool
}

// DoOption is a functional option for a single Do call.
type DoOption func(*doConfig)

// WithDoWindow overrides the completion window for this call.
func WithDoWindow(window time.Duration) DoOption {
	return func(c *doConfig) {
		c.window = window
	}
}

// WithThrowOnDuplicate makes a completion-window duplicate surface as
// ErrDuplicateRequest instead of a silent no-op.
func WithThrowOnDuplicate() DoOption {
	return func(c *doConfig) {
		c.throwOnDuplicate = true
	}
}

// Do executes fn at most once concurrently per key.
//
// If an execution for key is in flight, Do waits for it and returns its
// result. If key settled within the completion window, Do returns
// ErrDuplicateRequest when WithThrowOnDuplicate is set, otherwise (nil, nil).
// Otherwise fn runs; on settlement (success or failure) the in-flight entry
// is always removed and a completion record is written, so a failed call can
// be retried after the window but rapid repeated failures are rate-limited
// the same as rapid repeated successes.
func (d *Deduplicator) Do(ctx context.Context, key string, fn func(context.Context) (any, error), opts ...DoOption) (any, error) {
	cfg := doConfig{window: d.window}
	for _, opt := range opts {
		opt(&cfg)
	}

	d.mu.Lock()

	if c, ok := d.inFlight[key]; ok {
		d.mu.Unlock()
		d.metrics.DedupHit(metrics.DedupHitInFlight)
		d.logger.Debug("attaching to in-flight request", zap.String("key", key))
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if completedAt, ok := d.completed[key]; ok && d.now().Sub(completedAt) < cfg.window {
		d.mu.Unlock()
		d.metrics.DedupHit(metrics.DedupHitWindow)
		if cfg.throwOnDuplicate {
			return nil, ErrDuplicateRequest
		}
		d.logger.Debug("suppressing recently-completed request", zap.String("key", key))
		return nil, nil
	}

	c := &call{done: make(chan struct{})}
	d.inFlight[key] = c
	d.inFlightOrder = append(d.inFlightOrder, key)
	d.evictInFlightLocked()
	d.mu.Unlock()

	c.val, c.err = fn(ctx)

	d.mu.Lock()
	delete(d.inFlight, key)
	if len(d.inFlightOrder) > 2*d.capacity {
		d.compactInFlightOrderLocked()
	}
	if _, tracked := d.completed[key]; !tracked {
		// Refreshing an existing record keeps its original insertion position.
		d.completedOrder = append(d.completedOrder, key)
	}
	d.completed[key] = d.now()
	d.evictCompletedLocked()
	d.mu.Unlock()

	close(c.done)

	d.metrics.DedupExecuted(c.err == nil)
	return c.val, c.err
}

// InFlight reports whether an execution for key is currently in flight.
func (d *Deduplicator) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[key]
	return ok
}

// Len returns the number of tracked in-flight and completed keys.
func (d *Deduplicator) Len() (inFlight, completed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight), len(d.completed)
}

// evictInFlightLocked evicts the oldest in-flight entries in bulk down to
// capacity. Eviction is by insertion order; the order slice may carry keys
// whose entries already settled, those are skipped and compacted away.
func (d *Deduplicator) evictInFlightLocked() {
	if len(d.inFlight) <= d.capacity {
		return
	}
	d.inFlightOrder = evictOldest(d.inFlightOrder, d.capacity, func(key string) bool {
		if _, ok := d.inFlight[key]; !ok {
			return false
		}
		delete(d.inFlight, key)
		return true
	}, func(key string) bool {
		_, ok := d.inFlight[key]
		return ok
	})
}

// compactInFlightOrderLocked drops settled keys from the insertion-order
// slice. Settled entries leave stale keys behind; compaction keeps the slice
// proportional to the number of live entries.
func (d *Deduplicator) compactInFlightOrderLocked() {
	compacted := d.inFlightOrder[:0]
	for _, key := range d.inFlightOrder {
		if _, ok := d.inFlight[key]; ok {
			compacted = append(compacted, key)
		}
	}
	d.inFlightOrder = compacted
}

func (d *Deduplicator) evictCompletedLocked() {
	if len(d.completed) <= d.capacity {
		return
	}
	d.completedOrder = evictOldest(d.completedOrder, d.capacity, func(key string) bool {
		if _, ok := d.completed[key]; !ok {
			return false
		}
		delete(d.completed, key)
		return true
	}, func(key string) bool {
		_, ok := d.completed[key]
		return ok
	})
}

// evictOldest removes live entries from the front of order until the live
// count drops to capacity, then returns the order slice compacted to the
// surviving live keys. remove must delete the entry and report whether the
// key was live; alive reports liveness without removal.
func evictOldest(order []string, capacity int, remove func(string) bool, alive func(string) bool) []string {
	live := 0
	for _, key := range order {
		if alive(key) {
			live++
		}
	}

	i := 0
	for ; i < len(order) && live > capacity; i++ {
		if remove(order[i]) {
			live--
		}
	}

	compacted := make([]string, 0, live)
	for _, key := range order[i:] {
		if alive(key) {
			compacted = append(compacted, key)
		}
	}
	return compacted
}
