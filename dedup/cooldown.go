package dedup

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cartflow/metrics"
)

// DefaultCooldown is the minimum gap enforced between successive initiations
// of the same action.
const DefaultCooldown = 200 * time.Millisecond

// DefaultCooldownCapacity is the maximum number of tracked cooldown keys.
const DefaultCooldownCapacity = 256

// Cooldown wraps user-triggered handlers so that rapid repeated triggers
// (double-click, key repeat) are absorbed without depending on UI disabling
// state. It layers a per-key initiation gate on top of a Deduplicator.
type Cooldown struct {
	dedup *Deduplicator

	mu    sync.Mutex
	until map[string]time.Time
	order []string

	capacity int
	cooldown time.Duration
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  metrics.Metrics
}

// CooldownOption is a functional option for configuring a Cooldown.
type CooldownOption func(*Cooldown)

// WithCooldownDuration sets the default cooldown between action initiations.
func WithCooldownDuration(d time.Duration) CooldownOption {
	return func(c *Cooldown) {
		c.cooldown = d
	}
}

// WithCooldownWindow sets the deduplication window used for wrapped handlers.
func WithCooldownWindow(window time.Duration) CooldownOption {
	return func(c *Cooldown) {
		c.window = window
	}
}

// WithCooldownCapacity sets the maximum number of tracked cooldown keys.
func WithCooldownCapacity(capacity int) CooldownOption {
	return func(c *Cooldown) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithCooldownNow sets the time source.
func WithCooldownNow(now func() time.Time) CooldownOption {
	return func(c *Cooldown) {
		c.now = now
	}
}

// WithCooldownLogger sets the logger.
func WithCooldownLogger(logger *zap.Logger) CooldownOption {
	return func(c *Cooldown) {
		c.logger = logger
	}
}

// WithCooldownMetrics sets the metrics collector.
func WithCooldownMetrics(m metrics.Metrics) CooldownOption {
	return func(c *Cooldown) {
		c.metrics = m
	}
}

// NewCooldown creates a new Cooldown gate backed by the given Deduplicator.
// A nil deduplicator gets a private one with default settings.
func NewCooldown(d *Deduplicator, opts ...CooldownOption) *Cooldown {
	if d == nil {
		d = New()
	}
	c := &Cooldown{
		dedup:    d,
		until:    make(map[string]time.Time),
		capacity: DefaultCooldownCapacity,
		cooldown: DefaultCooldown,
		window:   DefaultWindow,
		now:      time.Now,
		logger:   zap.NewNop(),
		metrics:  &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wrap returns a function that invokes handler through the cooldown gate and
// the deduplicator. A trigger inside the cooldown window is a silent no-op.
// Duplicate-request signals from the handler are swallowed; any other error
// is returned to the caller.
func (c *Cooldown) Wrap(key string, handler func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if !c.tryEnter(key) {
			c.metrics.CooldownBlocked()
			c.logger.Debug("action absorbed by cooldown", zap.String("key", key))
			return nil
		}

		_, err := c.dedup.Do(ctx, key, func(ctx context.Context) (any, error) {
			return nil, handler(ctx)
		}, WithDoWindow(c.window))
		if err != nil && !errors.Is(err, ErrDuplicateRequest) {
			return err
		}
		return nil
	}
}

// tryEnter reports whether the action may start, and if so records the new
// cooldown deadline for the key.
func (c *Cooldown) tryEnter(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	until, tracked := c.until[key]
	if tracked && now.Before(until) {
		return false
	}

	c.until[key] = now.Add(c.cooldown)
	if !tracked {
		// Re-arming an existing key keeps its original insertion position.
		c.order = append(c.order, key)
	}
	c.evictLocked()
	return true
}

// evictLocked applies the same bounded bulk-eviction policy as the
// deduplicator's maps, with a smaller capacity.
func (c *Cooldown) evictLocked() {
	if len(c.until) <= c.capacity {
		return
	}
	c.order = evictOldest(c.order, c.capacity, func(key string) bool {
		if _, ok := c.until[key]; !ok {
			return false
		}
		delete(c.until, key)
		return true
	}, func(key string) bool {
		_, ok := c.until[key]
		return ok
	})
}
