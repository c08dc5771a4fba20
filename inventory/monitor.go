package inventory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cartflow/cart"
	"cartflow/event"
	"cartflow/metrics"
	"cartflow/tracing"
)

// Defaults for the monitor's two timers.
const (
	DefaultPollInterval     = 30 * time.Second
	DefaultHoldTickInterval = 10 * time.Second
	DefaultExpiryLead       = 120 * time.Second
	DefaultLowStockLevel    = 5
)

// ProductReader is the subset of the commerce backend the monitor needs.
type ProductReader interface {
	// GetProductsByIDs returns the latest records for the given product IDs.
	// Missing products are simply absent from the result.
	GetProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Report is the result of one inventory poll over the current cart.
type Report struct {
	Snapshots []Snapshot
	HasIssues bool
	PolledAt  time.Time
}

// HoldState describes the current hold-expiry countdowns.
type HoldState struct {
	// ExpiringSoon holds the items whose holds expire within the lead window.
	ExpiringSoon []cart.ItemKey
	// Expired holds the items whose holds have already expired.
	Expired []cart.ItemKey
}

// Monitor polls stock for the items in the cart and tracks hold expiry on a
// separate, faster timer. Start and Stop own the timers; PollNow and
// TickHolds expose single steps for deterministic use.
type Monitor struct {
	reader ProductReader
	source func() cart.State

	pollInterval time.Duration
	holdInterval time.Duration
	expiryLead   time.Duration
	lowLevel     int
	now          func() time.Time

	logger  *zap.Logger
	bus     event.Bus
	metrics metrics.Metrics
	tracer  tracing.Tracer

	onExpired  func(cart.ItemKey)
	onExpiring func(cart.ItemKey)

	mu           sync.Mutex
	report       *Report
	expiringSoon map[cart.ItemKey]struct{}
	expired      map[cart.ItemKey]struct{}
	fired        map[cart.ItemKey]struct{}

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	runMu   sync.Mutex
}

// MonitorOption is a functional option for configuring a Monitor.
type MonitorOption func(*Monitor)

// WithPollInterval sets the inventory poll interval.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithHoldTickInterval sets the hold-expiry tick interval.
func WithHoldTickInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.holdInterval = d
		}
	}
}

// WithExpiryLead sets the lead window for expiring-soon classification.
func WithExpiryLead(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.expiryLead = d
		}
	}
}

// WithLowStockLevel sets the tracked-quantity threshold at or below which an
// item counts as low stock.
func WithLowStockLevel(level int) MonitorOption {
	return func(m *Monitor) {
		if level > 0 {
			m.lowLevel = level
		}
	}
}

// WithMonitorNow sets the time source.
func WithMonitorNow(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMonitorBus sets the event bus.
func WithMonitorBus(bus event.Bus) MonitorOption {
	return func(m *Monitor) {
		m.bus = bus
	}
}

// WithMonitorMetrics sets the metrics collector.
func WithMonitorMetrics(mm metrics.Metrics) MonitorOption {
	return func(m *Monitor) {
		m.metrics = mm
	}
}

// WithMonitorTracer sets the tracer used for poll spans.
func WithMonitorTracer(t tracing.Tracer) MonitorOption {
	return func(m *Monitor) {
		m.tracer = t
	}
}

// WithOnHoldExpired sets the callback fired exactly once per hold expiry.
func WithOnHoldExpired(fn func(cart.ItemKey)) MonitorOption {
	return func(m *Monitor) {
		m.onExpired = fn
	}
}

// WithOnHoldExpiring sets the callback fired when a hold enters the
// expiring-soon window.
func WithOnHoldExpiring(fn func(cart.ItemKey)) MonitorOption {
	return func(m *Monitor) {
		m.onExpiring = fn
	}
}

// NewMonitor creates a monitor over the given product reader and cart source.
func NewMonitor(reader ProductReader, source func() cart.State, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		reader:       reader,
		source:       source,
		pollInterval: DefaultPollInterval,
		holdInterval: DefaultHoldTickInterval,
		expiryLead:   DefaultExpiryLead,
		lowLevel:     DefaultLowStockLevel,
		now:          time.Now,
		logger:       zap.NewNop(),
		bus:          event.NewMemoryBus(),
		metrics:      &metrics.NoopMetrics{},
		tracer:       &tracing.NoopTracer{},
		expiringSoon: make(map[cart.ItemKey]struct{}),
		expired:      make(map[cart.ItemKey]struct{}),
		fired:        make(map[cart.ItemKey]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the poll loop and the hold-expiry loop. Both run an
// immediate first step, then tick on their intervals until Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	m.wg.Add(2)
	go m.pollLoop(ctx)
	go m.holdLoop(ctx)
}

// Stop stops both loops and waits for them to exit. In-flight fetches run to
// completion; their results are discarded.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.runMu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	if _, err := m.PollNow(ctx); err != nil {
		m.logger.Warn("initial inventory poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.PollNow(ctx); err != nil {
				m.logger.Warn("inventory poll failed", zap.Error(err))
			}
		}
	}
}

func (m *Monitor) holdLoop(ctx context.Context) {
	defer m.wg.Done()

	m.TickHolds(m.now())

	ticker := time.NewTicker(m.holdInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.TickHolds(m.now())
		}
	}
}

// PollNow performs one inventory poll: it fetches the latest records for the
// distinct products in the cart (batched, one request) and classifies every
// line item. An empty cart skips the fetch entirely. On fetch failure the
// previous report is kept.
func (m *Monitor) PollNow(ctx context.Context) (*Report, error) {
	state := m.source()

	if state.IsEmpty() {
		report := &Report{PolledAt: m.now()}
		m.mu.Lock()
		m.report = report
		m.mu.Unlock()
		return report, nil
	}

	ids := state.ProductIDs()
	ctx, span := m.tracer.StartInventoryPoll(ctx, len(ids))
	defer span.End()

	products, err := m.reader.GetProductsByIDs(ctx, ids)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	byID := make(map[string]*Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	report := &Report{PolledAt: m.now()}
	issues := 0
	for _, li := range state.Items {
		snap := m.classify(li, byID[li.ProductID])
		if snap.Blocking() {
			issues++
			report.HasIssues = true
			m.bus.Publish(ctx, event.New(event.TypeInventoryIssue).
				WithItem(snap.ProductID, snap.VariantID).
				WithData("message", snap.Message))
		}
		report.Snapshots = append(report.Snapshots, snap)
	}

	m.mu.Lock()
	m.report = report
	m.mu.Unlock()

	m.metrics.InventoryPolled(len(report.Snapshots))
	if issues > 0 {
		m.metrics.InventoryIssues(issues)
	}
	return report, nil
}

// Latest returns the most recent poll report, or nil before the first poll.
func (m *Monitor) Latest() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// classify derives the stock snapshot for one line item. A missing product
// record always classifies out of stock, overriding all other signals.
func (m *Monitor) classify(li cart.LineItem, p *Product) Snapshot {
	snap := Snapshot{
		ProductID:    li.ProductID,
		VariantID:    li.VariantID,
		RequestedQty: li.Qty,
		Status:       StatusUnknown,
	}

	if p == nil {
		snap.Status = StatusOutOfStock
		snap.OutOfStock = true
		snap.Message = "This item is no longer available"
		return snap
	}

	status := p.Status
	tracked := p.TrackQuantity
	qty := p.Quantity
	if li.VariantID != "" {
		v := p.Variant(li.VariantID)
		if v == nil {
			snap.Status = StatusOutOfStock
			snap.OutOfStock = true
			snap.Message = "This item is no longer available"
			return snap
		}
		status = v.Status
		tracked = v.TrackQuantity
		qty = v.Quantity
	}

	snap.Status = status
	if tracked {
		available := qty
		snap.Available = &available
	}

	switch {
	case status == StatusOutOfStock || (tracked && qty <= 0):
		snap.OutOfStock = true
		snap.Message = "Out of stock"
	case tracked && qty < li.Qty:
		snap.ExceedsAvailable = true
		snap.Message = "Not enough stock for the requested quantity"
	}

	if !snap.OutOfStock && (status == StatusLow || (tracked && qty > 0 && qty <= m.lowLevel)) {
		snap.LowStock = true
		if snap.Message == "" {
			snap.Message = "Only a few left"
		}
	}

	return snap
}
