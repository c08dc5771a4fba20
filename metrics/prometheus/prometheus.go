// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cartflow/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	// Deduplication metrics
	dedupHitsTotal        *prometheus.CounterVec
	dedupExecutionsTotal  *prometheus.CounterVec
	cooldownBlockedTotal  prometheus.Counter

	// Cart metrics
	cartActionsTotal       *prometheus.CounterVec
	cartPersistFailedTotal prometheus.Counter
	cartMergedTotal        prometheus.Counter
	syncPushesTotal        *prometheus.CounterVec
	syncSkippedTotal       prometheus.Counter

	// Inventory metrics
	inventoryPollsTotal  prometheus.Counter
	inventoryPollItems   prometheus.Histogram
	inventoryIssuesTotal prometheus.Counter
	holdExpiringTotal    prometheus.Counter
	holdExpiredTotal     prometheus.Counter

	// Checkout metrics
	checkoutSubmitsTotal   *prometheus.CounterVec
	checkoutCompletedTotal *prometheus.CounterVec
	checkoutFailedTotal    *prometheus.CounterVec
	checkoutDuration       prometheus.Histogram
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "cartflow")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "cartflow",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		dedupHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dedup_hits_total",
			Help:      "Total number of duplicate requests absorbed, by hit kind",
		}, []string{"kind"}),

		dedupExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dedup_executions_total",
			Help:      "Total number of deduplicated operations executed",
		}, []string{"success"}),

		cooldownBlockedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cooldown_blocked_total",
			Help:      "Total number of action triggers absorbed by the cooldown gate",
		}),

		cartActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cart_actions_total",
			Help:      "Total number of cart actions dispatched, by action type",
		}, []string{"action"}),

		cartPersistFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cart_persist_failed_total",
			Help:      "Total number of failed cart persistence writes",
		}),

		cartMergedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cart_merged_total",
			Help:      "Total number of local/server cart merges performed",
		}),

		syncPushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sync_pushes_total",
			Help:      "Total number of cart pushes attempted against the backend",
		}, []string{"success"}),

		syncSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sync_skipped_total",
			Help:      "Total number of cart pushes skipped because the payload was unchanged",
		}),

		inventoryPollsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inventory_polls_total",
			Help:      "Total number of inventory polls performed",
		}),

		inventoryPollItems: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inventory_poll_items",
			Help:      "Number of cart line items classified per poll",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),

		inventoryIssuesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inventory_issues_total",
			Help:      "Total number of blocking inventory issues detected",
		}),

		holdExpiringTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hold_expiring_total",
			Help:      "Total number of holds that entered the expiring-soon window",
		}),

		holdExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hold_expired_total",
			Help:      "Total number of hold expirations notified",
		}),

		checkoutSubmitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "checkout_submits_total",
			Help:      "Total number of checkout submissions started",
		}, []string{"payment_method"}),

		checkoutCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "checkout_completed_total",
			Help:      "Total number of checkout sessions created, by session kind",
		}, []string{"kind"}),

		checkoutFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "checkout_failed_total",
			Help:      "Total number of checkout submissions that failed, by reason",
		}, []string{"reason"}),

		checkoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "checkout_duration_seconds",
			Help:      "Checkout submission duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ============================================================================
// Deduplication Metrics
// ============================================================================

func (m *PrometheusMetrics) DedupHit(kind string) {
	m.dedupHitsTotal.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) DedupExecuted(success bool) {
	m.dedupExecutionsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *PrometheusMetrics) CooldownBlocked() {
	m.cooldownBlockedTotal.Inc()
}

// ============================================================================
// Cart Metrics
// ============================================================================

func (m *PrometheusMetrics) CartAction(action string) {
	m.cartActionsTotal.WithLabelValues(action).Inc()
}

func (m *PrometheusMetrics) CartPersistFailed() {
	m.cartPersistFailedTotal.Inc()
}

func (m *PrometheusMetrics) CartMerged() {
	m.cartMergedTotal.Inc()
}

func (m *PrometheusMetrics) SyncPushed(success bool) {
	m.syncPushesTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *PrometheusMetrics) SyncSkipped() {
	m.syncSkippedTotal.Inc()
}

// ============================================================================
// Inventory Metrics
// ============================================================================

func (m *PrometheusMetrics) InventoryPolled(itemCount int) {
	m.inventoryPollsTotal.Inc()
	m.inventoryPollItems.Observe(float64(itemCount))
}

func (m *PrometheusMetrics) InventoryIssues(count int) {
	m.inventoryIssuesTotal.Add(float64(count))
}

func (m *PrometheusMetrics) HoldExpiring() {
	m.holdExpiringTotal.Inc()
}

func (m *PrometheusMetrics) HoldExpired() {
	m.holdExpiredTotal.Inc()
}

// ============================================================================
// Checkout Metrics
// ============================================================================

func (m *PrometheusMetrics) CheckoutSubmitted(paymentMethod string) {
	m.checkoutSubmitsTotal.WithLabelValues(paymentMethod).Inc()
}

func (m *PrometheusMetrics) CheckoutCompleted(kind string, d time.Duration) {
	m.checkoutCompletedTotal.WithLabelValues(kind).Inc()
	m.checkoutDuration.Observe(d.Seconds())
}

func (m *PrometheusMetrics) CheckoutFailed(reason string) {
	m.checkoutFailedTotal.WithLabelValues(reason).Inc()
}
