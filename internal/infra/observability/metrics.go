package observability

import (
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the lending API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	loanEvents      *prometheus.CounterVec
	collectedAmount *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lending_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_store_errors_total",
				Help: "Total errors from the record store, by collection.",
			},
			[]string{"collection"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		loanEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_loan_events_total",
				Help: "Total loan lifecycle events by type (created, collected, undone, deleted, force_paid).",
			},
			[]string{"event"},
		),
		collectedAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_collected_amount_total",
				Help: "Total amount collected in installments, by agent.",
			},
			[]string{"agent"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter for a collection.
func (m *Metrics) IncrStoreError(collection string) {
	m.storeErrors.WithLabelValues(collection).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLoanEvent increments the lifecycle event counter.
func (m *Metrics) IncrLoanEvent(event string) {
	m.loanEvents.WithLabelValues(event).Inc()
}

// AddCollectedAmount accumulates the amount collected for an agent.
func (m *Metrics) AddCollectedAmount(agentID string, amount float64) {
	m.collectedAmount.WithLabelValues(agentID).Add(amount)
}

// GetOpsSnapshot returns a snapshot of operational counters for the
// GET /v1/metrics/ops endpoint.
func (m *Metrics) GetOpsSnapshot() *domain.OpsSnapshot {
	collections := getCounterValue(m.loanEvents, "collected")
	created := getCounterValue(m.loanEvents, "created")
	storeErrors := getCounterValue(m.storeErrors, "loans") +
		getCounterValue(m.storeErrors, "clients") +
		getCounterValue(m.storeErrors, "agents")
	cacheHits := getCounterValue(m.cacheHits, "portfolio")
	cacheMisses := getCounterValue(m.cacheMisses, "portfolio")

	cacheHitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.OpsSnapshot{
		CollectionsTotal:  int64(collections),
		LoansCreatedTotal: int64(created),
		StoreErrorsTotal:  int64(storeErrors),
		CacheHitRate:      cacheHitRate,
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
