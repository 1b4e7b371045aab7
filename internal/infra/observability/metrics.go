package observability

import (
	"strconv"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	exportsTotal    prometheus.Counter
	exportedRows    prometheus.Counter
	authFailures    *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
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
				Name:    "findash_request_duration_seconds",
				Help:    "Duration of HTTP requests by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findash_requests_total",
				Help: "Total HTTP requests by outcome class.",
			},
			[]string{"status"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findash_store_errors_total",
				Help: "Total failed store operations.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findash_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findash_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		exportsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "findash_exports_total",
				Help: "Total CSV exports served.",
			},
		),
		exportedRows: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "findash_exported_rows_total",
				Help: "Total rows written to CSV exports.",
			},
		),
		authFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findash_auth_failures_total",
				Help: "Total rejected authentication attempts.",
			},
			[]string{"reason"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "findash_circuit_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
			},
			[]string{"name"},
		),
	}
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	m.requestsTotal.WithLabelValues(statusClass(status)).Inc()
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordExport records a served export and its row count.
func (m *Metrics) RecordExport(rows int) {
	m.exportsTotal.Inc()
	m.exportedRows.Add(float64(rows))
}

// IncrAuthFailure increments the auth failure counter.
func (m *Metrics) IncrAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// SetCircuitState publishes a breaker state (0 closed, 1 half-open, 2 open).
func (m *Metrics) SetCircuitState(name string, state int) {
	m.circuitState.WithLabelValues(name).Set(float64(state))
}

// Snapshot summarises the counters for GET /api/admin/stats.
func (m *Metrics) Snapshot(circuit string) *domain.ServiceMetrics {
	success := sumVec(m.requestsTotal, "2xx") + sumVec(m.requestsTotal, "3xx")
	clientErr := sumVec(m.requestsTotal, "4xx")
	serverErr := sumVec(m.requestsTotal, "5xx")
	total := success + clientErr + serverErr

	hits := collectSum(m.cacheHits)
	misses := collectSum(m.cacheMisses)

	errorRate := float64(0)
	if total > 0 {
		errorRate = serverErr / total
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.ServiceMetrics{
		TotalRequests: int64(total),
		ErrorRate:     errorRate,
		StoreErrors:   int64(collectSum(m.storeErrors)),
		CacheHitRate:  hitRate,
		ExportsServed: int64(counterValue(m.exportsTotal)),
		RowsExported:  int64(counterValue(m.exportedRows)),
		AuthFailures:  int64(collectSum(m.authFailures)),
		CircuitState:  circuit,
		Period:        "all_time",
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// sumVec reads the current value of one labelled child of a CounterVec.
func sumVec(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// collectSum adds up every child of a CounterVec.
func collectSum(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
