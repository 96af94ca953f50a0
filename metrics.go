package portalgate

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exports the client's request lifecycle, cache and queue
// activity as Prometheus metrics. All methods are nil-receiver safe so the
// collector can be left unset. Safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheSize      *prometheus.GaugeVec

	queuePending *prometheus.GaugeVec
	queueActive  prometheus.Gauge

	renewalsTotal *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_requests_total",
				Help: "Total number of calls completed",
			},
			[]string{"method", "status_code", "target"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portalgate_request_duration_seconds",
				Help:    "Duration of calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "target"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portalgate_requests_in_flight",
				Help: "Number of calls currently in flight",
			},
			[]string{"method", "target"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "target", "attempt"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method", "target"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "target"},
		),
		cacheEvictions: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "portalgate_cache_evictions_total",
				Help: "Total number of cache entries evicted for capacity",
			},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portalgate_cache_size",
				Help: "Current number of entries per cache tier",
			},
			[]string{"tier"},
		),
		queuePending: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "portalgate_queue_pending",
				Help: "Number of units waiting per priority lane",
			},
			[]string{"lane"},
		),
		queueActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "portalgate_queue_active",
				Help: "Number of units currently executing",
			},
		),
		renewalsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_credential_renewals_total",
				Help: "Total number of credential renewal attempts",
			},
			[]string{"outcome"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_errors_total",
				Help: "Total number of normalized errors surfaced",
			},
			[]string{"type", "method", "target"},
		),
	}
}

// RecordRequest records call count and duration.
func (mc *MetricsCollector) RecordRequest(method, target string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, status, target).Inc()
	mc.requestDuration.WithLabelValues(method, status, target).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, target string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, target).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, target string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, target).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, target string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, target, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, target string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, target).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, target string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, target).Inc()
}

// RecordCacheEvictions adds to the eviction counter.
func (mc *MetricsCollector) RecordCacheEvictions(n int) {
	if mc == nil || n <= 0 {
		return
	}
	mc.cacheEvictions.Add(float64(n))
}

// RecordCacheSize sets the per-tier size gauge.
func (mc *MetricsCollector) RecordCacheSize(tier string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(tier).Set(float64(size))
}

// RecordQueueDepth sets the pending gauge for one lane.
func (mc *MetricsCollector) RecordQueueDepth(priority Priority, pending int) {
	if mc == nil {
		return
	}
	mc.queuePending.WithLabelValues(priority.String()).Set(float64(pending))
}

// RecordQueueActive sets the executing-units gauge.
func (mc *MetricsCollector) RecordQueueActive(active int) {
	if mc == nil {
		return
	}
	mc.queueActive.Set(float64(active))
}

// RecordRenewal counts a credential renewal attempt by outcome.
func (mc *MetricsCollector) RecordRenewal(outcome string) {
	if mc == nil {
		return
	}
	mc.renewalsTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter by normalized type.
func (mc *MetricsCollector) RecordError(errorType, method, target string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, target).Inc()
}
