package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the orchestration core's Prometheus metrics.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	imagesGenerated *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	retriesTotal   *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registering against reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of backend requests",
		},
		[]string{"backend", "operation", "status"},
	)

	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"backend", "operation"},
	)

	c.imagesGenerated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_generated_total",
			Help:      "Total number of images generated",
		},
		[]string{"backend"},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits",
		},
		[]string{"operation"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses",
		},
		[]string{"operation"},
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of backend retry attempts",
		},
		[]string{"backend", "operation"},
	)

	c.fallbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of cross-backend fallbacks",
		},
		[]string{"from", "to"},
	)

	return c
}

// RecordRequest records one backend request outcome.
func (c *Collector) RecordRequest(backend, operation, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(backend, operation, status).Inc()
	c.requestDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordImages records images produced by a backend.
func (c *Collector) RecordImages(backend string, count int) {
	c.imagesGenerated.WithLabelValues(backend).Add(float64(count))
}

// RecordCacheHit records one cache hit for the given operation.
func (c *Collector) RecordCacheHit(operation string) {
	c.cacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records one cache miss for the given operation.
func (c *Collector) RecordCacheMiss(operation string) {
	c.cacheMisses.WithLabelValues(operation).Inc()
}

// RecordRetry records one retry attempt.
func (c *Collector) RecordRetry(backend, operation string) {
	c.retriesTotal.WithLabelValues(backend, operation).Inc()
}

// RecordFallback records one cross-backend fallback.
func (c *Collector) RecordFallback(from, to string) {
	c.fallbacksTotal.WithLabelValues(from, to).Inc()
}
