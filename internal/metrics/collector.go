package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates Prometheus metrics for the scanner daemon, the only
// long-lived process with a scrape surface. Hook invocations are short-lived
// and leave no exporter behind; their outcomes are observable through logs
// and the store itself.
type Collector struct {
	// Scanner metrics
	scanTicksTotal      *prometheus.CounterVec
	extractionsTotal    *prometheus.CounterVec
	extractionDuration  prometheus.Histogram
	extractionsInFlight prometheus.Gauge
	extractionQueueLen  prometheus.Gauge

	// Store metrics
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry creates a collector on an explicit registerer.
// Tests use a fresh registry per collector to avoid duplicate registration.
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.scanTicksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_ticks_total",
			Help:      "Total number of staleness scan ticks",
		},
		[]string{"result"},
	)

	c.extractionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total number of finished memory extractions",
		},
		[]string{"result"},
	)

	c.extractionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Memory extraction duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.extractionsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_in_flight",
			Help:      "Number of currently running extractions",
		},
	)

	c.extractionQueueLen = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extraction_queue_length",
			Help:      "Number of stale sessions waiting for a concurrency slot",
		},
	)

	c.storeOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordScanTick records one scanner tick: "ok" or "error".
func (c *Collector) RecordScanTick(result string) {
	c.scanTicksTotal.WithLabelValues(result).Inc()
}

// RecordExtraction records a finished extraction: "success", "failure" or
// "timeout".
func (c *Collector) RecordExtraction(result string, duration time.Duration) {
	c.extractionsTotal.WithLabelValues(result).Inc()
	c.extractionDuration.Observe(duration.Seconds())
}

// SetExtractionsInFlight updates the in-flight gauge.
func (c *Collector) SetExtractionsInFlight(n int) {
	c.extractionsInFlight.Set(float64(n))
}

// SetExtractionQueueLength updates the overflow queue gauge.
func (c *Collector) SetExtractionQueueLength(n int) {
	c.extractionQueueLen.Set(float64(n))
}

// RecordStoreOp records one store round-trip.
func (c *Collector) RecordStoreOp(operation string, duration time.Duration) {
	c.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
