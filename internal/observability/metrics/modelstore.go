// Package metrics provides custom Prometheus metrics for shroud-go.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ModelStoreMetrics contains all Prometheus metrics related to model store operations.
type ModelStoreMetrics struct {
	// Operation counters
	AddTotal       *prometheus.CounterVec
	AddErrors      *prometheus.CounterVec
	DedupHits      prometheus.Counter
	Evictions      prometheus.Counter
	Collisions     prometheus.Counter
	Deletes        prometheus.Counter
	UnsealSkipped  prometheus.Counter

	// Current state gauges
	StoredModels prometheus.Gauge

	// Performance metrics
	SealDuration *prometheus.HistogramVec
	LoadDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewModelStoreMetrics creates a new instance of ModelStoreMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewModelStoreMetrics(registry *prometheus.Registry) (*ModelStoreMetrics, error) {
	m := &ModelStoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize model store metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register model store metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for ModelStoreMetrics.
func (m *ModelStoreMetrics) initMetrics() error {
	m.AddTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelstore_add_total",
			Help: "Total number of model insertions partitioned by provenance and status.",
		},
		[]string{"provenance", "status"},
	)
	m.AddErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelstore_add_errors_total",
			Help: "Total number of failed model insertions partitioned by error category.",
		},
		[]string{"category"},
	)
	m.DedupHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelstore_dedup_hits_total",
			Help: "Total number of insertions that reused an existing parsed artifact.",
		},
	)
	m.Evictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelstore_evictions_total",
			Help: "Total number of models evicted to stay within the capacity limit.",
		},
	)
	m.Collisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelstore_id_collisions_total",
			Help: "Total number of insertions rejected because the id already existed.",
		},
	)
	m.Deletes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelstore_deletes_total",
			Help: "Total number of explicit model deletions.",
		},
	)
	m.UnsealSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelstore_unseal_skipped_total",
			Help: "Total number of sealed entries skipped during startup restoration.",
		},
	)
	m.StoredModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelstore_stored_models",
			Help: "Current number of models live in the id index.",
		},
	)
	m.SealDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelstore_seal_duration_seconds",
			Help:    "Time taken to seal or unseal a model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
		[]string{"operation"},
	)
	m.LoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelstore_load_duration_seconds",
			Help:    "Time taken to parse model bytes into an artifact",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	return nil
}

// RecordAdd records the outcome of an insertion.
func (m *ModelStoreMetrics) RecordAdd(provenance string, err error) {
	if err != nil {
		m.AddTotal.WithLabelValues(provenance, "error").Inc()
	} else {
		m.AddTotal.WithLabelValues(provenance, "success").Inc()
	}
}

// RecordAddError records the category of a failed insertion.
func (m *ModelStoreMetrics) RecordAddError(category string) {
	m.AddErrors.WithLabelValues(category).Inc()
}

// RecordDedupHit records an insertion that reused a shared artifact.
func (m *ModelStoreMetrics) RecordDedupHit() {
	m.DedupHits.Inc()
}

// RecordEviction records a capacity eviction.
func (m *ModelStoreMetrics) RecordEviction() {
	m.Evictions.Inc()
}

// RecordCollision records an id collision rejection.
func (m *ModelStoreMetrics) RecordCollision() {
	m.Collisions.Inc()
}

// RecordDelete records an explicit deletion.
func (m *ModelStoreMetrics) RecordDelete() {
	m.Deletes.Inc()
}

// RecordUnsealSkipped records a sealed entry skipped during restoration.
func (m *ModelStoreMetrics) RecordUnsealSkipped() {
	m.UnsealSkipped.Inc()
}

// SetStoredModels sets the current id index size.
func (m *ModelStoreMetrics) SetStoredModels(count int) {
	m.StoredModels.Set(float64(count))
}

// RecordSeal records the duration of a seal or unseal operation.
func (m *ModelStoreMetrics) RecordSeal(operation string, durationSeconds float64) {
	m.SealDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordLoad records the duration of a model parse.
func (m *ModelStoreMetrics) RecordLoad(durationSeconds float64) {
	m.LoadDuration.Observe(durationSeconds)
}

// Describe implements the prometheus.Collector interface.
func (m *ModelStoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.AddTotal.Describe(ch)
	m.AddErrors.Describe(ch)
	m.DedupHits.Describe(ch)
	m.Evictions.Describe(ch)
	m.Collisions.Describe(ch)
	m.Deletes.Describe(ch)
	m.UnsealSkipped.Describe(ch)
	m.StoredModels.Describe(ch)
	m.SealDuration.Describe(ch)
	m.LoadDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ModelStoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.AddTotal.Collect(ch)
	m.AddErrors.Collect(ch)
	m.DedupHits.Collect(ch)
	m.Evictions.Collect(ch)
	m.Collisions.Collect(ch)
	m.Deletes.Collect(ch)
	m.UnsealSkipped.Collect(ch)
	m.StoredModels.Collect(ch)
	m.SealDuration.Collect(ch)
	m.LoadDuration.Collect(ch)
}
