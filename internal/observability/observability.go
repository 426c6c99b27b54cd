// Package observability provides metrics and monitoring capabilities for shroud-go.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shroudml/shroud-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	ModelStore *metrics.ModelStoreMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	modelStoreMetrics, err := metrics.NewModelStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create model store metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		ModelStore: modelStoreMetrics,
	}, nil
}

// Handler returns an HTTP handler exposing all registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
