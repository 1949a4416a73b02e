package loom

import "github.com/xraph/loom/internal/metrics"

// Metrics records counters, gauges, histograms and timers on a private
// Prometheus registry and serves the exposition format.
type Metrics = metrics.Metrics

// MetricsConfig tunes the Prometheus-backed implementation.
type MetricsConfig = metrics.Config

type (
	Counter   = metrics.Counter
	Gauge     = metrics.Gauge
	Histogram = metrics.Histogram
	Timer     = metrics.Timer
	Label     = metrics.Label
)

// L builds a metric label.
var L = metrics.L

// NewMetrics creates a Prometheus-backed metrics registry.
func NewMetrics(config MetricsConfig) Metrics {
	return metrics.New(config)
}

// NewNoopMetrics creates a metrics backend that records nothing; tests and
// WithMetrics use it to silence collection.
func NewNoopMetrics() Metrics {
	return metrics.NewNoop()
}
