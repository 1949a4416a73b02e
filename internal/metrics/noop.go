package metrics

import (
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// NewNoop returns a Metrics implementation that records nothing. It keeps
// instrumented code paths unconditional when metrics are disabled.
func NewNoop() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) Counter(string, ...Label) Counter                { return noopCounter{} }
func (noopMetrics) Gauge(string, ...Label) Gauge                    { return noopGauge{} }
func (noopMetrics) Histogram(string, []float64, ...Label) Histogram { return noopHistogram{} }
func (noopMetrics) Timer(string, ...Label) Timer                    { return noopTimer{start: time.Now()} }

func (noopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

func (noopMetrics) Gather() ([]*dto.MetricFamily, error) { return nil, nil }

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Inc()        {}
func (noopGauge) Dec()        {}
func (noopGauge) Add(float64) {}
func (noopGauge) Sub(float64) {}

type noopHistogram struct{}

func (noopHistogram) Observe(float64) {}
func (noopHistogram) Timer() Timer    { return noopTimer{start: time.Now()} }

type noopTimer struct {
	start time.Time
}

func (t noopTimer) ObserveDuration() time.Duration { return time.Since(t.start) }
