package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Label is a metric label pair.
type Label struct {
	Name  string
	Value string
}

// L builds a label.
func L(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	Add(value float64)
}

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(value float64)
	Sub(value float64)
}

// Histogram samples observations into buckets.
type Histogram interface {
	Observe(value float64)
	Timer() Timer
}

// Timer records a duration when stopped.
type Timer interface {
	ObserveDuration() time.Duration
}

// Metrics is the instrumentation surface core packages record through.
type Metrics interface {
	Counter(name string, labels ...Label) Counter
	Gauge(name string, labels ...Label) Gauge
	Histogram(name string, buckets []float64, labels ...Label) Histogram
	Timer(name string, labels ...Label) Timer

	// Handler serves the Prometheus exposition format.
	Handler() http.Handler
	// Gather snapshots every registered metric family.
	Gather() ([]*dto.MetricFamily, error)
}

// Config tunes the Prometheus-backed implementation.
type Config struct {
	Enabled       bool   `json:"enabled"        yaml:"enabled"`
	Namespace     string `json:"namespace"      yaml:"namespace"`
	Subsystem     string `json:"subsystem"      yaml:"subsystem"`
	EnableGo      bool   `json:"enable_go"      yaml:"enable_go"`
	EnableProcess bool   `json:"enable_process" yaml:"enable_process"`
}

// promMetrics implements Metrics on a private Prometheus registry, so two
// instances in one process never fight over metric names.
type promMetrics struct {
	config   Config
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New creates a Metrics implementation. A disabled config yields the noop
// implementation.
func New(config Config) Metrics {
	if !config.Enabled {
		return NewNoop()
	}

	m := &promMetrics{
		config:     config,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	if config.EnableGo {
		m.registry.MustRegister(collectors.NewGoCollector())
	}
	if config.EnableProcess {
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

func (m *promMetrics) Counter(name string, labels ...Label) Counter {
	names, values := splitLabels(labels)

	m.mu.Lock()
	key := vecKey(name, names)
	vec, ok := m.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      name + " counter",
		}, names)
		m.registry.MustRegister(vec)
		m.counters[key] = vec
	}
	m.mu.Unlock()

	return vec.WithLabelValues(values...)
}

func (m *promMetrics) Gauge(name string, labels ...Label) Gauge {
	names, values := splitLabels(labels)

	m.mu.Lock()
	key := vecKey(name, names)
	vec, ok := m.gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      name + " gauge",
		}, names)
		m.registry.MustRegister(vec)
		m.gauges[key] = vec
	}
	m.mu.Unlock()

	return vec.WithLabelValues(values...)
}

func (m *promMetrics) Histogram(name string, buckets []float64, labels ...Label) Histogram {
	names, values := splitLabels(labels)
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m.mu.Lock()
	key := vecKey(name, names)
	vec, ok := m.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      name + " histogram",
			Buckets:   buckets,
		}, names)
		m.registry.MustRegister(vec)
		m.histograms[key] = vec
	}
	m.mu.Unlock()

	return promHistogram{observer: vec.WithLabelValues(values...)}
}

func (m *promMetrics) Timer(name string, labels ...Label) Timer {
	return m.Histogram(name, nil, labels...).Timer()
}

func (m *promMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *promMetrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

type promHistogram struct {
	observer prometheus.Observer
}

func (h promHistogram) Observe(value float64) { h.observer.Observe(value) }

func (h promHistogram) Timer() Timer {
	return promTimer{start: time.Now(), observer: h.observer}
}

type promTimer struct {
	start    time.Time
	observer prometheus.Observer
}

func (t promTimer) ObserveDuration() time.Duration {
	elapsed := time.Since(t.start)
	t.observer.Observe(elapsed.Seconds())
	return elapsed
}

// splitLabels sorts labels by name so one metric requested with labels in
// a different order still hits the same vector.
func splitLabels(labels []Label) ([]string, []string) {
	sorted := make([]Label, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	names := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, label := range sorted {
		names[i] = label.Name
		values[i] = label.Value
	}
	return names, values
}

func vecKey(name string, labelNames []string) string {
	if len(labelNames) == 0 {
		return name
	}
	return name + "{" + strings.Join(labelNames, ",") + "}"
}
