// Package promadapters provides a Prometheus adapter for the eventlog metrics interface,
// for users who expose metrics through a Prometheus registry instead of OpenTelemetry.
package promadapters

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entitykit/entity-lifecycle-go/eventlog"
)

// MetricsCollector implements eventlog.MetricsCollector backed by a Prometheus registerer.
// Collectors are created on demand per metric name. Prometheus requires a fixed label
// set per metric, so the label keys seen on the first observation of a metric define
// its label set; later observations must use the same keys.
type MetricsCollector struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewMetricsCollector creates a new Prometheus metrics collector registering
// its collectors with the given registerer.
func NewMetricsCollector(registerer prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		registerer: registerer,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// RecordDuration records a duration observation in seconds on a histogram.
func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	histogram := m.getOrCreateHistogram(metric, labelKeys(labels))
	if histogram == nil {
		return
	}

	histogram.With(labels).Observe(duration.Seconds())
}

// IncrementCounter increments a counter.
func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	counter := m.getOrCreateCounter(metric, labelKeys(labels))
	if counter == nil {
		return
	}

	counter.With(labels).Inc()
}

// RecordValue sets a gauge to the given value.
func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	gauge := m.getOrCreateGauge(metric, labelKeys(labels))
	if gauge == nil {
		return
	}

	gauge.With(labels).Set(value)
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

func (m *MetricsCollector) getOrCreateHistogram(name string, keys []string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Event log operation duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, keys)

	if err := m.registerer.Register(histogram); err != nil {
		return nil
	}

	m.histograms[name] = histogram
	return histogram
}

func (m *MetricsCollector) getOrCreateCounter(name string, keys []string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[name]; exists {
		return counter
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Event log operation counter.",
	}, keys)

	if err := m.registerer.Register(counter); err != nil {
		return nil
	}

	m.counters[name] = counter
	return counter
}

func (m *MetricsCollector) getOrCreateGauge(name string, keys []string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[name]; exists {
		return gauge
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "Event log current value.",
	}, keys)

	if err := m.registerer.Register(gauge); err != nil {
		return nil
	}

	m.gauges[name] = gauge
	return gauge
}

// Ensure MetricsCollector implements eventlog.MetricsCollector.
var _ eventlog.MetricsCollector = (*MetricsCollector)(nil)
