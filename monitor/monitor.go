// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the prometheus collectors of the state service.
type Metrics struct {
	Operations      *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistLatency  *prometheus.HistogramVec
	GameActive      prometheus.Gauge
	Dirty           prometheus.Gauge
	Subscribers     prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "State operations by name and result kind",
		}, []string{"operation", "result"}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed snapshot loads and saves",
		}, []string{"op"}),
		PersistLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_latency_seconds",
			Help:      "Snapshot load and save latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"op"}),
		GameActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "game_active",
			Help:      "1 while a game session is active",
		}),
		Dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_dirty",
			Help:      "1 while in-memory state has not reached storage",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected websocket event subscribers",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Operations,
		m.PersistFailures,
		m.PersistLatency,
		m.GameActive,
		m.Dirty,
		m.Subscribers,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Monitor is the nil-safe recording facade used by the rest of the service. A nil
// *Monitor records nothing.
type Monitor struct {
	metrics  *Metrics
	registry *prometheus.Registry
}

// NewMonitor creates metrics on a private registry together with the Go and process
// collectors.
func NewMonitor(namespace string) (*Monitor, error) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(namespace)
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return &Monitor{metrics: metrics, registry: reg}, nil
}

// Handler serves the registry in the prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry. A nil Monitor gathers nothing.
func (m *Monitor) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.Gatherers{}
	}
	return m.registry
}

func (m *Monitor) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.metrics.Operations.WithLabelValues(operation, result).Inc()
}

func (m *Monitor) ObservePersist(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.metrics.PersistLatency.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.metrics.PersistFailures.WithLabelValues(op).Inc()
	}
}

func (m *Monitor) SetGameActive(active bool) {
	if m == nil {
		return
	}
	m.metrics.GameActive.Set(boolToFloat(active))
}

func (m *Monitor) SetDirty(dirty bool) {
	if m == nil {
		return
	}
	m.metrics.Dirty.Set(boolToFloat(dirty))
}

func (m *Monitor) IncSubscribers() {
	if m == nil {
		return
	}
	m.metrics.Subscribers.Inc()
}

func (m *Monitor) DecSubscribers() {
	if m == nil {
		return
	}
	m.metrics.Subscribers.Dec()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
