package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planning_locks"

const (
	ResultReserved = "reserved"
	ResultConflict = "conflict"
	ResultError    = "error"

	ResultPublished = "published"
	ResultFailed    = "failed"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ReserveAttempts  *prometheus.CounterVec
	Releases         *prometheus.CounterVec
	ActiveLocks      *prometheus.GaugeVec
	WebSocketClients prometheus.Gauge
	KafkaEvents      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReserveAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_attempts_total",
			Help:      "Reserve requests by resource kind and result.",
		}, []string{"resource_type", "result"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Released reservations by resource kind and reason.",
		}, []string{"resource_type", "reason"}),
		ActiveLocks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_locks",
			Help:      "Unexpired reservations in the registry, refreshed on every sweep.",
		}, []string{"resource_type"}),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket subscribers.",
		}),
		KafkaEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_events_total",
			Help:      "Lock events written to Kafka by result.",
		}, []string{"event", "result"}),
	}

	m.registry.MustRegister(
		m.ReserveAttempts,
		m.Releases,
		m.ActiveLocks,
		m.WebSocketClients,
		m.KafkaEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveReserve(resourceType, result string) {
	if m == nil {
		return
	}
	m.ReserveAttempts.WithLabelValues(resourceType, result).Inc()
}

func (m *Metrics) ObserveRelease(resourceType, reason string) {
	if m == nil {
		return
	}
	m.Releases.WithLabelValues(resourceType, reason).Inc()
}

// SetActiveLocks records the registry-wide count for one resource kind.
func (m *Metrics) SetActiveLocks(resourceType string, n int) {
	if m == nil {
		return
	}
	m.ActiveLocks.WithLabelValues(resourceType).Set(float64(n))
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WebSocketClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WebSocketClients.Dec()
}

func (m *Metrics) ObserveKafkaEvent(event string, err error) {
	if m == nil {
		return
	}
	result := ResultPublished
	if err != nil {
		result = ResultFailed
	}
	m.KafkaEvents.WithLabelValues(event, result).Inc()
}
