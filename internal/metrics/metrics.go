// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orb"

// Metrics is safe to use through a nil pointer; every method is a no-op then.
type Metrics struct {
	Requests          *prometheus.CounterVec
	Latency           *prometheus.HistogramVec
	AdapterRetries    prometheus.Counter
	Connections       prometheus.Gauge
	ActiveInvocations prometheus.Gauge
	Frames            *prometheus.CounterVec
	StoreUp           *prometheus.GaugeVec
}

// New registers the collectors with reg; a nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Dispatched requests by route and reply outcome.",
		}, []string{"route", "outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch latency by route.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"route"}),
		AdapterRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "destroyed_retries_total",
			Help:      "Enter attempts that found the adapter destroyed and retried.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections",
			Help:      "Open client connections.",
		}),
		ActiveInvocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_invocations",
			Help:      "Requests currently being dispatched.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "frames_total",
			Help:      "Frames received by message type.",
		}, []string{"type"}),
		StoreUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refs",
			Name:      "store_up",
			Help:      "1 when the initial reference store answered its last health check.",
		}, []string{"store"}),
	}
	reg.MustRegister(m.Requests, m.Latency, m.AdapterRetries, m.Connections, m.ActiveInvocations, m.Frames, m.StoreUp)
	return m
}

func (m *Metrics) ObserveRequest(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, outcome).Inc()
	m.Latency.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) AdapterRetry() {
	if m == nil {
		return
	}
	m.AdapterRetries.Inc()
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) InvocationStarted() {
	if m == nil {
		return
	}
	m.ActiveInvocations.Inc()
}

func (m *Metrics) InvocationDone() {
	if m == nil {
		return
	}
	m.ActiveInvocations.Dec()
}

func (m *Metrics) FrameReceived(msgType string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(msgType).Inc()
}

func (m *Metrics) StoreHealth(store string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.StoreUp.WithLabelValues(store).Set(v)
}
