package realtime

import "github.com/prometheus/client_golang/prometheus"

// Event results reported by Metrics.
const (
	resultOK          = "ok"
	resultDenied      = "denied"
	resultFailed      = "error"
	resultMalformed   = "malformed"
	resultUnknown     = "unknown"
	resultRateLimited = "rate_limited"
)

// Metrics are gateway collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	connects    *prometheus.CounterVec
	events      *prometheus.CounterVec
	dropped     prometheus.Counter
}

// NewMetrics registers gateway collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attendance",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open authenticated websocket connections.",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Subsystem: "ws",
			Name:      "connects_total",
			Help:      "Websocket connection attempts, by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Subsystem: "ws",
			Name:      "events_total",
			Help:      "Inbound events, by event and result.",
		}, []string{"event", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Subsystem: "ws",
			Name:      "broadcast_dropped_total",
			Help:      "Broadcast copies dropped because a member queue was full.",
		}),
	}
	for _, c := range []prometheus.Collector{m.connections, m.connects, m.events, m.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) connect(result string) {
	if m != nil {
		m.connects.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) opened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) event(event, result string) {
	if m != nil {
		m.events.WithLabelValues(event, result).Inc()
	}
}

func (m *Metrics) broadcastDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
