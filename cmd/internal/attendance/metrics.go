package attendance

import "github.com/prometheus/client_golang/prometheus"

// Metrics are lifecycle counters. A nil *Metrics records nothing.
type Metrics struct {
	started   prometheus.Counter
	marks     *prometheus.CounterVec
	finalized *prometheus.CounterVec
	records   prometheus.Counter
}

// NewMetrics registers lifecycle collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "sessions_started_total",
			Help:      "Attendance sessions started.",
		}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "marks_total",
			Help:      "Attendance marks applied, by status.",
		}, []string{"status"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "sessions_finalized_total",
			Help:      "Finalize attempts, by result.",
		}, []string{"result"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "records_committed_total",
			Help:      "Attendance records written to the sink.",
		}),
	}
	for _, c := range []prometheus.Collector{m.started, m.marks, m.finalized, m.records} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.started.Inc()
	}
}

func (m *Metrics) markApplied(st Status) {
	if m != nil {
		m.marks.WithLabelValues(string(st)).Inc()
	}
}

func (m *Metrics) finalizeResult(result string, committed int) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(result).Inc()
	if committed > 0 {
		m.records.Add(float64(committed))
	}
}
