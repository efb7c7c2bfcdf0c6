package txexec

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "ordertx"

// Metrics records transaction outcomes. A nil *Metrics records nothing.
type Metrics struct {
	total           *prometheus.CounterVec
	partial         *prometheus.CounterVec
	cleanupFailures *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// NewMetrics creates the transaction collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "total",
			Help:      "Atomic operations by final outcome.",
		}, []string{"operation", "outcome"}),
		partial: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "partial_rollbacks_total",
			Help:      "Committed operations that rolled back to a savepoint.",
		}, []string{"operation"}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "cleanup_failures_total",
			Help:      "Operations whose handle release or auto-commit restore failed.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "duration_seconds",
			Help:      "Wall time of atomic operations including cleanup.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.total, m.partial, m.cleanupFailures, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observe(res *Result) {
	if m == nil || res == nil {
		return
	}
	m.total.WithLabelValues(res.Operation, string(res.Outcome)).Inc()
	if res.Committed() && res.PartialRollback {
		m.partial.WithLabelValues(res.Operation).Inc()
	}
	if res.CleanupErr != nil {
		m.cleanupFailures.WithLabelValues(res.Operation).Inc()
	}
	m.duration.WithLabelValues(res.Operation).Observe(res.Duration.Seconds())
}
