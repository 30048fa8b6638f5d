package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "anonwiz"
	metricsSubsystem = "gateway"

	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeAborted   = "aborted"
	outcomeRejected  = "rejected"
)

// Metrics counts gateway calls by request type and outcome.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them when registerer is
// not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "calls_total",
			Help:      "Remote anonymizer calls by request type and outcome.",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "call_duration_seconds",
			Help:      "Wall time of remote anonymizer calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"type"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "calls_in_flight",
			Help:      "Remote anonymizer calls currently running.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(metrics.calls, metrics.duration, metrics.inFlight)
	}
	return metrics
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finished(requestType RequestType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.calls.WithLabelValues(string(requestType), outcome).Inc()
	m.duration.WithLabelValues(string(requestType)).Observe(elapsed.Seconds())
}

func (m *Metrics) rejected(requestType RequestType) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(requestType), outcomeRejected).Inc()
}

// Calls exposes the call counter for textfile export and tests.
func (m *Metrics) Calls() *prometheus.CounterVec { return m.calls }
