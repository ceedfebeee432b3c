package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep outcomes recorded per tracking record.
const (
	SweepOutcomeEvaluated = "evaluated"
	SweepOutcomeBreached  = "breached"
	SweepOutcomeWarned    = "warned"
	SweepOutcomeEscalated = "escalated"
	SweepOutcomeSkipped   = "skipped"
)

// Metrics exposes the service's prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sweepRecords  *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	notifications *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_http_requests_total",
			Help: "HTTP requests served, by route, method and status.",
		}, []string{"path", "method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_http_errors_total",
			Help: "HTTP errors rendered, by route, method and error code.",
		}, []string{"path", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_transitions_total",
			Help: "SLA events appended, by event type.",
		}, []string{"type"}),
		sweepRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_sweep_records_total",
			Help: "Tracking records processed by the sweep, by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_sweep_duration_seconds",
			Help:    "Wall time of a full sweep run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_notifications_total",
			Help: "Escalation notifications attempted, by notifier and result.",
		}, []string{"notifier", "result"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.errors, m.transitions, m.sweepRecords, m.sweepDuration, m.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError counts a rendered error envelope.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts an appended SLA event.
func (m *Metrics) RecordTransition(eventType string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(eventType).Inc()
}

// RecordSweep adds per-outcome record counts and the run's duration.
func (m *Metrics) RecordSweep(outcomes map[string]int, duration time.Duration) {
	if m == nil {
		return
	}
	for outcome, n := range outcomes {
		if n > 0 {
			m.sweepRecords.WithLabelValues(outcome).Add(float64(n))
		}
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordNotification counts a notifier attempt.
func (m *Metrics) RecordNotification(notifier string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(notifier, result).Inc()
}
