package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.RecordRequest("/v1/trackings/:id", "GET", 200, time.Millisecond)
	m.RecordRequest("/v1/trackings/:id", "GET", 200, time.Millisecond)
	m.RecordError("/v1/trackings/:id/pause", "POST", "INVALID_TRANSITION")
	m.RecordTransition("response_breached")
	m.RecordSweep(map[string]int{SweepOutcomeEvaluated: 3, SweepOutcomeBreached: 1, SweepOutcomeSkipped: 0}, 20*time.Millisecond)
	m.RecordNotification("webhook", errors.New("boom"))
	m.RecordNotification("webhook", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/trackings/:id", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/v1/trackings/:id/pause", "POST", "INVALID_TRANSITION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("response_breached")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepRecords.WithLabelValues(SweepOutcomeEvaluated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("webhook", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("webhook", "ok")))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, 0)
		m.RecordError("/", "GET", "X")
		m.RecordTransition("started")
		m.RecordSweep(map[string]int{"evaluated": 1}, time.Second)
		m.RecordNotification("log", nil)
	})
}
