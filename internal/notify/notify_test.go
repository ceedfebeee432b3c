package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
)

func sampleEvent() events.Event {
	return events.Event{
		ID:         "ev-1",
		Type:       domain.EventResponseBreached,
		OrgID:      "org-1",
		TrackingID: "trk-1",
		Domain:     domain.DomainSupport,
		EntityType: "ticket",
		EntityID:   "T-100",
		Timestamp:  time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Payload:    map[string]any{"milestone": "response"},
	}
}

type fakeNotifier struct {
	name  string
	err   error
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(context.Context, events.Event) error {
	f.calls++
	return f.err
}

func TestChain_ContinuesPastFailures(t *testing.T) {
	failing := &fakeNotifier{name: "failing", err: errors.New("down")}
	ok := &fakeNotifier{name: "ok"}
	chain := NewChain(nil, zap.NewNop(), failing, nil, ok)

	err := chain.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(nil).Notify(context.Background(), sampleEvent()))
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var received events.Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-SLA-Event")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))
	assert.Equal(t, "response_breached", header)
	assert.Equal(t, "trk-1", received.TrackingID)
	assert.Equal(t, domain.EventResponseBreached, received.Type)
}

func TestWebhookNotifier_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		err := n.Notify(context.Background(), sampleEvent())
		require.ErrorIs(t, err, ErrWebhookStatus)
	}
	assert.Equal(t, gobreaker.StateOpen, n.State())

	err := n.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

func TestWebhookNotifier_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, RPS: 1})
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, n.Notify(ctx, sampleEvent()))
}

func TestStreamNotifier_XAdd(t *testing.T) {
	db, mock := redismock.NewClientMock()
	n := NewStreamNotifier(db, "sla:escalations", 0)
	ev := sampleEvent()

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "sla:escalations",
		Values: []interface{}{
			"event_id", "ev-1",
			"type", "response_breached",
			"org_id", "org-1",
			"tracking_id", "trk-1",
			"domain", "support",
			"entity_type", "ticket",
			"entity_id", "T-100",
			"occurred_at", "2024-03-04T10:00:00Z",
			"payload", `{"milestone":"response"}`,
		},
	}).SetVal("1-0")

	require.NoError(t, n.Notify(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamNotifier_PropagatesRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	n := NewStreamNotifier(db, "sla:escalations", 0)
	ev := sampleEvent()
	ev.Payload = nil

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "sla:escalations",
		Values: []interface{}{
			"event_id", "ev-1",
			"type", "response_breached",
			"org_id", "org-1",
			"tracking_id", "trk-1",
			"domain", "support",
			"entity_type", "ticket",
			"entity_id", "T-100",
			"occurred_at", "2024-03-04T10:00:00Z",
			"payload", "null",
		},
	}).SetErr(errors.New("READONLY"))

	assert.Error(t, n.Notify(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}
