package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/repository/memory"
)

const testOrg = "org-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(eventType domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	store      *memory.Store
	clock      *fakeClock
	cache      *TenantCache
	tracker    *Tracker
	dispatcher events.Dispatcher
	published  *recorder
	scheduleID string
}

// monday is 2024-03-04, a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock(monday(10, 0))
	cache := NewTenantCache(store, nil, CacheOptions{TTL: time.Minute, Clock: clock.Now}, zap.NewNop())
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	published := &recorder{}
	dispatcher.Subscribe(published.handle)

	tracker := NewTracker(TrackerDependencies{
		Store:      store,
		Resolver:   NewResolver(cache, nil, zap.NewNop()),
		Calendars:  cache,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Clock:      clock.Now,
	})

	h := &harness{store: store, clock: clock, cache: cache, tracker: tracker, dispatcher: dispatcher, published: published}
	h.scheduleID = h.seedSchedule(t)
	return h
}

func (h *harness) seedSchedule(t *testing.T) string {
	t.Helper()
	window := domain.DayWindow{Start: 9 * 60, End: 17 * 60}
	schedule := &domain.BusinessHoursSchedule{
		OrgID:    testOrg,
		Name:     "Office",
		Timezone: "UTC",
		Weekly: domain.WeeklyHours{
			time.Monday: window, time.Tuesday: window, time.Wednesday: window,
			time.Thursday: window, time.Friday: window,
		},
	}
	require.NoError(t, h.store.Repositories().Schedules.Create(context.Background(), schedule))
	return schedule.ID
}

type configOption func(*domain.SlaConfiguration)

func withResponse(value int, unit domain.TargetUnit) configOption {
	return func(c *domain.SlaConfiguration) { c.ResponseTarget = &domain.Target{Value: value, Unit: unit} }
}

func withResolution(value int, unit domain.TargetUnit) configOption {
	return func(c *domain.SlaConfiguration) { c.ResolutionTarget = &domain.Target{Value: value, Unit: unit} }
}

func withSchedule(id string) configOption {
	return func(c *domain.SlaConfiguration) { c.BusinessHoursScheduleID = &id }
}

func withEscalation(user string) configOption {
	return func(c *domain.SlaConfiguration) {
		c.EscalateOnBreach = true
		c.EscalateToUser = &user
	}
}

func (h *harness) seedConfig(t *testing.T, opts ...configOption) *domain.SlaConfiguration {
	t.Helper()
	cfg := &domain.SlaConfiguration{
		OrgID:                  testOrg,
		Domain:                 domain.DomainSupport,
		Name:                   "Standard",
		AtRiskThresholdPercent: 25,
		IsDefault:              true,
		IsActive:               true,
		Conditions:             map[string]string{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	require.NoError(t, h.store.Repositories().Configurations.Create(context.Background(), cfg))
	require.NoError(t, h.cache.Invalidate(context.Background(), testOrg))
	return cfg
}

func (h *harness) start(t *testing.T, entityID string) *domain.SlaTracking {
	t.Helper()
	tr, err := h.tracker.Start(context.Background(), StartInput{
		OrgID:      testOrg,
		Domain:     domain.DomainSupport,
		EntityType: "ticket",
		EntityID:   entityID,
	})
	require.NoError(t, err)
	return tr
}

func (h *harness) eventTypes(t *testing.T, trackingID string) []domain.EventType {
	t.Helper()
	evs, err := h.store.Repositories().Events.ListByTracking(context.Background(), testOrg, trackingID)
	require.NoError(t, err)
	out := make([]domain.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func countType(types []domain.EventType, want domain.EventType) int {
	n := 0
	for _, et := range types {
		if et == want {
			n++
		}
	}
	return n
}

func requireSameInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %s, got %s", want.UTC(), got.UTC())
}

// flakyStore fails the first n transactions with a version conflict.
type flakyStore struct {
	repository.Store
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return repository.ErrVersionConflict
	}
	return s.Store.WithinTx(ctx, fn)
}
