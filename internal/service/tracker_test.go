package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

func TestStart_ComputesDueDatesAndSnapshotsPolicy(t *testing.T) {
	h := newHarness(t)
	cfg := h.seedConfig(t, withSchedule(h.scheduleID),
		withResponse(4, domain.UnitBusinessHours),
		withResolution(2, domain.UnitBusinessDays))

	tr := h.start(t, "T-1")

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, cfg.ID, tr.ConfigurationID)
	assert.Equal(t, domain.StatusActive, tr.Status())
	requireSameInstant(t, monday(14, 0), tr.Response.DueAt)
	requireSameInstant(t, time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC), tr.Resolution.DueAt)
	assert.Equal(t, 4*time.Hour, tr.Response.TargetDuration)
	assert.Equal(t, 16*time.Hour, tr.Resolution.TargetDuration)

	require.NotNil(t, tr.Policy.Calendar)
	assert.Equal(t, h.scheduleID, tr.Policy.Calendar.ScheduleID)
	assert.Equal(t, cfg.Version, tr.Policy.ConfigurationVersion)

	assert.Equal(t, []domain.EventType{domain.EventStarted}, h.eventTypes(t, tr.ID))
	assert.Equal(t, 1, h.published.count(domain.EventStarted))
}

func TestStart_RejectsSecondOpenTracking(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResolution(8, domain.UnitHours))
	first := h.start(t, "T-1")

	_, err := h.tracker.Start(context.Background(), StartInput{
		OrgID: testOrg, Domain: domain.DomainSupport, EntityType: "ticket", EntityID: "T-1",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = h.tracker.RecordResolution(context.Background(), testOrg, first.ID, nil)
	require.NoError(t, err)
	second := h.start(t, "T-1")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStart_BusinessTargetWithoutScheduleFails(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResolution(4, domain.UnitBusinessHours))

	_, err := h.tracker.Start(context.Background(), StartInput{
		OrgID: testOrg, Domain: domain.DomainSupport, EntityType: "ticket", EntityID: "T-1",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration))

	_, err = h.store.Repositories().Trackings.FindOpenByEntity(context.Background(), testOrg, domain.DomainSupport, "ticket", "T-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 0, h.published.count(domain.EventStarted))
}

func TestStart_NoConfiguration(t *testing.T) {
	h := newHarness(t)
	_, err := h.tracker.Start(context.Background(), StartInput{
		OrgID: testOrg, Domain: domain.DomainJobs, EntityType: "job", EntityID: "J-1",
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoConfigurationFound))
}

func TestStart_ValidatesInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.tracker.Start(context.Background(), StartInput{OrgID: testOrg, Domain: "billing"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestPauseResume_ShiftsDueDatesByPause(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withSchedule(h.scheduleID),
		withResponse(4, domain.UnitBusinessHours),
		withResolution(2, domain.UnitBusinessDays))
	tr := h.start(t, "T-1")
	ctx := context.Background()

	h.clock.Set(monday(11, 0))
	paused, err := h.tracker.Pause(ctx, testOrg, tr.ID, "waiting on customer")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status())
	requireSameInstant(t, monday(11, 0), *paused.PauseStartedAt())

	h.clock.Set(monday(14, 0))
	resumed, err := h.tracker.Resume(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, resumed.CumulativePaused)
	requireSameInstant(t, monday(17, 0), resumed.Response.DueAt)
	requireSameInstant(t, time.Date(2024, 3, 6, 13, 0, 0, 0, time.UTC), resumed.Resolution.DueAt)
	assert.Nil(t, resumed.PauseStartedAt())

	h.clock.Set(monday(15, 0))
	_, err = h.tracker.Pause(ctx, testOrg, tr.ID, "")
	require.NoError(t, err)
	h.clock.Set(monday(16, 0))
	resumed, err = h.tracker.Resume(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, resumed.CumulativePaused)
	// The hour lost before close carries over into Tuesday's open time.
	requireSameInstant(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), resumed.Response.DueAt)
	requireSameInstant(t, time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC), resumed.Resolution.DueAt)

	assert.Equal(t, []domain.EventType{
		domain.EventStarted, domain.EventPaused, domain.EventResumed, domain.EventPaused, domain.EventResumed,
	}, h.eventTypes(t, tr.ID))
}

func TestTransitions_RejectInvalidMoves(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResponse(1, domain.UnitHours), withResolution(8, domain.UnitHours))
	tr := h.start(t, "T-1")
	ctx := context.Background()

	_, err := h.tracker.Resume(ctx, testOrg, tr.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "resume while active")

	_, err = h.tracker.Pause(ctx, testOrg, tr.ID, "")
	require.NoError(t, err)
	_, err = h.tracker.Pause(ctx, testOrg, tr.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "pause while paused")
	_, err = h.tracker.Resume(ctx, testOrg, tr.ID)
	require.NoError(t, err)

	_, err = h.tracker.RecordResponse(ctx, testOrg, tr.ID, nil)
	require.NoError(t, err)
	_, err = h.tracker.RecordResponse(ctx, testOrg, tr.ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "second response")

	_, err = h.tracker.RecordResolution(ctx, testOrg, tr.ID, nil)
	require.NoError(t, err)
	_, err = h.tracker.RecordResolution(ctx, testOrg, tr.ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "second resolution")
	_, err = h.tracker.Pause(ctx, testOrg, tr.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "pause after resolution")

	_, err = h.tracker.Pause(ctx, testOrg, "missing", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestRecordResponse_LateResponseRecordsBreach(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResponse(1, domain.UnitHours), withEscalation("lead-1"))
	tr := h.start(t, "T-1")

	h.clock.Set(monday(12, 0))
	at := monday(11, 30)
	updated, err := h.tracker.RecordResponse(context.Background(), testOrg, tr.ID, &at)
	require.NoError(t, err)

	require.NotNil(t, updated.Response.BreachedAt)
	requireSameInstant(t, at, *updated.Response.BreachedAt)
	requireSameInstant(t, at, *updated.RespondedAt)
	types := h.eventTypes(t, tr.ID)
	assert.Equal(t, 1, countType(types, domain.EventResponseBreached))
	assert.Equal(t, 1, countType(types, domain.EventEscalated))
	assert.Equal(t, 1, countType(types, domain.EventResponded))
}

func TestRecordResponse_BeforeStartRejected(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResponse(1, domain.UnitHours))
	tr := h.start(t, "T-1")

	at := monday(9, 0)
	_, err := h.tracker.RecordResponse(context.Background(), testOrg, tr.ID, &at)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestRecordMilestones_FutureInstantRejected(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(monday(9, 0))
	h.seedConfig(t, withResponse(1, domain.UnitHours), withResolution(8, domain.UnitHours), withEscalation("lead-1"))
	tr := h.start(t, "T-1")
	ctx := context.Background()

	h.clock.Set(monday(9, 30))
	future := monday(23, 0)
	_, err := h.tracker.RecordResponse(ctx, testOrg, tr.ID, &future)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed), "response")
	_, err = h.tracker.RecordResolution(ctx, testOrg, tr.ID, &future)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed), "resolution")

	got, err := h.store.Repositories().Trackings.GetByID(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RespondedAt)
	assert.Nil(t, got.Response.BreachedAt)
	assert.Equal(t, domain.StatusActive, got.Status())
	assert.Equal(t, []domain.EventType{domain.EventStarted}, h.eventTypes(t, tr.ID))

	now := monday(9, 30)
	updated, err := h.tracker.RecordResponse(ctx, testOrg, tr.ID, &now)
	require.NoError(t, err)
	requireSameInstant(t, now, *updated.RespondedAt)
	assert.Nil(t, updated.Response.BreachedAt)
}

func TestEvaluate_WarnsOncePerDueDate(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(monday(9, 0))
	h.seedConfig(t, withSchedule(h.scheduleID), withResolution(8, domain.UnitBusinessHours), withEscalation("lead-1"))
	tr := h.start(t, "T-1")
	ctx := context.Background()

	h.clock.Set(monday(14, 0))
	res, err := h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Warned, "5h elapsed is not at risk")

	h.clock.Set(monday(15, 0))
	res, err = h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warned)

	h.clock.Set(monday(15, 6))
	res, err = h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Warned)
	assert.Equal(t, 1, countType(h.eventTypes(t, tr.ID), domain.EventResolutionDueWarning))

	h.clock.Set(monday(17, 0))
	res, err = h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Breached)
	assert.Equal(t, 1, res.Escalated)
	assert.Equal(t, domain.StatusBreached, res.Tracking.Status())

	res, err = h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Breached+res.Escalated+res.Warned)
	assert.Equal(t, 1, h.published.count(domain.EventResolutionBreached))
	assert.Equal(t, 1, h.published.count(domain.EventEscalated))
}

func TestEvaluate_ResumeStartsNewWarningEpoch(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(monday(9, 0))
	h.seedConfig(t, withResolution(8, domain.UnitHours))
	tr := h.start(t, "T-1")
	ctx := context.Background()

	h.clock.Set(monday(15, 0))
	res, err := h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Warned)

	_, err = h.tracker.Pause(ctx, testOrg, tr.ID, "")
	require.NoError(t, err)
	h.clock.Set(monday(15, 30))
	_, err = h.tracker.Resume(ctx, testOrg, tr.ID)
	require.NoError(t, err)

	res, err = h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warned)
	assert.Equal(t, 2, countType(h.eventTypes(t, tr.ID), domain.EventResolutionDueWarning))
}

func TestEvaluate_SkipsPausedAndMetMilestones(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResponse(1, domain.UnitHours), withResolution(2, domain.UnitHours))
	tr := h.start(t, "T-1")
	ctx := context.Background()

	_, err := h.tracker.RecordResponse(ctx, testOrg, tr.ID, nil)
	require.NoError(t, err)
	_, err = h.tracker.Pause(ctx, testOrg, tr.ID, "")
	require.NoError(t, err)

	h.clock.Advance(5 * time.Hour)
	res, err := h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Breached)
	assert.False(t, res.Tracking.IsBreached())

	_, err = h.tracker.Resume(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	res, err = h.tracker.Evaluate(ctx, testOrg, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Breached, "only the resolution milestone can breach")
	assert.Nil(t, res.Tracking.Response.BreachedAt)
}

func TestEvaluate_ConcurrentCallsBreachOnce(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResponse(1, domain.UnitHours), withEscalation("lead-1"))
	tr := h.start(t, "T-1")
	h.clock.Advance(2 * time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		breached int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.tracker.Evaluate(context.Background(), testOrg, tr.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			breached += res.Breached
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, breached)
	types := h.eventTypes(t, tr.ID)
	assert.Equal(t, 1, countType(types, domain.EventResponseBreached))
	assert.Equal(t, 1, countType(types, domain.EventEscalated))
}

func TestMutate_RetriesVersionConflicts(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResolution(8, domain.UnitHours))
	tr := h.start(t, "T-1")

	flaky := &flakyStore{Store: h.store, failures: 2}
	tracker := NewTracker(TrackerDependencies{Store: flaky, Resolver: h.tracker.resolver, Calendars: h.cache, Clock: h.clock.Now, Logger: zap.NewNop()})

	_, err := tracker.Pause(context.Background(), testOrg, tr.ID, "")
	require.NoError(t, err)

	flaky.failures = 10
	_, err = tracker.Resume(context.Background(), testOrg, tr.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrentModification))
	assert.True(t, errors.Is(err, repository.ErrVersionConflict))
}

func TestEvents_ListsLog(t *testing.T) {
	h := newHarness(t)
	h.seedConfig(t, withResolution(8, domain.UnitHours))
	tr := h.start(t, "T-1")

	evs, err := h.tracker.Events(context.Background(), testOrg, tr.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventStarted, evs[0].Type)

	_, err = h.tracker.Events(context.Background(), "other-org", tr.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
