package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/repository/memory"
)

func seed(t *testing.T, store *memory.Store) *domain.SlaTracking {
	t.Helper()
	ctx := context.Background()
	cfg := &domain.SlaConfiguration{OrgID: "org", Domain: domain.DomainJobs, Name: "field", IsActive: true, IsDefault: true,
		ResolutionTarget: &domain.Target{Value: 2, Unit: domain.UnitDays}}
	require.NoError(t, store.Repositories().Configurations.Create(ctx, cfg))

	started := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	tracking := &domain.SlaTracking{
		OrgID: "org", Domain: domain.DomainJobs, EntityType: "job", EntityID: "J-1", ConfigurationID: cfg.ID,
		State: domain.Active{}, StartedAt: started,
		Resolution: &domain.Deadline{Target: *cfg.ResolutionTarget, DueAt: started.Add(48 * time.Hour), TargetDuration: 48 * time.Hour},
	}
	require.NoError(t, store.Repositories().Trackings.Create(ctx, tracking))
	return tracking
}

func TestWithinTx_DiscardsWorkOnError(t *testing.T) {
	store := memory.NewStore()
	tracking := seed(t, store)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		tr, err := repos.Trackings.GetForUpdate(ctx, "org", tracking.ID)
		require.NoError(t, err)
		require.NoError(t, tr.Pause(tr.StartedAt.Add(time.Hour), "parts"))
		require.NoError(t, repos.Trackings.Update(ctx, tr))
		_, err = repos.Events.Append(ctx, &domain.SlaEvent{OrgID: "org", TrackingID: tr.ID, Type: domain.EventPaused, OccurredAt: tr.StartedAt})
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := store.Repositories().Trackings.GetByID(ctx, "org", tracking.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPaused())
	assert.Equal(t, int64(1), got.Version)

	events, err := store.Repositories().Events.ListByTracking(ctx, "org", tracking.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTrackingUpdate_VersionConflict(t *testing.T) {
	store := memory.NewStore()
	tracking := seed(t, store)
	ctx := context.Background()
	repos := store.Repositories()

	first, err := repos.Trackings.GetByID(ctx, "org", tracking.ID)
	require.NoError(t, err)
	second, err := repos.Trackings.GetByID(ctx, "org", tracking.ID)
	require.NoError(t, err)

	require.NoError(t, first.RecordResponse(first.StartedAt.Add(time.Minute)))
	require.NoError(t, repos.Trackings.Update(ctx, first))

	require.NoError(t, second.Pause(second.StartedAt.Add(time.Minute), "race"))
	assert.ErrorIs(t, repos.Trackings.Update(ctx, second), repository.ErrVersionConflict)
}

func TestReadsAreCopies(t *testing.T) {
	store := memory.NewStore()
	tracking := seed(t, store)
	ctx := context.Background()

	got, err := store.Repositories().Trackings.GetByID(ctx, "org", tracking.ID)
	require.NoError(t, err)
	got.Resolution.DueAt = got.Resolution.DueAt.Add(time.Hour)

	again, err := store.Repositories().Trackings.GetByID(ctx, "org", tracking.ID)
	require.NoError(t, err)
	assert.True(t, again.Resolution.DueAt.Equal(tracking.Resolution.DueAt))
}

func TestEventAppend_Dedup(t *testing.T) {
	store := memory.NewStore()
	tracking := seed(t, store)
	ctx := context.Background()
	key := repository.DedupKey(domain.EventResolutionDueWarning, tracking.Resolution.DueAt)

	for i, want := range []bool{true, false, false} {
		k := key
		inserted, err := store.Repositories().Events.Append(ctx, &domain.SlaEvent{
			OrgID: "org", TrackingID: tracking.ID, Type: domain.EventResolutionDueWarning,
			OccurredAt: tracking.StartedAt.Add(time.Duration(i) * time.Minute), DedupKey: &k,
		})
		require.NoError(t, err)
		assert.Equal(t, want, inserted)
	}
}
