//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/persistence"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/repository/postgres"
)

func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	store, err := postgres.NewStore(pool)
	require.NoError(t, err)
	return store
}

func TestStore_TrackingLifecycleAndEventDedup(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	org := "org-" + uuid.NewString()
	repos := store.Repositories()

	cfg := &domain.SlaConfiguration{
		OrgID:            org,
		Domain:           domain.DomainSupport,
		Name:             "default",
		ResolutionTarget: &domain.Target{Value: 8, Unit: domain.UnitHours},
		IsDefault:        true,
		IsActive:         true,
	}
	cfg.ApplyDefaults()
	require.NoError(t, repos.Configurations.Create(ctx, cfg))

	started := time.Now().UTC().Truncate(time.Microsecond)
	tracking := &domain.SlaTracking{
		OrgID:           org,
		Domain:          domain.DomainSupport,
		EntityType:      "ticket",
		EntityID:        uuid.NewString(),
		ConfigurationID: cfg.ID,
		State:           domain.Active{},
		StartedAt:       started,
		Resolution: &domain.Deadline{
			Target:         *cfg.ResolutionTarget,
			DueAt:          started.Add(8 * time.Hour),
			TargetDuration: 8 * time.Hour,
		},
		Policy: domain.Policy{AtRiskThresholdPercent: 25},
	}
	require.NoError(t, repos.Trackings.Create(ctx, tracking))

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		locked, err := tx.Trackings.GetForUpdate(ctx, org, tracking.ID)
		if err != nil {
			return err
		}
		if err := locked.Pause(started.Add(time.Hour), "waiting on customer"); err != nil {
			return err
		}
		return tx.Trackings.Update(ctx, locked)
	})
	require.NoError(t, err)

	stale := *tracking
	assert.ErrorIs(t, repos.Trackings.Update(ctx, &stale), repository.ErrVersionConflict)

	got, err := repos.Trackings.GetByID(ctx, org, tracking.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaused())
	assert.Equal(t, int64(2), got.Version)

	key := repository.DedupKey(domain.EventResolutionDueWarning, tracking.Resolution.DueAt)
	first := &domain.SlaEvent{OrgID: org, TrackingID: tracking.ID, Type: domain.EventResolutionDueWarning, OccurredAt: started, DedupKey: &key}
	inserted, err := repos.Events.Append(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := *first
	inserted, err = repos.Events.Append(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	events, err := repos.Events.ListByTracking(ctx, org, tracking.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
