package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type trackingRepo struct {
	db  DBTX
	now func() time.Time
}

const trackingColumns = `id, org_id, domain, entity_type, entity_id, configuration_id, status, started_at,
	response_target_value, response_target_unit, response_due_at, response_target_ns, response_breached_at, responded_at,
	resolution_target_value, resolution_target_unit, resolution_due_at, resolution_target_ns, resolution_breached_at, resolved_at,
	pause_started_at, pause_reason, cumulative_paused_ns, policy, version, created_at, updated_at`

func (r *trackingRepo) Create(ctx context.Context, tracking *domain.SlaTracking) error {
	rec, err := repository.FlattenTracking(tracking)
	if err != nil {
		return err
	}
	now := utcNow(r.now)
	rec.ID = uuid.NewString()
	rec.Version = 1
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sla_trackings (`+trackingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrgID, rec.Domain, rec.EntityType, rec.EntityID, rec.ConfigurationID, rec.Status, rec.StartedAt,
		rec.ResponseTargetValue, rec.ResponseTargetUnit, rec.ResponseDueAt, rec.ResponseTargetNanos, rec.ResponseBreachedAt, rec.RespondedAt,
		rec.ResolutionTargetValue, rec.ResolutionTargetUnit, rec.ResolutionDueAt, rec.ResolutionTargetNanos, rec.ResolutionBreachedAt, rec.ResolvedAt,
		rec.PauseStartedAt, rec.PauseReason, rec.CumulativePausedNanos, string(rec.Policy), rec.Version, now, now,
	)
	if err != nil {
		return mapError(err)
	}
	tracking.ID, tracking.Version, tracking.CreatedAt, tracking.UpdatedAt = rec.ID, rec.Version, now, now
	return nil
}

func (r *trackingRepo) GetByID(ctx context.Context, orgID, id string) (*domain.SlaTracking, error) {
	return r.fetchSingle(ctx, `SELECT `+trackingColumns+` FROM sla_trackings WHERE org_id = ? AND id = ?`, orgID, id)
}

// GetForUpdate is a plain read; WithinTx already holds the write lock.
func (r *trackingRepo) GetForUpdate(ctx context.Context, orgID, id string) (*domain.SlaTracking, error) {
	return r.GetByID(ctx, orgID, id)
}

func (r *trackingRepo) FindOpenByEntity(ctx context.Context, orgID string, d domain.Domain, entityType, entityID string) (*domain.SlaTracking, error) {
	return r.fetchSingle(ctx,
		`SELECT `+trackingColumns+` FROM sla_trackings
		 WHERE org_id = ? AND domain = ? AND entity_type = ? AND entity_id = ? AND status <> 'resolved'`,
		orgID, string(d), entityType, entityID)
}

func (r *trackingRepo) Update(ctx context.Context, tracking *domain.SlaTracking) error {
	rec, err := repository.FlattenTracking(tracking)
	if err != nil {
		return err
	}
	now := utcNow(r.now)
	res, err := r.db.ExecContext(ctx,
		`UPDATE sla_trackings SET status = ?, response_due_at = ?, response_breached_at = ?, responded_at = ?,
		     resolution_due_at = ?, resolution_breached_at = ?, resolved_at = ?, pause_started_at = ?,
		     pause_reason = ?, cumulative_paused_ns = ?, version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND version = ?`,
		rec.Status, rec.ResponseDueAt, rec.ResponseBreachedAt, rec.RespondedAt,
		rec.ResolutionDueAt, rec.ResolutionBreachedAt, rec.ResolvedAt, rec.PauseStartedAt,
		rec.PauseReason, rec.CumulativePausedNanos, now,
		rec.OrgID, rec.ID, rec.Version,
	)
	if err != nil {
		return mapError(err)
	}
	if err := versionChecked(res, func() error {
		_, err := r.GetByID(ctx, tracking.OrgID, tracking.ID)
		return err
	}); err != nil {
		return err
	}
	tracking.Version++
	tracking.UpdatedAt = now
	return nil
}

func (r *trackingRepo) ListSweepCandidates(ctx context.Context, filter repository.SweepFilter) ([]repository.TrackingRef, error) {
	var domainFilter any
	if filter.Domain != nil {
		domainFilter = string(*filter.Domain)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, id FROM sla_trackings
		 WHERE status NOT IN ('paused', 'resolved') AND (? IS NULL OR domain = ?) AND id > ?
		 ORDER BY id LIMIT ?`,
		domainFilter, domainFilter, filter.AfterID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %w", err)
	}
	defer rows.Close()

	var refs []repository.TrackingRef
	for rows.Next() {
		var ref repository.TrackingRef
		if err := rows.Scan(&ref.OrgID, &ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *trackingRepo) ListOpenByConfiguration(ctx context.Context, orgID, configurationID string) ([]repository.TrackingRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, id FROM sla_trackings
		 WHERE org_id = ? AND configuration_id = ? AND status <> 'resolved'
		 ORDER BY started_at`,
		orgID, configurationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackings by configuration: %w", err)
	}
	defer rows.Close()

	var refs []repository.TrackingRef
	for rows.Next() {
		var ref repository.TrackingRef
		if err := rows.Scan(&ref.OrgID, &ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *trackingRepo) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SlaTracking, error) {
	var (
		rec    repository.TrackingRecord
		policy string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.ID,
		&rec.OrgID,
		&rec.Domain,
		&rec.EntityType,
		&rec.EntityID,
		&rec.ConfigurationID,
		&rec.Status,
		&rec.StartedAt,
		&rec.ResponseTargetValue,
		&rec.ResponseTargetUnit,
		&rec.ResponseDueAt,
		&rec.ResponseTargetNanos,
		&rec.ResponseBreachedAt,
		&rec.RespondedAt,
		&rec.ResolutionTargetValue,
		&rec.ResolutionTargetUnit,
		&rec.ResolutionDueAt,
		&rec.ResolutionTargetNanos,
		&rec.ResolutionBreachedAt,
		&rec.ResolvedAt,
		&rec.PauseStartedAt,
		&rec.PauseReason,
		&rec.CumulativePausedNanos,
		&policy,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	rec.Policy = []byte(policy)
	return rec.Tracking()
}
