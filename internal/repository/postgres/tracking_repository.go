package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

type trackingRepository struct {
	db   DBTX
	lock bool
}

const trackingColumns = `id, org_id, domain, entity_type, entity_id, configuration_id, status, started_at,
        response_target_value, response_target_unit, response_due_at, response_target_ns, response_breached_at, responded_at,
        resolution_target_value, resolution_target_unit, resolution_due_at, resolution_target_ns, resolution_breached_at, resolved_at,
        pause_started_at, pause_reason, cumulative_paused_ns, policy, version, created_at, updated_at`

func (r *trackingRepository) Create(ctx context.Context, tracking *domain.SlaTracking) error {
	rec, err := repository.FlattenTracking(tracking)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO sla_trackings (org_id, domain, entity_type, entity_id, configuration_id, status, started_at,
            response_target_value, response_target_unit, response_due_at, response_target_ns, response_breached_at, responded_at,
            resolution_target_value, resolution_target_unit, resolution_due_at, resolution_target_ns, resolution_breached_at, resolved_at,
            pause_started_at, pause_reason, cumulative_paused_ns, policy)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
        RETURNING id, version, created_at, updated_at`
	return mapError(r.db.QueryRow(ctx, query,
		rec.OrgID,
		rec.Domain,
		rec.EntityType,
		rec.EntityID,
		rec.ConfigurationID,
		rec.Status,
		rec.StartedAt,
		rec.ResponseTargetValue,
		rec.ResponseTargetUnit,
		rec.ResponseDueAt,
		rec.ResponseTargetNanos,
		rec.ResponseBreachedAt,
		rec.RespondedAt,
		rec.ResolutionTargetValue,
		rec.ResolutionTargetUnit,
		rec.ResolutionDueAt,
		rec.ResolutionTargetNanos,
		rec.ResolutionBreachedAt,
		rec.ResolvedAt,
		rec.PauseStartedAt,
		rec.PauseReason,
		rec.CumulativePausedNanos,
		rec.Policy,
	).Scan(&tracking.ID, &tracking.Version, &tracking.CreatedAt, &tracking.UpdatedAt))
}

func (r *trackingRepository) GetByID(ctx context.Context, orgID, id string) (*domain.SlaTracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM sla_trackings WHERE org_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, orgID, id)
}

func (r *trackingRepository) GetForUpdate(ctx context.Context, orgID, id string) (*domain.SlaTracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM sla_trackings WHERE org_id=$1 AND id=$2`
	if r.lock {
		query += ` FOR UPDATE`
	}
	return r.fetchSingle(ctx, query, orgID, id)
}

func (r *trackingRepository) FindOpenByEntity(ctx context.Context, orgID string, d domain.Domain, entityType, entityID string) (*domain.SlaTracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM sla_trackings
        WHERE org_id=$1 AND domain=$2 AND entity_type=$3 AND entity_id=$4 AND status <> 'resolved'`
	return r.fetchSingle(ctx, query, orgID, d, entityType, entityID)
}

func (r *trackingRepository) Update(ctx context.Context, tracking *domain.SlaTracking) error {
	rec, err := repository.FlattenTracking(tracking)
	if err != nil {
		return err
	}
	const query = `
        UPDATE sla_trackings SET status=$1, response_due_at=$2, response_breached_at=$3, responded_at=$4,
            resolution_due_at=$5, resolution_breached_at=$6, resolved_at=$7, pause_started_at=$8,
            pause_reason=$9, cumulative_paused_ns=$10, version=version+1, updated_at=NOW()
        WHERE org_id=$11 AND id=$12 AND version=$13
        RETURNING version, updated_at`
	err = r.db.QueryRow(ctx, query,
		rec.Status,
		rec.ResponseDueAt,
		rec.ResponseBreachedAt,
		rec.RespondedAt,
		rec.ResolutionDueAt,
		rec.ResolutionBreachedAt,
		rec.ResolvedAt,
		rec.PauseStartedAt,
		rec.PauseReason,
		rec.CumulativePausedNanos,
		rec.OrgID,
		rec.ID,
		rec.Version,
	).Scan(&tracking.Version, &tracking.UpdatedAt)
	if err == pgx.ErrNoRows {
		if _, getErr := r.GetByID(ctx, tracking.OrgID, tracking.ID); getErr != nil {
			return getErr
		}
		return repository.ErrVersionConflict
	}
	return mapError(err)
}

func (r *trackingRepository) ListSweepCandidates(ctx context.Context, filter repository.SweepFilter) ([]repository.TrackingRef, error) {
	var domainFilter *string
	if filter.Domain != nil {
		d := string(*filter.Domain)
		domainFilter = &d
	}
	const query = `
        SELECT org_id, id FROM sla_trackings
        WHERE status NOT IN ('paused', 'resolved')
          AND ($1::text IS NULL OR domain = $1)
          AND id::text > $2
        ORDER BY id::text
        LIMIT $3`
	rows, err := r.db.Query(ctx, query, domainFilter, filter.AfterID, filter.Limit)
	if err != nil {
		return nil, err
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

func (r *trackingRepository) ListOpenByConfiguration(ctx context.Context, orgID, configurationID string) ([]repository.TrackingRef, error) {
	const query = `
        SELECT org_id, id FROM sla_trackings
        WHERE org_id=$1 AND configuration_id=$2 AND status <> 'resolved'
        ORDER BY started_at`
	rows, err := r.db.Query(ctx, query, orgID, configurationID)
	if err != nil {
		return nil, err
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

func (r *trackingRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SlaTracking, error) {
	var rec repository.TrackingRecord
	if err := r.db.QueryRow(ctx, query, args...).Scan(
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
		&rec.Policy,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return rec.Tracking()
}
