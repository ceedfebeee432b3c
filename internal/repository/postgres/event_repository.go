package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
)

type eventRepository struct {
	db DBTX
}

const eventColumns = `id, org_id, tracking_id, event_type, occurred_at, dedup_key, payload, created_at`

func (r *eventRepository) Append(ctx context.Context, event *domain.SlaEvent) (bool, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return false, err
	}
	const query = `
        INSERT INTO sla_events (org_id, tracking_id, event_type, occurred_at, dedup_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tracking_id, dedup_key) DO NOTHING
        RETURNING id, created_at`
	err = r.db.QueryRow(ctx, query,
		event.OrgID,
		event.TrackingID,
		event.Type,
		event.OccurredAt.UTC(),
		event.DedupKey,
		payload,
	).Scan(&event.ID, &event.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (r *eventRepository) ListByTracking(ctx context.Context, orgID, trackingID string) ([]domain.SlaEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM sla_events
        WHERE org_id=$1 AND tracking_id=$2 ORDER BY occurred_at, created_at`
	return r.list(ctx, query, orgID, trackingID)
}

func (r *eventRepository) ListAfter(ctx context.Context, orgID string, after time.Time, limit int) ([]domain.SlaEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM sla_events
        WHERE org_id=$1 AND occurred_at > $2 ORDER BY occurred_at, created_at LIMIT $3`
	return r.list(ctx, query, orgID, after.UTC(), limit)
}

func (r *eventRepository) list(ctx context.Context, query string, args ...any) ([]domain.SlaEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SlaEvent
	for rows.Next() {
		var (
			ev      domain.SlaEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.OrgID, &ev.TrackingID, &ev.Type, &ev.OccurredAt, &ev.DedupKey, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
