package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-service/internal/domain"
)

type eventRepo struct {
	db  DBTX
	now func() time.Time
}

const eventColumns = `id, org_id, tracking_id, event_type, occurred_at, dedup_key, payload, created_at`

func (r *eventRepo) Append(ctx context.Context, event *domain.SlaEvent) (bool, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return false, err
	}
	now := utcNow(r.now)
	id := uuid.NewString()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sla_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tracking_id, dedup_key) DO NOTHING`,
		id, event.OrgID, event.TrackingID, string(event.Type), event.OccurredAt.UTC(), event.DedupKey, string(payload), now,
	)
	if err != nil {
		return false, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	event.ID, event.CreatedAt = id, now
	return true, nil
}

func (r *eventRepo) ListByTracking(ctx context.Context, orgID, trackingID string) ([]domain.SlaEvent, error) {
	return r.list(ctx,
		`SELECT `+eventColumns+` FROM sla_events WHERE org_id = ? AND tracking_id = ? ORDER BY occurred_at, rowid`,
		orgID, trackingID)
}

func (r *eventRepo) ListAfter(ctx context.Context, orgID string, after time.Time, limit int) ([]domain.SlaEvent, error) {
	return r.list(ctx,
		`SELECT `+eventColumns+` FROM sla_events WHERE org_id = ? AND occurred_at > ? ORDER BY occurred_at, rowid LIMIT ?`,
		orgID, after.UTC(), limit)
}

func (r *eventRepo) list(ctx context.Context, query string, args ...any) ([]domain.SlaEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []domain.SlaEvent
	for rows.Next() {
		var (
			ev       domain.SlaEvent
			dedupKey sql.NullString
			payload  string
		)
		if err := rows.Scan(&ev.ID, &ev.OrgID, &ev.TrackingID, &ev.Type, &ev.OccurredAt, &dedupKey, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if dedupKey.Valid {
			ev.DedupKey = &dedupKey.String
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
