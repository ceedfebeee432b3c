package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TrackingRecord is the flat column layout shared by the SQL stores.
type TrackingRecord struct {
	ID                    string
	OrgID                 string
	Domain                string
	EntityType            string
	EntityID              string
	ConfigurationID       string
	Status                string
	StartedAt             time.Time
	ResponseTargetValue   *int
	ResponseTargetUnit    *string
	ResponseDueAt         *time.Time
	ResponseTargetNanos   *int64
	ResponseBreachedAt    *time.Time
	RespondedAt           *time.Time
	ResolutionTargetValue *int
	ResolutionTargetUnit  *string
	ResolutionDueAt       *time.Time
	ResolutionTargetNanos *int64
	ResolutionBreachedAt  *time.Time
	ResolvedAt            *time.Time
	PauseStartedAt        *time.Time
	PauseReason           *string
	CumulativePausedNanos int64
	Policy                []byte
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// FlattenTracking maps a tracking record onto columns.
func FlattenTracking(t *domain.SlaTracking) (TrackingRecord, error) {
	policy, err := json.Marshal(t.Policy)
	if err != nil {
		return TrackingRecord{}, fmt.Errorf("encode policy: %w", err)
	}
	rec := TrackingRecord{
		ID:                    t.ID,
		OrgID:                 t.OrgID,
		Domain:                string(t.Domain),
		EntityType:            t.EntityType,
		EntityID:              t.EntityID,
		ConfigurationID:       t.ConfigurationID,
		Status:                string(t.Status()),
		StartedAt:             t.StartedAt.UTC(),
		RespondedAt:           utcPtr(t.RespondedAt),
		ResolvedAt:            utcPtr(t.ResolvedAt()),
		PauseStartedAt:        utcPtr(t.PauseStartedAt()),
		CumulativePausedNanos: int64(t.CumulativePaused),
		Policy:                policy,
		Version:               t.Version,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
	if p, ok := t.State.(domain.Paused); ok && p.Reason != "" {
		reason := p.Reason
		rec.PauseReason = &reason
	}
	if d := t.Response; d != nil {
		rec.ResponseTargetValue, rec.ResponseTargetUnit, rec.ResponseDueAt, rec.ResponseTargetNanos, rec.ResponseBreachedAt = flattenDeadline(d)
	}
	if d := t.Resolution; d != nil {
		rec.ResolutionTargetValue, rec.ResolutionTargetUnit, rec.ResolutionDueAt, rec.ResolutionTargetNanos, rec.ResolutionBreachedAt = flattenDeadline(d)
	}
	return rec, nil
}

// Tracking rebuilds the domain record, rejecting inconsistent rows.
func (r TrackingRecord) Tracking() (*domain.SlaTracking, error) {
	reason := ""
	if r.PauseReason != nil {
		reason = *r.PauseReason
	}
	state, err := domain.RestoreState(domain.Status(r.Status), r.PauseStartedAt, reason, r.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("tracking %s: %w", r.ID, err)
	}
	t := &domain.SlaTracking{
		ID:               r.ID,
		OrgID:            r.OrgID,
		Domain:           domain.Domain(r.Domain),
		EntityType:       r.EntityType,
		EntityID:         r.EntityID,
		ConfigurationID:  r.ConfigurationID,
		State:            state,
		StartedAt:        r.StartedAt,
		RespondedAt:      r.RespondedAt,
		CumulativePaused: time.Duration(r.CumulativePausedNanos),
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if len(r.Policy) > 0 {
		if err := json.Unmarshal(r.Policy, &t.Policy); err != nil {
			return nil, fmt.Errorf("tracking %s: decode policy: %w", r.ID, err)
		}
	}
	if t.Response, err = restoreDeadline(r.ResponseTargetValue, r.ResponseTargetUnit, r.ResponseDueAt, r.ResponseTargetNanos, r.ResponseBreachedAt); err != nil {
		return nil, fmt.Errorf("tracking %s response: %w", r.ID, err)
	}
	if t.Resolution, err = restoreDeadline(r.ResolutionTargetValue, r.ResolutionTargetUnit, r.ResolutionDueAt, r.ResolutionTargetNanos, r.ResolutionBreachedAt); err != nil {
		return nil, fmt.Errorf("tracking %s resolution: %w", r.ID, err)
	}
	return t, nil
}

func flattenDeadline(d *domain.Deadline) (*int, *string, *time.Time, *int64, *time.Time) {
	value := d.Target.Value
	unit := string(d.Target.Unit)
	due := d.DueAt.UTC()
	nanos := int64(d.TargetDuration)
	return &value, &unit, &due, &nanos, utcPtr(d.BreachedAt)
}

func restoreDeadline(value *int, unit *string, due *time.Time, nanos *int64, breached *time.Time) (*domain.Deadline, error) {
	if due == nil {
		return nil, nil
	}
	if value == nil || unit == nil || nanos == nil {
		return nil, fmt.Errorf("due date without target")
	}
	return &domain.Deadline{
		Target:         domain.Target{Value: *value, Unit: domain.TargetUnit(*unit)},
		DueAt:          *due,
		TargetDuration: time.Duration(*nanos),
		BreachedAt:     breached,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// DedupKey is the event log de-duplication key for a milestone event bound
// to a due-date epoch.
func DedupKey(eventType domain.EventType, dueAt time.Time) string {
	return fmt.Sprintf("%s:%d", eventType, dueAt.UnixNano())
}
