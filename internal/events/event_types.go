package events

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// EventType mirrors the SLA event log types.
type EventType = domain.EventType

// Event is a committed SLA event together with the tracking context that
// consumers need to act on it.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OrgID      string         `json:"org_id"`
	TrackingID string         `json:"tracking_id"`
	Domain     domain.Domain  `json:"domain"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// FromSlaEvent builds a dispatchable event from a stored entry.
func FromSlaEvent(ev domain.SlaEvent, tracking *domain.SlaTracking) Event {
	out := Event{
		ID:         ev.ID,
		Type:       ev.Type,
		OrgID:      ev.OrgID,
		TrackingID: ev.TrackingID,
		Timestamp:  ev.OccurredAt,
		Payload:    ev.Payload,
	}
	if tracking != nil {
		out.Domain = tracking.Domain
		out.EntityType = tracking.EntityType
		out.EntityID = tracking.EntityID
	}
	return out
}

// EscalationTypes are the event types an escalation consumer reacts to.
var EscalationTypes = []EventType{
	domain.EventResponseDueWarning,
	domain.EventResolutionDueWarning,
	domain.EventResponseBreached,
	domain.EventResolutionBreached,
	domain.EventEscalated,
}
