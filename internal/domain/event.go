package domain

import "time"

// EventType enumerates SLA event log entries.
type EventType string

const (
	EventStarted              EventType = "started"
	EventPaused               EventType = "paused"
	EventResumed              EventType = "resumed"
	EventResponseDueWarning   EventType = "response_due_warning"
	EventResponseBreached     EventType = "response_breached"
	EventResponded            EventType = "responded"
	EventResolutionDueWarning EventType = "resolution_due_warning"
	EventResolutionBreached   EventType = "resolution_breached"
	EventResolved             EventType = "resolved"
	EventEscalated            EventType = "escalated"
	EventConfigChanged        EventType = "config_changed"
)

// WarningEvent returns the at-risk event type for a milestone.
func WarningEvent(m Milestone) EventType {
	if m == MilestoneResponse {
		return EventResponseDueWarning
	}
	return EventResolutionDueWarning
}

// BreachEvent returns the breach event type for a milestone.
func BreachEvent(m Milestone) EventType {
	if m == MilestoneResponse {
		return EventResponseBreached
	}
	return EventResolutionBreached
}

// SlaEvent is an immutable event log entry.
type SlaEvent struct {
	ID         string
	OrgID      string
	TrackingID string
	Type       EventType
	OccurredAt time.Time
	// DedupKey is unique per tracking record when set.
	DedupKey  *string
	Payload   map[string]any
	CreatedAt time.Time
}
