package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// StartTrackingRequest payload for POST /v1/trackings.
type StartTrackingRequest struct {
	Domain          domain.Domain     `json:"domain"`
	EntityType      string            `json:"entity_type"`
	EntityID        string            `json:"entity_id"`
	ConfigurationID *string           `json:"configuration_id"`
	Attributes      map[string]string `json:"attributes"`
}

// PauseRequest payload for POST /v1/trackings/:id/pause.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// MilestoneRequest payload for the response and resolution endpoints. A
// missing At records the milestone now.
type MilestoneRequest struct {
	At *time.Time `json:"at"`
}

// SweepRequest payload for POST /v1/sweeps.
type SweepRequest struct {
	Domain *domain.Domain `json:"domain"`
}

// DeadlineResponse describes one milestone deadline.
type DeadlineResponse struct {
	Target     domain.Target `json:"target"`
	DueAt      time.Time     `json:"due_at"`
	BreachedAt *time.Time    `json:"breached_at"`
}

// TrackingResponse is the stored state of a tracking record.
type TrackingResponse struct {
	ID                      string            `json:"id"`
	Domain                  domain.Domain     `json:"domain"`
	EntityType              string            `json:"entity_type"`
	EntityID                string            `json:"entity_id"`
	ConfigurationID         string            `json:"configuration_id"`
	ConfigurationVersion    int               `json:"configuration_version"`
	Status                  domain.Status     `json:"status"`
	StartedAt               time.Time         `json:"started_at"`
	Response                *DeadlineResponse `json:"response"`
	Resolution              *DeadlineResponse `json:"resolution"`
	RespondedAt             *time.Time        `json:"responded_at"`
	ResolvedAt              *time.Time        `json:"resolved_at"`
	PauseStartedAt          *time.Time        `json:"pause_started_at"`
	PauseReason             *string           `json:"pause_reason,omitempty"`
	CumulativePausedSeconds float64           `json:"cumulative_paused_seconds"`
	IsBreached              bool              `json:"is_breached"`
	BusinessHoursScheduleID *string           `json:"business_hours_schedule_id"`
	Version                 int64             `json:"version"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// MilestoneStatusResponse is the derived state of one milestone.
type MilestoneStatusResponse struct {
	Target           domain.Target `json:"target"`
	DueAt            time.Time     `json:"due_at"`
	Met              bool          `json:"met"`
	MetAt            *time.Time    `json:"met_at"`
	BreachedAt       *time.Time    `json:"breached_at"`
	AtRisk           bool          `json:"at_risk"`
	RemainingSeconds float64       `json:"remaining_seconds"`
	ElapsedSeconds   float64       `json:"elapsed_seconds"`
	PercentComplete  float64       `json:"percent_complete"`
}

// StatusResponse is the GET /v1/trackings/:id payload.
type StatusResponse struct {
	Tracking    TrackingResponse         `json:"tracking"`
	Response    *MilestoneStatusResponse `json:"response"`
	Resolution  *MilestoneStatusResponse `json:"resolution"`
	EvaluatedAt time.Time                `json:"evaluated_at"`
}

// EventResponse is one event log entry.
type EventResponse struct {
	ID         string           `json:"id"`
	Type       domain.EventType `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    map[string]any   `json:"payload"`
}

// EvaluationResponse reports what an evaluation appended.
type EvaluationResponse struct {
	Tracking  TrackingResponse `json:"tracking"`
	Breached  int              `json:"breached"`
	Warned    int              `json:"warned"`
	Escalated int              `json:"escalated"`
}
