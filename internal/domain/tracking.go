package domain

import (
	"fmt"
	"time"

	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// Status is the persisted, derived status of a tracking record.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusResponded Status = "responded"
	StatusResolved  Status = "resolved"
	StatusBreached  Status = "breached"
)

// State is the lifecycle of a tracking record. Only Active, Paused and
// Resolved implement it, so per-state fields always travel together.
type State interface {
	lifecycle() Status
}

// Active means the SLA clock is running.
type Active struct{}

// Paused means the clock is stopped since Since.
type Paused struct {
	Since  time.Time
	Reason string
}

// Resolved is terminal.
type Resolved struct {
	At time.Time
}

func (Active) lifecycle() Status   { return StatusActive }
func (Paused) lifecycle() Status   { return StatusPaused }
func (Resolved) lifecycle() Status { return StatusResolved }

// Milestone names one of the two independently tracked targets.
type Milestone string

const (
	MilestoneResponse   Milestone = "response"
	MilestoneResolution Milestone = "resolution"
)

// Deadline is one milestone's target, due instant and breach flag.
type Deadline struct {
	Target Target
	DueAt  time.Time
	// TargetDuration is the target length on its own clock (business or wall).
	TargetDuration time.Duration
	BreachedAt     *time.Time
}

// Policy is the configuration snapshot taken when tracking starts.
type Policy struct {
	ConfigurationVersion   int               `json:"configuration_version"`
	ConfigurationName      string            `json:"configuration_name"`
	AtRiskThresholdPercent int               `json:"at_risk_threshold_percent"`
	EscalateOnBreach       bool              `json:"escalate_on_breach"`
	EscalateToUser         *string           `json:"escalate_to_user,omitempty"`
	Calendar               *CalendarSnapshot `json:"calendar,omitempty"`
}

// SlaTracking is the per-entity SLA state.
type SlaTracking struct {
	ID               string
	OrgID            string
	Domain           Domain
	EntityType       string
	EntityID         string
	ConfigurationID  string
	State            State
	StartedAt        time.Time
	Response         *Deadline
	Resolution       *Deadline
	RespondedAt      *time.Time
	CumulativePaused time.Duration
	Policy           Policy
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Status derives the persisted status from lifecycle and milestones.
func (t *SlaTracking) Status() Status {
	switch t.State.(type) {
	case Resolved:
		return StatusResolved
	case Paused:
		return StatusPaused
	}
	if t.IsBreached() {
		return StatusBreached
	}
	if t.RespondedAt != nil {
		return StatusResponded
	}
	return StatusActive
}

// IsBreached reports whether any milestone carries a breach flag.
func (t *SlaTracking) IsBreached() bool {
	return (t.Response != nil && t.Response.BreachedAt != nil) ||
		(t.Resolution != nil && t.Resolution.BreachedAt != nil)
}

// IsPaused reports whether the clock is stopped.
func (t *SlaTracking) IsPaused() bool {
	_, ok := t.State.(Paused)
	return ok
}

// IsResolved reports whether the record is terminal.
func (t *SlaTracking) IsResolved() bool {
	_, ok := t.State.(Resolved)
	return ok
}

// ResolvedAt returns the resolution instant, if any.
func (t *SlaTracking) ResolvedAt() *time.Time {
	if r, ok := t.State.(Resolved); ok {
		at := r.At
		return &at
	}
	return nil
}

// PauseStartedAt returns the current pause start, if paused.
func (t *SlaTracking) PauseStartedAt() *time.Time {
	if p, ok := t.State.(Paused); ok {
		since := p.Since
		return &since
	}
	return nil
}

// Deadline returns the deadline for a milestone, nil when it has no target.
func (t *SlaTracking) Deadline(m Milestone) *Deadline {
	if m == MilestoneResponse {
		return t.Response
	}
	return t.Resolution
}

// MilestoneMet reports whether the milestone was recorded.
func (t *SlaTracking) MilestoneMet(m Milestone) bool {
	if m == MilestoneResponse {
		return t.RespondedAt != nil
	}
	return t.IsResolved()
}

// Pause stops the clock. Only valid while active.
func (t *SlaTracking) Pause(now time.Time, reason string) error {
	if _, ok := t.State.(Active); !ok {
		return apperrors.NewInvalidTransition("pause", string(t.Status()))
	}
	t.State = Paused{Since: now, Reason: reason}
	return nil
}

// BusinessClock measures and advances open time on a schedule.
type BusinessClock interface {
	AddBusinessDuration(start time.Time, d time.Duration) (time.Time, error)
	BusinessDurationBetween(a, b time.Time) time.Duration
}

// Resume restarts the clock and shifts both due dates forward by the pause.
// Business targets move by the open time the pause covered, so a pause never
// shortens them; wall-clock targets move by its wall length. clock may be nil
// when no target is measured in business units. It returns the wall length
// of the pause that ended.
func (t *SlaTracking) Resume(now time.Time, clock BusinessClock) (time.Duration, error) {
	paused, ok := t.State.(Paused)
	if !ok {
		return 0, apperrors.NewInvalidTransition("resume", string(t.Status()))
	}
	pausedFor := now.Sub(paused.Since)
	if pausedFor < 0 {
		pausedFor = 0
	}
	responseDue, err := t.Response.shifted(paused.Since, now, pausedFor, clock)
	if err != nil {
		return 0, err
	}
	resolutionDue, err := t.Resolution.shifted(paused.Since, now, pausedFor, clock)
	if err != nil {
		return 0, err
	}
	if t.Response != nil {
		t.Response.DueAt = responseDue
	}
	if t.Resolution != nil {
		t.Resolution.DueAt = resolutionDue
	}
	t.CumulativePaused += pausedFor
	t.State = Active{}
	return pausedFor, nil
}

func (d *Deadline) shifted(since, until time.Time, pausedFor time.Duration, clock BusinessClock) (time.Time, error) {
	if d == nil {
		return time.Time{}, nil
	}
	if d.Target.Unit.IsBusiness() && clock != nil {
		if !until.After(since) {
			return d.DueAt, nil
		}
		return clock.AddBusinessDuration(d.DueAt, clock.BusinessDurationBetween(since, until))
	}
	return d.DueAt.Add(pausedFor), nil
}

// RecordResponse stamps the response milestone. Resolution keeps running.
func (t *SlaTracking) RecordResponse(at time.Time) error {
	if t.IsResolved() {
		return apperrors.NewInvalidTransition("record response", string(t.Status()))
	}
	if t.RespondedAt != nil {
		return apperrors.NewInvalidTransition("record response", string(StatusResponded))
	}
	t.RespondedAt = &at
	return nil
}

// RecordResolution moves the record to its terminal state.
func (t *SlaTracking) RecordResolution(at time.Time) error {
	if t.IsResolved() {
		return apperrors.NewInvalidTransition("record resolution", string(StatusResolved))
	}
	t.State = Resolved{At: at}
	return nil
}

// RestoreState rebuilds the lifecycle from persisted columns. Rows that violate
// the paused/pause-start pairing are rejected.
func RestoreState(status Status, pauseStartedAt *time.Time, pauseReason string, resolvedAt *time.Time) (State, error) {
	switch status {
	case StatusPaused:
		if pauseStartedAt == nil {
			return nil, fmt.Errorf("paused tracking without pause start")
		}
		return Paused{Since: *pauseStartedAt, Reason: pauseReason}, nil
	case StatusResolved:
		if resolvedAt == nil {
			return nil, fmt.Errorf("resolved tracking without resolved_at")
		}
		return Resolved{At: *resolvedAt}, nil
	case StatusActive, StatusResponded, StatusBreached:
		if pauseStartedAt != nil {
			return nil, fmt.Errorf("%s tracking with pause start", status)
		}
		return Active{}, nil
	default:
		return nil, fmt.Errorf("unknown tracking status %q", status)
	}
}
