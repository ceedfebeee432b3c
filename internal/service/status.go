package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/calendar"
	"github.com/spec-kit/sla-service/internal/deadline"
	"github.com/spec-kit/sla-service/internal/domain"
)

// MilestoneView is the derived read-side state of one milestone.
type MilestoneView struct {
	Milestone  domain.Milestone
	Target     domain.Target
	DueAt      time.Time
	Met        bool
	MetAt      *time.Time
	BreachedAt *time.Time
	AtRisk     bool
	// Remaining is measured on the target's clock and is negative once overdue.
	Remaining       time.Duration
	Elapsed         time.Duration
	PercentComplete float64
}

// StatusView is a tracking record plus values derived at EvaluatedAt.
type StatusView struct {
	Tracking    *domain.SlaTracking
	Status      domain.Status
	IsPaused    bool
	IsBreached  bool
	Response    *MilestoneView
	Resolution  *MilestoneView
	EvaluatedAt time.Time
}

// GetStatus returns the record with time remaining and percent complete per
// milestone. A running record is evaluated first, exactly as a sweep would.
func (t *Tracker) GetStatus(ctx context.Context, orgID, id string) (*StatusView, error) {
	tracking, err := t.store.Repositories().Trackings.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, trackingError(err, id)
	}
	cal, err := t.calendarFor(tracking.Policy.Calendar)
	if err != nil {
		return nil, err
	}

	now := t.now()
	if _, running := tracking.State.(domain.Active); running {
		milestones := []domain.Milestone{domain.MilestoneResponse, domain.MilestoneResolution}
		if pending := evaluate(now, now, tracking, cal, milestones, true); pending.dirty || t.hasUnrecorded(ctx, orgID, id, pending.events) {
			result, err := t.Evaluate(ctx, orgID, id)
			if err != nil {
				return nil, err
			}
			if result.Breached+result.Warned > 0 {
				t.logger.Debug("status read evaluated tracking",
					zap.String("tracking_id", id),
					zap.Int("breached", result.Breached),
					zap.Int("warned", result.Warned))
			}
			tracking = result.Tracking
			now = t.now()
		}
	}
	return BuildStatusView(tracking, cal, now), nil
}

// hasUnrecorded reports whether any proposed event is missing from the log.
// Warnings already logged for the current due date keep reads read-only.
func (t *Tracker) hasUnrecorded(ctx context.Context, orgID, id string, proposed []domain.SlaEvent) bool {
	if len(proposed) == 0 {
		return false
	}
	logged, err := t.store.Repositories().Events.ListByTracking(ctx, orgID, id)
	if err != nil {
		return true
	}
	keys := make(map[string]struct{}, len(logged))
	for _, ev := range logged {
		if ev.DedupKey != nil {
			keys[*ev.DedupKey] = struct{}{}
		}
	}
	for _, ev := range proposed {
		if ev.DedupKey == nil {
			return true
		}
		if _, ok := keys[*ev.DedupKey]; !ok {
			return true
		}
	}
	return false
}

// BuildStatusView derives the read-side view at now. Values are frozen at the
// pause start while paused and at the milestone instant once it is met.
func BuildStatusView(tr *domain.SlaTracking, cal calendar.Calendar, now time.Time) *StatusView {
	view := &StatusView{
		Tracking:    tr,
		Status:      tr.Status(),
		IsPaused:    tr.IsPaused(),
		IsBreached:  tr.IsBreached(),
		EvaluatedAt: now,
	}

	evalAt := now
	if since := tr.PauseStartedAt(); since != nil && since.Before(evalAt) {
		evalAt = *since
	}
	if resolved := tr.ResolvedAt(); resolved != nil && resolved.Before(evalAt) {
		evalAt = *resolved
	}

	view.Response = milestoneView(tr, domain.MilestoneResponse, tr.RespondedAt, cal, evalAt)
	view.Resolution = milestoneView(tr, domain.MilestoneResolution, tr.ResolvedAt(), cal, evalAt)
	return view
}

func milestoneView(tr *domain.SlaTracking, m domain.Milestone, metAt *time.Time, cal calendar.Calendar, evalAt time.Time) *MilestoneView {
	d := tr.Deadline(m)
	if d == nil {
		return nil
	}
	at := evalAt
	if metAt != nil && metAt.Before(at) {
		at = *metAt
	}
	remaining := deadline.Remaining(at, d.DueAt, d.Target.Unit, cal)
	elapsed := d.TargetDuration - remaining

	view := &MilestoneView{
		Milestone:  m,
		Target:     d.Target,
		DueAt:      d.DueAt,
		Met:        metAt != nil,
		MetAt:      metAt,
		BreachedAt: d.BreachedAt,
		Remaining:  remaining,
		Elapsed:    elapsed,
	}
	if d.TargetDuration > 0 {
		view.PercentComplete = float64(elapsed) / float64(d.TargetDuration) * 100
	}
	threshold := d.TargetDuration * time.Duration(tr.Policy.AtRiskThresholdPercent) / 100
	view.AtRisk = !view.Met && d.BreachedAt == nil && remaining > 0 && remaining <= threshold
	return view
}
