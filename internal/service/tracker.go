package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/calendar"
	"github.com/spec-kit/sla-service/internal/deadline"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// DefaultMaxConflictRetries applies when TrackerDependencies leaves it unset.
const DefaultMaxConflictRetries = 3

// CalendarSource returns the calendar snapshot of a schedule.
type CalendarSource interface {
	Calendar(ctx context.Context, orgID, scheduleID string) (*domain.CalendarSnapshot, error)
}

// TrackerDependencies bundles collaborators for the tracker.
type TrackerDependencies struct {
	Store              repository.Store
	Resolver           *Resolver
	Calendars          CalendarSource
	Dispatcher         events.Dispatcher
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	Clock              func() time.Time
	MaxConflictRetries int
}

// Tracker owns the SLA tracking state machine. Every operation runs in one
// store transaction so a state change and its events commit together.
type Tracker struct {
	store      repository.Store
	resolver   *Resolver
	calendars  CalendarSource
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
	maxRetries int

	compiledMu sync.Mutex
	compiled   map[string]*calendar.BusinessHours
}

// NewTracker constructs the tracker.
func NewTracker(deps TrackerDependencies) *Tracker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	retries := deps.MaxConflictRetries
	if retries <= 0 {
		retries = DefaultMaxConflictRetries
	}
	return &Tracker{
		store:      deps.Store,
		resolver:   deps.Resolver,
		calendars:  deps.Calendars,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
		maxRetries: retries,
		compiled:   make(map[string]*calendar.BusinessHours),
	}
}

// StartInput describes a new tracking request.
type StartInput struct {
	OrgID           string
	Domain          domain.Domain
	EntityType      string
	EntityID        string
	ConfigurationID *string
	Attributes      map[string]string
}

func (in StartInput) validate() error {
	details := map[string]any{}
	if strings.TrimSpace(in.OrgID) == "" {
		details["org_id"] = "required"
	}
	if !in.Domain.Valid() {
		details["domain"] = "must be one of support, warranty, jobs"
	}
	if strings.TrimSpace(in.EntityType) == "" {
		details["entity_type"] = "required"
	}
	if strings.TrimSpace(in.EntityID) == "" {
		details["entity_id"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid tracking request", details)
	}
	return nil
}

// Start resolves the configuration for the entity, computes its due dates and
// persists a new active tracking record.
func (t *Tracker) Start(ctx context.Context, in StartInput) (*domain.SlaTracking, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	cfg, err := t.resolver.Resolve(ctx, in.OrgID, in.Domain, Entity{ConfigurationID: in.ConfigurationID, Attributes: in.Attributes})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var snapshot *domain.CalendarSnapshot
	if cfg.BusinessHoursScheduleID != nil {
		if snapshot, err = t.calendars.Calendar(ctx, in.OrgID, *cfg.BusinessHoursScheduleID); err != nil {
			return nil, err
		}
	}
	cal, err := t.calendarFor(snapshot)
	if err != nil {
		return nil, err
	}

	now := t.now()
	tracking := &domain.SlaTracking{
		OrgID:           in.OrgID,
		Domain:          in.Domain,
		EntityType:      in.EntityType,
		EntityID:        in.EntityID,
		ConfigurationID: cfg.ID,
		State:           domain.Active{},
		StartedAt:       now,
		Policy: domain.Policy{
			ConfigurationVersion:   cfg.Version,
			ConfigurationName:      cfg.Name,
			AtRiskThresholdPercent: cfg.AtRiskThresholdPercent,
			EscalateOnBreach:       cfg.EscalateOnBreach,
			EscalateToUser:         cfg.EscalateToUser,
			Calendar:               snapshot,
		},
	}
	if cfg.ResponseTarget != nil {
		if tracking.Response, err = newDeadline(now, *cfg.ResponseTarget, cal); err != nil {
			return nil, err
		}
	}
	if cfg.ResolutionTarget != nil {
		if tracking.Resolution, err = newDeadline(now, *cfg.ResolutionTarget, cal); err != nil {
			return nil, err
		}
	}

	var appended []domain.SlaEvent
	err = t.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		existing, err := repos.Trackings.FindOpenByEntity(ctx, in.OrgID, in.Domain, in.EntityType, in.EntityID)
		if err == nil {
			return alreadyTracked(existing.ID)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := repos.Trackings.Create(ctx, tracking); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return alreadyTracked("")
			}
			return err
		}
		payload := map[string]any{
			"configuration_id":      cfg.ID,
			"configuration_version": cfg.Version,
		}
		addDue(payload, "response_due_at", tracking.Response)
		addDue(payload, "resolution_due_at", tracking.Resolution)
		appended, err = t.appendEvents(ctx, repos, []domain.SlaEvent{newEvent(tracking, domain.EventStarted, now, payload, nil)})
		return err
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("sla tracking started",
		zap.String("org_id", tracking.OrgID),
		zap.String("tracking_id", tracking.ID),
		zap.String("configuration_id", cfg.ID),
		zap.String("entity", tracking.EntityType+"/"+tracking.EntityID))
	t.publish(ctx, tracking, appended)
	return tracking, nil
}

// Pause stops the clock of an active record.
func (t *Tracker) Pause(ctx context.Context, orgID, id, reason string) (*domain.SlaTracking, error) {
	tracking, _, err := t.mutate(ctx, orgID, id, func(now time.Time, tr *domain.SlaTracking, _ calendar.Calendar) (*change, error) {
		if err := tr.Pause(now, reason); err != nil {
			return nil, err
		}
		payload := map[string]any{}
		if reason != "" {
			payload["reason"] = reason
		}
		return &change{dirty: true, events: []domain.SlaEvent{newEvent(tr, domain.EventPaused, now, payload, nil)}}, nil
	})
	return tracking, err
}

// Resume restarts the clock and moves both due dates forward by the pause,
// measured in open time for business targets.
func (t *Tracker) Resume(ctx context.Context, orgID, id string) (*domain.SlaTracking, error) {
	tracking, _, err := t.mutate(ctx, orgID, id, func(now time.Time, tr *domain.SlaTracking, cal calendar.Calendar) (*change, error) {
		payload := map[string]any{}
		addDue(payload, "old_response_due_at", tr.Response)
		addDue(payload, "old_resolution_due_at", tr.Resolution)
		pausedFor, err := tr.Resume(now, cal)
		if err != nil {
			return nil, err
		}
		payload["paused_seconds"] = pausedFor.Seconds()
		addDue(payload, "new_response_due_at", tr.Response)
		addDue(payload, "new_resolution_due_at", tr.Resolution)
		return &change{dirty: true, events: []domain.SlaEvent{newEvent(tr, domain.EventResumed, now, payload, nil)}}, nil
	})
	return tracking, err
}

// RecordResponse stamps the response milestone at at, or now when at is nil.
// A response recorded after its due date first records the breach.
func (t *Tracker) RecordResponse(ctx context.Context, orgID, id string, at *time.Time) (*domain.SlaTracking, error) {
	tracking, _, err := t.mutate(ctx, orgID, id, func(now time.Time, tr *domain.SlaTracking, cal calendar.Calendar) (*change, error) {
		when, err := milestoneInstant(tr, at, now)
		if err != nil {
			return nil, err
		}
		if tr.IsResolved() || tr.RespondedAt != nil {
			return nil, tr.RecordResponse(when)
		}
		ch := &change{}
		if _, running := tr.State.(domain.Active); running {
			ch = evaluate(now, when, tr, cal, []domain.Milestone{domain.MilestoneResponse}, false)
		}
		if err := tr.RecordResponse(when); err != nil {
			return nil, err
		}
		payload := map[string]any{"responded_at": when.UTC().Format(time.RFC3339Nano)}
		if tr.Response != nil {
			addDue(payload, "response_due_at", tr.Response)
			payload["within_target"] = !when.After(tr.Response.DueAt)
		}
		ch.dirty = true
		ch.events = append(ch.events, newEvent(tr, domain.EventResponded, now, payload, nil))
		return ch, nil
	})
	return tracking, err
}

// RecordResolution closes the record at at, or now when at is nil.
func (t *Tracker) RecordResolution(ctx context.Context, orgID, id string, at *time.Time) (*domain.SlaTracking, error) {
	tracking, _, err := t.mutate(ctx, orgID, id, func(now time.Time, tr *domain.SlaTracking, cal calendar.Calendar) (*change, error) {
		when, err := milestoneInstant(tr, at, now)
		if err != nil {
			return nil, err
		}
		if tr.IsResolved() {
			return nil, tr.RecordResolution(when)
		}
		ch := &change{}
		if _, running := tr.State.(domain.Active); running {
			ch = evaluate(now, when, tr, cal, []domain.Milestone{domain.MilestoneResponse, domain.MilestoneResolution}, false)
		}
		if err := tr.RecordResolution(when); err != nil {
			return nil, err
		}
		payload := map[string]any{"resolved_at": when.UTC().Format(time.RFC3339Nano)}
		if tr.Resolution != nil {
			addDue(payload, "resolution_due_at", tr.Resolution)
			payload["within_target"] = !when.After(tr.Resolution.DueAt)
		}
		ch.dirty = true
		ch.events = append(ch.events, newEvent(tr, domain.EventResolved, now, payload, nil))
		return ch, nil
	})
	return tracking, err
}

// EvaluationResult reports what one evaluation appended.
type EvaluationResult struct {
	Tracking  *domain.SlaTracking
	Breached  int
	Warned    int
	Escalated int
}

// Evaluate checks a running record for breaches and at-risk warnings. Paused
// and resolved records are left untouched. Breach flags are set under the
// record lock and every event carries a dedup key, so concurrent or repeated
// evaluations append each event at most once per due date.
func (t *Tracker) Evaluate(ctx context.Context, orgID, id string) (*EvaluationResult, error) {
	tracking, appended, err := t.mutate(ctx, orgID, id, func(now time.Time, tr *domain.SlaTracking, cal calendar.Calendar) (*change, error) {
		if _, running := tr.State.(domain.Active); !running {
			return &change{}, nil
		}
		return evaluate(now, now, tr, cal, []domain.Milestone{domain.MilestoneResponse, domain.MilestoneResolution}, true), nil
	})
	if err != nil {
		return nil, err
	}
	result := &EvaluationResult{Tracking: tracking}
	for _, ev := range appended {
		switch ev.Type {
		case domain.EventResponseBreached, domain.EventResolutionBreached:
			result.Breached++
		case domain.EventResponseDueWarning, domain.EventResolutionDueWarning:
			result.Warned++
		case domain.EventEscalated:
			result.Escalated++
		}
	}
	return result, nil
}

// Events returns the event log of a tracking record.
func (t *Tracker) Events(ctx context.Context, orgID, id string) ([]domain.SlaEvent, error) {
	repos := t.store.Repositories()
	if _, err := repos.Trackings.GetByID(ctx, orgID, id); err != nil {
		return nil, trackingError(err, id)
	}
	return repos.Events.ListByTracking(ctx, orgID, id)
}

// change is the outcome of applying an operation to a locked record.
type change struct {
	dirty  bool
	events []domain.SlaEvent
}

type mutation func(now time.Time, tr *domain.SlaTracking, cal calendar.Calendar) (*change, error)

// mutate runs fn against the locked record and commits the result, retrying
// when another writer committed first.
func (t *Tracker) mutate(ctx context.Context, orgID, id string, fn mutation) (*domain.SlaTracking, []domain.SlaEvent, error) {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		var (
			result   *domain.SlaTracking
			appended []domain.SlaEvent
		)
		err := t.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			tr, err := repos.Trackings.GetForUpdate(ctx, orgID, id)
			if err != nil {
				return err
			}
			cal, err := t.calendarFor(tr.Policy.Calendar)
			if err != nil {
				return err
			}
			ch, err := fn(t.now(), tr, cal)
			if err != nil {
				return err
			}
			if ch.dirty {
				if err := repos.Trackings.Update(ctx, tr); err != nil {
					return err
				}
			}
			appended, err = t.appendEvents(ctx, repos, ch.events)
			result = tr
			return err
		})
		if err == nil {
			t.publish(ctx, result, appended)
			return result, appended, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, nil, trackingError(err, id)
		}
		lastErr = err
		t.logger.Debug("tracking update conflicted; retrying",
			zap.String("tracking_id", id), zap.Int("attempt", attempt+1))
	}
	return nil, nil, apperrors.NewConcurrentModification("sla tracking", lastErr)
}

func (t *Tracker) appendEvents(ctx context.Context, repos repository.Repositories, evs []domain.SlaEvent) ([]domain.SlaEvent, error) {
	appended := make([]domain.SlaEvent, 0, len(evs))
	for i := range evs {
		ev := evs[i]
		if ev.TrackingID == "" {
			return nil, fmt.Errorf("event %s without tracking id", ev.Type)
		}
		inserted, err := repos.Events.Append(ctx, &ev)
		if err != nil {
			return nil, err
		}
		if inserted {
			appended = append(appended, ev)
		}
	}
	return appended, nil
}

// publish hands committed events to subscribers. Handler failures are logged
// by the dispatcher and never undo the commit.
func (t *Tracker) publish(ctx context.Context, tracking *domain.SlaTracking, appended []domain.SlaEvent) {
	for _, ev := range appended {
		t.metrics.RecordTransition(string(ev.Type))
		if t.dispatcher != nil {
			_ = t.dispatcher.Publish(ctx, events.FromSlaEvent(ev, tracking))
		}
	}
}

// calendarFor compiles a snapshot, reusing compiled calendars per schedule
// version. A nil snapshot yields a nil calendar.
func (t *Tracker) calendarFor(snapshot *domain.CalendarSnapshot) (calendar.Calendar, error) {
	if snapshot == nil {
		return nil, nil
	}
	key := fmt.Sprintf("%s@%d", snapshot.ScheduleID, snapshot.ScheduleVersion)
	t.compiledMu.Lock()
	defer t.compiledMu.Unlock()
	if cal, ok := t.compiled[key]; ok {
		return cal, nil
	}
	cal, err := calendar.New(snapshot)
	if err != nil {
		return nil, err
	}
	t.compiled[key] = cal
	return cal, nil
}

// evaluate applies breach and, when warn is set, at-risk detection at the
// instant at for the listed milestones that are still open.
func evaluate(now, at time.Time, tr *domain.SlaTracking, cal calendar.Calendar, milestones []domain.Milestone, warn bool) *change {
	ch := &change{}
	for _, m := range milestones {
		d := tr.Deadline(m)
		if d == nil || tr.MilestoneMet(m) {
			continue
		}
		if !at.Before(d.DueAt) {
			if d.BreachedAt != nil {
				continue
			}
			breachedAt := at
			d.BreachedAt = &breachedAt
			ch.dirty = true
			breach := domain.BreachEvent(m)
			payload := map[string]any{"milestone": string(m), "breached_at": at.UTC().Format(time.RFC3339Nano)}
			addDue(payload, "due_at", d)
			ch.events = append(ch.events, newEvent(tr, breach, now, payload, dedupKey(repository.DedupKey(breach, d.DueAt))))
			if tr.Policy.EscalateOnBreach {
				escalation := map[string]any{"milestone": string(m)}
				if tr.Policy.EscalateToUser != nil {
					escalation["escalate_to_user"] = *tr.Policy.EscalateToUser
				}
				addDue(escalation, "due_at", d)
				key := repository.DedupKey(domain.EventEscalated, d.DueAt) + ":" + string(m)
				ch.events = append(ch.events, newEvent(tr, domain.EventEscalated, now, escalation, dedupKey(key)))
			}
			continue
		}
		if !warn || d.BreachedAt != nil || d.TargetDuration <= 0 {
			continue
		}
		remaining := deadline.Remaining(at, d.DueAt, d.Target.Unit, cal)
		threshold := d.TargetDuration * time.Duration(tr.Policy.AtRiskThresholdPercent) / 100
		if remaining > 0 && remaining <= threshold {
			warning := domain.WarningEvent(m)
			payload := map[string]any{
				"milestone":         string(m),
				"remaining_seconds": remaining.Seconds(),
				"threshold_percent": tr.Policy.AtRiskThresholdPercent,
			}
			addDue(payload, "due_at", d)
			ch.events = append(ch.events, newEvent(tr, warning, now, payload, dedupKey(repository.DedupKey(warning, d.DueAt))))
		}
	}
	return ch
}

func newDeadline(start time.Time, target domain.Target, cal calendar.Calendar) (*domain.Deadline, error) {
	due, err := deadline.ComputeDueAt(start, target, cal)
	if err != nil {
		return nil, err
	}
	return &domain.Deadline{
		Target:         target,
		DueAt:          due,
		TargetDuration: deadline.TargetDuration(start, due, target, cal),
	}, nil
}

func newEvent(tr *domain.SlaTracking, eventType domain.EventType, at time.Time, payload map[string]any, key *string) domain.SlaEvent {
	return domain.SlaEvent{
		OrgID:      tr.OrgID,
		TrackingID: tr.ID,
		Type:       eventType,
		OccurredAt: at,
		DedupKey:   key,
		Payload:    payload,
	}
}

func milestoneInstant(tr *domain.SlaTracking, at *time.Time, now time.Time) (time.Time, error) {
	if at == nil {
		return now, nil
	}
	if at.Before(tr.StartedAt) {
		return time.Time{}, apperrors.NewValidationError("milestone cannot precede tracking start",
			map[string]any{"at": at.UTC().Format(time.RFC3339), "started_at": tr.StartedAt.UTC().Format(time.RFC3339)})
	}
	if at.After(now) {
		return time.Time{}, apperrors.NewValidationError("milestone cannot be in the future",
			map[string]any{"at": at.UTC().Format(time.RFC3339), "now": now.UTC().Format(time.RFC3339)})
	}
	return *at, nil
}

func addDue(payload map[string]any, key string, d *domain.Deadline) {
	if d != nil {
		payload[key] = d.DueAt.UTC().Format(time.RFC3339Nano)
	}
}

func dedupKey(key string) *string {
	return &key
}

func alreadyTracked(existingID string) error {
	details := map[string]any{}
	if existingID != "" {
		details["tracking_id"] = existingID
	}
	return apperrors.NewConflict("entity already has an open sla tracking", details)
}

func trackingError(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("sla tracking", map[string]any{"id": id})
	}
	return err
}
