package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// principal returns the caller; every record is scoped to its organization.
func principal(c *fiber.Ctx) (*auth.Principal, error) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok || p.OrgID == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	return nil
}

func trackingResponse(tr *domain.SlaTracking) dto.TrackingResponse {
	out := dto.TrackingResponse{
		ID:                      tr.ID,
		Domain:                  tr.Domain,
		EntityType:              tr.EntityType,
		EntityID:                tr.EntityID,
		ConfigurationID:         tr.ConfigurationID,
		ConfigurationVersion:    tr.Policy.ConfigurationVersion,
		Status:                  tr.Status(),
		StartedAt:               tr.StartedAt,
		Response:                deadlineResponse(tr.Response),
		Resolution:              deadlineResponse(tr.Resolution),
		RespondedAt:             tr.RespondedAt,
		ResolvedAt:              tr.ResolvedAt(),
		PauseStartedAt:          tr.PauseStartedAt(),
		CumulativePausedSeconds: tr.CumulativePaused.Seconds(),
		IsBreached:              tr.IsBreached(),
		Version:                 tr.Version,
		UpdatedAt:               tr.UpdatedAt,
	}
	if p, ok := tr.State.(domain.Paused); ok && p.Reason != "" {
		reason := p.Reason
		out.PauseReason = &reason
	}
	if tr.Policy.Calendar != nil {
		id := tr.Policy.Calendar.ScheduleID
		out.BusinessHoursScheduleID = &id
	}
	return out
}

func deadlineResponse(d *domain.Deadline) *dto.DeadlineResponse {
	if d == nil {
		return nil
	}
	return &dto.DeadlineResponse{Target: d.Target, DueAt: d.DueAt, BreachedAt: d.BreachedAt}
}

func statusResponse(view *service.StatusView) dto.StatusResponse {
	return dto.StatusResponse{
		Tracking:    trackingResponse(view.Tracking),
		Response:    milestoneResponse(view.Response),
		Resolution:  milestoneResponse(view.Resolution),
		EvaluatedAt: view.EvaluatedAt,
	}
}

func milestoneResponse(m *service.MilestoneView) *dto.MilestoneStatusResponse {
	if m == nil {
		return nil
	}
	return &dto.MilestoneStatusResponse{
		Target:           m.Target,
		DueAt:            m.DueAt,
		Met:              m.Met,
		MetAt:            m.MetAt,
		BreachedAt:       m.BreachedAt,
		AtRisk:           m.AtRisk,
		RemainingSeconds: m.Remaining.Seconds(),
		ElapsedSeconds:   m.Elapsed.Seconds(),
		PercentComplete:  m.PercentComplete,
	}
}

func eventResponses(evs []domain.SlaEvent) []dto.EventResponse {
	out := make([]dto.EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, dto.EventResponse{ID: ev.ID, Type: ev.Type, OccurredAt: ev.OccurredAt, Payload: ev.Payload})
	}
	return out
}

func scheduleResponse(s *domain.BusinessHoursSchedule) dto.ScheduleResponse {
	return dto.ScheduleResponse{
		ID:        s.ID,
		Name:      s.Name,
		Timezone:  s.Timezone,
		Weekly:    s.Weekly,
		IsDefault: s.IsDefault,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func holidayResponse(h *domain.Holiday) dto.HolidayResponse {
	return dto.HolidayResponse{
		ID:          h.ID,
		ScheduleID:  h.ScheduleID,
		Name:        h.Name,
		Date:        h.Date,
		IsRecurring: h.IsRecurring,
		Description: h.Description,
	}
}

func configurationResponse(cfg *domain.SlaConfiguration) dto.ConfigurationResponse {
	return dto.ConfigurationResponse{
		ID:                      cfg.ID,
		Domain:                  cfg.Domain,
		Name:                    cfg.Name,
		ResponseTarget:          cfg.ResponseTarget,
		ResolutionTarget:        cfg.ResolutionTarget,
		AtRiskThresholdPercent:  cfg.AtRiskThresholdPercent,
		EscalateOnBreach:        cfg.EscalateOnBreach,
		EscalateToUser:          cfg.EscalateToUser,
		BusinessHoursScheduleID: cfg.BusinessHoursScheduleID,
		IsDefault:               cfg.IsDefault,
		PriorityOrder:           cfg.PriorityOrder,
		IsActive:                cfg.IsActive,
		Conditions:              cfg.Conditions,
		Version:                 cfg.Version,
		CreatedAt:               cfg.CreatedAt,
		UpdatedAt:               cfg.UpdatedAt,
	}
}
