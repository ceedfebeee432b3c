package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// ConfigHandler manages schedules, holidays and SLA configurations.
type ConfigHandler struct {
	service *service.ConfigService
}

// NewConfigHandler constructs handler.
func NewConfigHandler(configService *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{service: configService}
}

// CreateSchedule POST /v1/schedules.
func (h *ConfigHandler) CreateSchedule(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ScheduleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	schedule, err := h.service.CreateSchedule(c.UserContext(), p.OrgID, scheduleFromRequest(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": scheduleResponse(schedule)})
}

// UpdateSchedule PUT /v1/schedules/:id.
func (h *ConfigHandler) UpdateSchedule(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ScheduleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	schedule := scheduleFromRequest(req)
	schedule.ID = c.Params("id")
	updated, err := h.service.UpdateSchedule(c.UserContext(), p.OrgID, schedule)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": scheduleResponse(updated)})
}

// GetSchedule GET /v1/schedules/:id.
func (h *ConfigHandler) GetSchedule(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	schedule, err := h.service.GetSchedule(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": scheduleResponse(schedule)})
}

// ListSchedules GET /v1/schedules.
func (h *ConfigHandler) ListSchedules(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	schedules, err := h.service.ListSchedules(c.UserContext(), p.OrgID)
	if err != nil {
		return err
	}
	items := make([]dto.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		items = append(items, scheduleResponse(&schedules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddHoliday POST /v1/schedules/:id/holidays.
func (h *ConfigHandler) AddHoliday(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.HolidayRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	holiday, err := h.service.AddHoliday(c.UserContext(), p.OrgID, c.Params("id"), &domain.Holiday{
		Name:        req.Name,
		Date:        req.Date,
		IsRecurring: req.IsRecurring,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": holidayResponse(holiday)})
}

// ListHolidays GET /v1/schedules/:id/holidays.
func (h *ConfigHandler) ListHolidays(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	holidays, err := h.service.ListHolidays(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.HolidayResponse, 0, len(holidays))
	for i := range holidays {
		items = append(items, holidayResponse(&holidays[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeleteHoliday DELETE /v1/schedules/:id/holidays/:holidayId.
func (h *ConfigHandler) DeleteHoliday(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteHoliday(c.UserContext(), p.OrgID, c.Params("id"), c.Params("holidayId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// CreateConfiguration POST /v1/configurations.
func (h *ConfigHandler) CreateConfiguration(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ConfigurationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cfg, err := h.service.CreateConfiguration(c.UserContext(), p.OrgID, configurationFromRequest(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": configurationResponse(cfg)})
}

// UpdateConfiguration PUT /v1/configurations/:id.
func (h *ConfigHandler) UpdateConfiguration(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ConfigurationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cfg := configurationFromRequest(req)
	cfg.ID = c.Params("id")
	updated, err := h.service.UpdateConfiguration(c.UserContext(), p.OrgID, cfg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": configurationResponse(updated)})
}

// GetConfiguration GET /v1/configurations/:id.
func (h *ConfigHandler) GetConfiguration(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cfg, err := h.service.GetConfiguration(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": configurationResponse(cfg)})
}

// ListConfigurations GET /v1/configurations?domain=&active=.
func (h *ConfigHandler) ListConfigurations(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var d *domain.Domain
	if raw := c.Query("domain"); raw != "" {
		parsed := domain.Domain(raw)
		if !parsed.Valid() {
			return apperrors.NewValidationError("invalid domain", map[string]any{"domain": raw})
		}
		d = &parsed
	}
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	configs, err := h.service.ListConfigurations(c.UserContext(), p.OrgID, d, activeOnly)
	if err != nil {
		return err
	}
	items := make([]dto.ConfigurationResponse, 0, len(configs))
	for i := range configs {
		items = append(items, configurationResponse(&configs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func scheduleFromRequest(req dto.ScheduleRequest) *domain.BusinessHoursSchedule {
	return &domain.BusinessHoursSchedule{
		Name:      req.Name,
		Timezone:  req.Timezone,
		Weekly:    req.Weekly,
		IsDefault: req.IsDefault,
		Version:   req.Version,
	}
}

func configurationFromRequest(req dto.ConfigurationRequest) *domain.SlaConfiguration {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &domain.SlaConfiguration{
		Domain:                  req.Domain,
		Name:                    req.Name,
		ResponseTarget:          req.ResponseTarget,
		ResolutionTarget:        req.ResolutionTarget,
		AtRiskThresholdPercent:  req.AtRiskThresholdPercent,
		EscalateOnBreach:        req.EscalateOnBreach,
		EscalateToUser:          req.EscalateToUser,
		BusinessHoursScheduleID: req.BusinessHoursScheduleID,
		IsDefault:               req.IsDefault,
		PriorityOrder:           req.PriorityOrder,
		IsActive:                active,
		Conditions:              req.Conditions,
		Version:                 req.Version,
	}
}
