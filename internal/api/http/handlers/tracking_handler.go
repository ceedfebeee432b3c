package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/service"
)

// TrackingHandler exposes the tracking lifecycle.
type TrackingHandler struct {
	tracker *service.Tracker
}

// NewTrackingHandler constructs handler.
func NewTrackingHandler(tracker *service.Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: tracker}
}

// Start POST /v1/trackings.
func (h *TrackingHandler) Start(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.StartTrackingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tracking, err := h.tracker.Start(c.UserContext(), service.StartInput{
		OrgID:           p.OrgID,
		Domain:          req.Domain,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		ConfigurationID: req.ConfigurationID,
		Attributes:      req.Attributes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": trackingResponse(tracking)})
}

// Get GET /v1/trackings/:id.
func (h *TrackingHandler) Get(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	view, err := h.tracker.GetStatus(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statusResponse(view)})
}

// Events GET /v1/trackings/:id/events.
func (h *TrackingHandler) Events(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	evs, err := h.tracker.Events(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eventResponses(evs)})
}

// Pause POST /v1/trackings/:id/pause.
func (h *TrackingHandler) Pause(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.PauseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tracking, err := h.tracker.Pause(c.UserContext(), p.OrgID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trackingResponse(tracking)})
}

// Resume POST /v1/trackings/:id/resume.
func (h *TrackingHandler) Resume(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	tracking, err := h.tracker.Resume(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trackingResponse(tracking)})
}

// Response POST /v1/trackings/:id/response.
func (h *TrackingHandler) Response(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.MilestoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tracking, err := h.tracker.RecordResponse(c.UserContext(), p.OrgID, c.Params("id"), req.At)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trackingResponse(tracking)})
}

// Resolution POST /v1/trackings/:id/resolution.
func (h *TrackingHandler) Resolution(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.MilestoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tracking, err := h.tracker.RecordResolution(c.UserContext(), p.OrgID, c.Params("id"), req.At)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trackingResponse(tracking)})
}

// Evaluate POST /v1/trackings/:id/evaluate.
func (h *TrackingHandler) Evaluate(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	res, err := h.tracker.Evaluate(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EvaluationResponse{
		Tracking:  trackingResponse(res.Tracking),
		Breached:  res.Breached,
		Warned:    res.Warned,
		Escalated: res.Escalated,
	}})
}
