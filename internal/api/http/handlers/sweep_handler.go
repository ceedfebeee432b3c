package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// SweepHandler triggers sweeps on demand.
type SweepHandler struct {
	sweeper *service.Sweeper
}

// NewSweepHandler constructs handler.
func NewSweepHandler(sweeper *service.Sweeper) *SweepHandler {
	return &SweepHandler{sweeper: sweeper}
}

// Run POST /v1/sweeps. Sweeps cover every organization.
func (h *SweepHandler) Run(c *fiber.Ctx) error {
	var req dto.SweepRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Domain != nil && !req.Domain.Valid() {
		return apperrors.NewValidationError("invalid domain", map[string]any{"domain": string(*req.Domain)})
	}
	result, err := h.sweeper.Run(c.UserContext(), service.SweepRequest{Domain: req.Domain})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
