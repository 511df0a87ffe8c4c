package handlers

import (
	"github.com/gofiber/fiber/v3"

	businessflow "github.com/callwatch/presenced/business_flow"
)

// StatusHandler serves the component readiness summary
type StatusHandler struct {
	status *businessflow.StatusAggregator
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(status *businessflow.StatusAggregator) *StatusHandler {
	return &StatusHandler{status: status}
}

// GetStatus serves GET /status
func (h *StatusHandler) GetStatus(c fiber.Ctx) error {
	return c.JSON(h.status.Snapshot())
}
