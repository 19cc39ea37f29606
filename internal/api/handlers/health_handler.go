package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/knowledgehub/backend/internal/health"
	"github.com/knowledgehub/backend/internal/metrics"
)

type HealthHandler struct {
	checker *health.Checker
}

func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HandleHealth reports per-dependency status. A degraded service still
// answers with the full breakdown so operators can see exactly what is down.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	status := h.checker.Check(c.Context())

	code := fiber.StatusOK
	if status.Degraded {
		code = fiber.StatusServiceUnavailable
		metrics.DegradedResponses.Inc()
	}

	return c.Status(code).JSON(status)
}
