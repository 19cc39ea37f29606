package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/embedding"
	"github.com/knowledgehub/backend/internal/query"
	"github.com/knowledgehub/backend/internal/vector"
	"github.com/knowledgehub/backend/pkg/logger"
)

type QueryHandler struct {
	engine *query.Engine
}

func NewQueryHandler(engine *query.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query     string            `json:"query"`
		Limit     int               `json:"limit"`
		Threshold float64           `json:"threshold"`
		Filters   map[string]string `json:"filters"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if req.Limit < 0 || req.Threshold < 0 || req.Threshold > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Limit must be non-negative and threshold must be within [0, 1]",
		})
	}

	response, err := h.engine.Query(c.Context(), query.Request{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Filters:   req.Filters,
	})
	if err != nil {
		// Retrieval and embedding outages are dependency failures, not
		// client errors: surface them as service unavailability.
		var embErr *embedding.EmbeddingError
		var retErr *vector.RetrievalError
		if errors.As(err, &embErr) || errors.As(err, &retErr) {
			logger.Error("Query dependency unavailable", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "A required backend is temporarily unavailable",
			})
		}

		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(response)
}
