package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/pkg/logger"
)

type Config struct {
	MaxQueryLength      int
	MaxDocumentSize     int
	AllowedContentTypes []string
}

// Middleware rejects malformed bodies before they reach the handlers: query
// length, document size, and request content type are all enforced here so
// the handlers only ever see structurally valid input.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" && !typeAllowed(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/query") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			query, ok := req["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query is required and must be a string",
				})
			}

			if len(query) > cfg.MaxQueryLength {
				logger.Warn("Oversized query rejected",
					zap.String("ip", c.IP()),
					zap.Int("length", len(query)),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query exceeds maximum length",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/documents") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			title, ok := req["title"].(string)
			if !ok || strings.TrimSpace(title) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Title is required and must be a string",
				})
			}

			content, ok := req["content"].(string)
			if !ok || content == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Content is required and must be a string",
				})
			}
			if len(content) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document content exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}

func typeAllowed(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
