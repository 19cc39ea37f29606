package handlers

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/chunking"
	"github.com/knowledgehub/backend/internal/ingestion"
	"github.com/knowledgehub/backend/internal/storage/models"
	"github.com/knowledgehub/backend/internal/storage/sqlite"
	"github.com/knowledgehub/backend/pkg/logger"
)

type DocumentHandler struct {
	manager *ingestion.Manager
	store   *sqlite.Client
}

func NewDocumentHandler(manager *ingestion.Manager, store *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{manager: manager, store: store}
}

// UploadDocument accepts a document and returns a job handle immediately.
// Ingestion runs in the background; clients poll the job for progress.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		DocumentID  string            `json:"document_id"`
		Title       string            `json:"title"`
		Content     string            `json:"content"`
		ContentType string            `json:"content_type"`
		Metadata    map[string]string `json:"metadata"`
		Chunking    *struct {
			Strategy  string `json:"strategy"`
			ChunkSize int    `json:"chunk_size"`
			Overlap   int    `json:"overlap"`
		} `json:"chunking"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title and content are required",
		})
	}

	ingestReq := ingestion.Request{
		DocumentID:  req.DocumentID,
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		Metadata:    req.Metadata,
	}
	if req.Chunking != nil {
		ingestReq.Chunking = &chunking.Config{
			Strategy:  chunking.Strategy(req.Chunking.Strategy),
			ChunkSize: req.Chunking.ChunkSize,
			Overlap:   req.Chunking.Overlap,
		}
	}

	job, err := h.manager.Submit(ingestReq)
	if err != nil {
		if errors.Is(err, ingestion.ErrIngestInFlight) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Document is already being ingested",
			})
		}
		logger.Error("Failed to submit document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit document",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":      job.ID,
		"document_id": job.DocumentID,
		"stage":       job.Stage,
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.store.GetDocument(c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to load document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document",
		})
	}

	return c.JSON(fiber.Map{
		"id":              doc.ID,
		"title":           doc.Title,
		"content_type":    doc.ContentType,
		"metadata":        doc.Metadata,
		"embedding_model": doc.EmbeddingModel,
		"status":          doc.Status,
		"failure_reason":  doc.FailureReason,
		"created_at":      doc.CreatedAt,
		"updated_at":      doc.UpdatedAt,
	})
}

func (h *DocumentHandler) GetDocumentChunks(c *fiber.Ctx) error {
	id := c.Params("id")

	// An unknown document and an ingested-but-empty one must not look the
	// same, so existence is checked before the chunk read.
	if _, err := h.store.GetDocument(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to load document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chunks",
		})
	}

	chunks, err := h.store.GetChunks(id)
	if err != nil {
		logger.Error("Failed to load chunks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chunks",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": id,
		"count":       len(chunks),
		"chunks":      chunks,
	})
}

func (h *DocumentHandler) GetJobStatus(c *fiber.Ctx) error {
	job, err := h.manager.Status(c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		}
		logger.Error("Failed to load job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job",
		})
	}

	resp := fiber.Map{
		"job_id":      job.ID,
		"document_id": job.DocumentID,
		"stage":       job.Stage,
		"progress":    job.Progress,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
	}
	if job.Stage == models.JobStageCompleted {
		resp["chunk_count"] = job.ChunkCount
		resp["avg_coherence"] = job.AvgCoherence
	}
	if job.Stage == models.JobStageFailed {
		resp["error"] = job.Error
	}

	return c.JSON(resp)
}
