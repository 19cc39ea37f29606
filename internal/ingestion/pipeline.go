package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/chunking"
	"github.com/knowledgehub/backend/internal/embedding"
	"github.com/knowledgehub/backend/internal/metrics"
	"github.com/knowledgehub/backend/internal/storage/models"
	"github.com/knowledgehub/backend/internal/vector"
	"github.com/knowledgehub/backend/pkg/logger"
	"github.com/knowledgehub/backend/pkg/utils"
)

// Store is the durable side of the persistence checkpoint.
type Store interface {
	UpsertDocument(doc *models.Document) error
	SetDocumentStatus(id, status, failureReason string) error
	ReplaceChunks(documentID string, chunks []models.Chunk) error
}

// Request is one document submission.
type Request struct {
	// DocumentID is optional; when empty a stable id is derived from the
	// title, so re-submitting the same document replaces its chunks.
	DocumentID  string
	Title       string
	Content     string
	ContentType string
	Metadata    map[string]string
	// Chunking overrides the pipeline default when non-nil.
	Chunking *chunking.Config
}

func (r Request) ResolveID() string {
	if r.DocumentID != "" {
		return r.DocumentID
	}
	return utils.HashString(r.Title)
}

type Result struct {
	DocumentID   string
	ChunkCount   int
	AvgCoherence float64
}

// ProgressFunc is invoked at each pipeline checkpoint.
type ProgressFunc func(stage string, progress float64)

// Pipeline moves one document from raw submission to a durably indexed state:
// metadata extraction, chunking, embedding, indexing, persistence. Any step
// failure marks the document failed; no partial chunk set ever becomes
// queryable. The pipeline assumes it is the sole writer for its document id
// during a run; the Manager enforces that.
type Pipeline struct {
	store     Store
	index     vector.Index
	embedder  embedding.Provider
	chunkCfg  chunking.Config
	batchSize int
}

func NewPipeline(store Store, index vector.Index, embedder embedding.Provider, chunkCfg chunking.Config, batchSize int) *Pipeline {
	return &Pipeline{
		store:     store,
		index:     index,
		embedder:  embedder,
		chunkCfg:  chunkCfg,
		batchSize: batchSize,
	}
}

func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string, float64) {}
	}

	started := time.Now()
	docID := req.ResolveID()

	logger.Info("Ingesting document",
		zap.String("document_id", docID),
		zap.String("title", req.Title),
		zap.Int("content_length", len(req.Content)),
	)

	// Step 1: metadata extraction.
	contentType, metadata := extractMetadata(req)
	now := time.Now()
	doc := &models.Document{
		ID:             docID,
		Title:          req.Title,
		ContentType:    string(contentType),
		RawContent:     req.Content,
		Metadata:       metadata,
		EmbeddingModel: p.embedder.Model(),
		Status:         models.DocumentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.store.UpsertDocument(doc); err != nil {
		return nil, p.fail(docID, "metadata", err)
	}
	progress(models.JobStageExtractingMetadata, 0.2)

	// Step 2: chunking. A chunking failure aborts the whole document.
	cfg := p.chunkCfg
	if req.Chunking != nil {
		cfg = *req.Chunking
	}
	chunks, report, err := chunking.New(cfg).Chunk(req.Content, contentType)
	if err != nil {
		return nil, p.fail(docID, "chunking", err)
	}
	progress(models.JobStageChunking, 0.4)

	// Step 3: embedding, batched. If any chunk cannot be embedded even after
	// the per-item fallback, the document fails; it is never indexed with
	// missing vectors.
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := embedding.EmbedAll(ctx, p.embedder, texts, p.batchSize)
	if err != nil {
		return nil, p.fail(docID, "embedding", err)
	}
	progress(models.JobStageEmbedding, 0.6)

	// Step 4: indexing. The prior chunk set is deleted only now, after every
	// vector exists, so the replacement is all-or-nothing from the index's
	// point of view.
	if err := p.index.DeleteByDocument(ctx, docID); err != nil {
		return nil, p.fail(docID, "indexing", err)
	}

	items := make([]vector.Item, len(chunks))
	records := make([]models.Chunk, len(chunks))
	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s_%d", docID, chunk.Ordinal)
		metadataJSON := chunkMetadataJSON(chunk.Metadata)

		items[i] = vector.Item{
			ID:     chunkID,
			Vector: vectors[i],
			Payload: vector.Payload{
				DocumentID:     docID,
				Title:          req.Title,
				Ordinal:        chunk.Ordinal,
				Content:        chunk.Content,
				Metadata:       metadataJSON,
				EmbeddingModel: p.embedder.Model(),
			},
		}
		records[i] = models.Chunk{
			ID:             chunkID,
			DocumentID:     docID,
			Ordinal:        chunk.Ordinal,
			Content:        chunk.Content,
			Metadata:       chunk.Metadata,
			VectorRef:      chunkID,
			EmbeddingModel: p.embedder.Model(),
			CreatedAt:      now,
		}
		metrics.ChunkCoherence.Observe(chunk.Metadata.Coherence)
	}

	if err := p.index.Upsert(ctx, items); err != nil {
		return nil, p.fail(docID, "indexing", err)
	}
	progress(models.JobStageIndexing, 0.8)

	// Step 5: persistence. Only after every chunk is confirmed indexed does
	// the document become ready.
	if err := p.store.ReplaceChunks(docID, records); err != nil {
		return nil, p.fail(docID, "persistence", err)
	}
	if err := p.store.SetDocumentStatus(docID, models.DocumentStatusReady, ""); err != nil {
		return nil, p.fail(docID, "persistence", err)
	}
	progress(models.JobStageCompleted, 1.0)

	metrics.DocumentsIngested.WithLabelValues("completed").Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	metrics.IngestDuration.Observe(time.Since(started).Seconds())

	logger.Info("Document ingested",
		zap.String("document_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Float64("avg_coherence", report.AverageCoherence),
		zap.Duration("elapsed", time.Since(started)),
	)

	return &Result{
		DocumentID:   docID,
		ChunkCount:   len(chunks),
		AvgCoherence: report.AverageCoherence,
	}, nil
}

// fail transitions the document to its terminal failed state, recording the
// failing step. Retrying ingestion is the only recovery path.
func (p *Pipeline) fail(docID, step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)

	if statusErr := p.store.SetDocumentStatus(docID, models.DocumentStatusFailed, wrapped.Error()); statusErr != nil {
		logger.Error("Failed to mark document failed",
			zap.String("document_id", docID),
			zap.Error(statusErr),
		)
	}

	metrics.DocumentsIngested.WithLabelValues("failed").Inc()

	logger.Error("Ingestion failed",
		zap.String("document_id", docID),
		zap.String("step", step),
		zap.Error(err),
	)

	return wrapped
}
