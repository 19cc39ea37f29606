package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/storage/models"
	"github.com/knowledgehub/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error { return c.db.Close() }

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content_type TEXT NOT NULL,
		raw_content TEXT NOT NULL,
		metadata TEXT,
		embedding_model TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		vector_ref TEXT,
		embedding_model TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_doc_ordinal ON document_chunks(document_id, ordinal);

	CREATE TABLE IF NOT EXISTS ingest_jobs (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		error TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		avg_coherence REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_document ON ingest_jobs(document_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_stage ON ingest_jobs(stage);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertDocument(doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, title, content_type, raw_content, metadata, embedding_model, status, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content_type = excluded.content_type,
			raw_content = excluded.raw_content,
			metadata = excluded.metadata,
			embedding_model = excluded.embedding_model,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at
	`

	_, err = c.db.Exec(
		query,
		doc.ID,
		doc.Title,
		doc.ContentType,
		doc.RawContent,
		string(metadataJSON),
		doc.EmbeddingModel,
		doc.Status,
		doc.FailureReason,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	logger.Debug("Document upserted", zap.String("document_id", doc.ID), zap.String("status", doc.Status))
	return nil
}

func (c *Client) SetDocumentStatus(id, status, failureReason string) error {
	query := `UPDATE documents SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ?`

	result, err := c.db.Exec(query, status, failureReason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set document status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, title, content_type, raw_content, metadata, embedding_model, status, failure_reason, created_at, updated_at
		FROM documents WHERE id = ?`

	var doc models.Document
	var metadataJSON string
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Title,
		&doc.ContentType,
		&doc.RawContent,
		&metadataJSON,
		&doc.EmbeddingModel,
		&doc.Status,
		&doc.FailureReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
		}
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

// ReplaceChunks atomically swaps the chunk set of one document: the prior set
// is deleted and the new one inserted inside a single transaction, so a
// partial chunk set is never visible.
func (c *Client) ReplaceChunks(documentID string, chunks []models.Chunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete prior chunks: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO document_chunks (id, document_id, ordinal, content, metadata, vector_ref, embedding_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		_, err = stmt.Exec(
			chunk.ID,
			chunk.DocumentID,
			chunk.Ordinal,
			chunk.Content,
			string(metadataJSON),
			chunk.VectorRef,
			chunk.EmbeddingModel,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}

	logger.Debug("Chunk set replaced",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (c *Client) GetChunks(documentID string) ([]models.Chunk, error) {
	query := `SELECT id, document_id, ordinal, content, metadata, vector_ref, embedding_model, created_at
		FROM document_chunks WHERE document_id = ? ORDER BY ordinal ASC`

	rows, err := c.db.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var metadataJSON string
		var createdAt int64

		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Ordinal,
			&chunk.Content,
			&metadataJSON,
			&chunk.VectorRef,
			&chunk.EmbeddingModel,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
			}
		}
		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func (c *Client) SaveJob(job *models.IngestJob) error {
	query := `
		INSERT INTO ingest_jobs (id, document_id, stage, progress, error, chunk_count, avg_coherence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			progress = excluded.progress,
			error = excluded.error,
			chunk_count = excluded.chunk_count,
			avg_coherence = excluded.avg_coherence,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		job.ID,
		job.DocumentID,
		job.Stage,
		job.Progress,
		job.Error,
		job.ChunkCount,
		job.AvgCoherence,
		job.CreatedAt.Unix(),
		job.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (c *Client) GetJob(id string) (*models.IngestJob, error) {
	query := `SELECT id, document_id, stage, progress, error, chunk_count, avg_coherence, created_at, updated_at
		FROM ingest_jobs WHERE id = ?`

	var job models.IngestJob
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&job.ID,
		&job.DocumentID,
		&job.Stage,
		&job.Progress,
		&job.Error,
		&job.ChunkCount,
		&job.AvgCoherence,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	return &job, nil
}
