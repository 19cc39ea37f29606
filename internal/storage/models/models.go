package models

import "time"

// Document statuses. A document is never queryable while pending or failed;
// ingestion either commits every chunk or marks the document failed.
const (
	DocumentStatusPending = "pending"
	DocumentStatusReady   = "ready"
	DocumentStatusFailed  = "failed"
)

type Document struct {
	ID             string
	Title          string
	ContentType    string
	RawContent     string
	Metadata       map[string]string
	EmbeddingModel string
	Status         string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Chunk is the persisted chunk layout: any storage engine substituted for
// SQLite must preserve this shape for the persistence step to stay meaningful.
type Chunk struct {
	ID             string
	DocumentID     string
	Ordinal        int
	Content        string
	Metadata       ChunkMetadata
	VectorRef      string
	EmbeddingModel string
	CreatedAt      time.Time
}

type ChunkMetadata struct {
	CharCount     int     `json:"char_count"`
	WordCount     int     `json:"word_count"`
	SentenceCount int     `json:"sentence_count"`
	Coherence     float64 `json:"coherence"`
	Strategy      string  `json:"strategy"`
	Boundary      string  `json:"boundary"`
}

// Ingestion job stages reported by the status surface.
const (
	JobStageQueued             = "queued"
	JobStageExtractingMetadata = "extracting-metadata"
	JobStageChunking           = "chunking"
	JobStageEmbedding          = "embedding"
	JobStageIndexing           = "indexing"
	JobStageCompleted          = "completed"
	JobStageFailed             = "failed"
)

type IngestJob struct {
	ID           string
	DocumentID   string
	Stage        string
	Progress     float64
	Error        string
	ChunkCount   int
	AvgCoherence float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
