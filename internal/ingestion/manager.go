package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/storage/models"
	"github.com/knowledgehub/backend/pkg/logger"
)

// ErrIngestInFlight is returned when a document already has a running job.
// Concurrent ingestion of the same document id is undefined, so the manager
// rejects the second submission instead of racing the first.
var ErrIngestInFlight = errors.New("ingestion already in flight for this document")

// JobStore persists job records so status survives a restart.
type JobStore interface {
	SaveJob(job *models.IngestJob) error
	GetJob(id string) (*models.IngestJob, error)
}

// Manager turns submissions into background ingestion runs and answers
// status queries for their job handles.
type Manager struct {
	pipeline *Pipeline
	jobs     JobStore
	timeout  time.Duration

	mu       sync.Mutex
	inflight map[string]string            // document id -> job id
	active   map[string]*models.IngestJob // job id -> live record
}

func NewManager(pipeline *Pipeline, jobs JobStore, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		pipeline: pipeline,
		jobs:     jobs,
		timeout:  timeout,
		inflight: make(map[string]string),
		active:   make(map[string]*models.IngestJob),
	}
}

// Submit queues one document for ingestion and returns its job handle. The
// run itself happens in the background, bounded by the configured timeout.
func (m *Manager) Submit(req Request) (*models.IngestJob, error) {
	docID := req.ResolveID()

	m.mu.Lock()
	if jobID, busy := m.inflight[docID]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (job %s)", ErrIngestInFlight, jobID)
	}

	now := time.Now()
	job := &models.IngestJob{
		ID:         uuid.New().String(),
		DocumentID: docID,
		Stage:      models.JobStageQueued,
		Progress:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.inflight[docID] = job.ID
	m.active[job.ID] = job
	m.mu.Unlock()

	if err := m.jobs.SaveJob(job); err != nil {
		m.finish(job)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	go m.run(job, req)

	snapshot := *job
	return &snapshot, nil
}

// Status reports the live record for running jobs and falls back to the
// store for finished ones.
func (m *Manager) Status(jobID string) (*models.IngestJob, error) {
	m.mu.Lock()
	if job, ok := m.active[jobID]; ok {
		snapshot := *job
		m.mu.Unlock()
		return &snapshot, nil
	}
	m.mu.Unlock()

	return m.jobs.GetJob(jobID)
}

func (m *Manager) run(job *models.IngestJob, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	result, err := m.pipeline.Run(ctx, req, func(stage string, progress float64) {
		m.update(job, false, func(j *models.IngestJob) {
			j.Stage = stage
			j.Progress = progress
		})
	})

	if err != nil {
		m.update(job, true, func(j *models.IngestJob) {
			j.Stage = models.JobStageFailed
			j.Error = err.Error()
		})
		logger.Warn("Ingestion job failed",
			zap.String("job_id", job.ID),
			zap.String("document_id", job.DocumentID),
			zap.Error(err),
		)
		return
	}

	m.update(job, true, func(j *models.IngestJob) {
		j.Stage = models.JobStageCompleted
		j.Progress = 1.0
		j.ChunkCount = result.ChunkCount
		j.AvgCoherence = result.AvgCoherence
	})
}

// update persists a job mutation. A terminal update also deregisters the job
// under the same lock, so the in-flight guard is released no earlier than the
// terminal stage becomes observable.
func (m *Manager) update(job *models.IngestJob, terminal bool, mutate func(*models.IngestJob)) {
	m.mu.Lock()
	mutate(job)
	job.UpdatedAt = time.Now()
	snapshot := *job
	if terminal {
		delete(m.inflight, job.DocumentID)
		delete(m.active, job.ID)
	}
	m.mu.Unlock()

	if err := m.jobs.SaveJob(&snapshot); err != nil {
		logger.Warn("Failed to persist job update",
			zap.String("job_id", snapshot.ID),
			zap.Error(err),
		)
	}
}

func (m *Manager) finish(job *models.IngestJob) {
	m.mu.Lock()
	delete(m.inflight, job.DocumentID)
	delete(m.active, job.ID)
	m.mu.Unlock()
}
