package ingestion

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/backend/internal/storage/models"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.IngestJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]models.IngestJob)}
}

func (s *fakeJobStore) SaveJob(job *models.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *fakeJobStore) GetJob(id string) (*models.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("failed to get job: %w", sql.ErrNoRows)
	}
	return &job, nil
}

func waitForStage(t *testing.T, m *Manager, jobID string, stages ...string) *models.IngestJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Status(jobID)
		require.NoError(t, err)
		for _, stage := range stages {
			if job.Stage == stage {
				return job
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %v", jobID, stages)
	return nil
}

func TestManager_SubmitRunsToCompletion(t *testing.T) {
	store := newFakeStore()
	jobs := newFakeJobStore()
	manager := NewManager(newTestPipeline(store, &fakeIndex{}, &fakeEmbedder{}), jobs, time.Minute)

	job, err := manager.Submit(Request{Title: "Doc", Content: threeParagraphs()})
	require.NoError(t, err)
	assert.Equal(t, models.JobStageQueued, job.Stage)

	done := waitForStage(t, manager, job.ID, models.JobStageCompleted)
	assert.Equal(t, 1.0, done.Progress)
	assert.Equal(t, 3, done.ChunkCount)
	assert.Greater(t, done.AvgCoherence, 0.0)
	assert.Empty(t, done.Error)

	// The finished record survives in the store after the live entry is gone.
	persisted, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStageCompleted, persisted.Stage)
}

func TestManager_FailedRunSurfacesError(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(newTestPipeline(store, &fakeIndex{}, &fakeEmbedder{}), newFakeJobStore(), time.Minute)

	job, err := manager.Submit(Request{Title: "Empty", Content: "  "})
	require.NoError(t, err)

	failed := waitForStage(t, manager, job.ID, models.JobStageFailed)
	assert.Contains(t, failed.Error, "chunking")
}

func TestManager_RejectsConcurrentIngestOfSameDocument(t *testing.T) {
	store := newFakeStore()
	release := make(chan struct{})
	embedder := &fakeEmbedder{block: release}
	manager := NewManager(newTestPipeline(store, &fakeIndex{}, embedder), newFakeJobStore(), time.Minute)

	first, err := manager.Submit(Request{Title: "Doc", Content: threeParagraphs()})
	require.NoError(t, err)

	_, err = manager.Submit(Request{Title: "Doc", Content: threeParagraphs()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestInFlight)

	// A different document is unaffected by the running job.
	_, err = manager.Submit(Request{Title: "Other Doc", Content: threeParagraphs()})
	require.NoError(t, err)

	close(release)
	waitForStage(t, manager, first.ID, models.JobStageCompleted)

	// Once the first run finishes, the same document can be resubmitted.
	again, err := manager.Submit(Request{Title: "Doc", Content: threeParagraphs()})
	require.NoError(t, err)
	waitForStage(t, manager, again.ID, models.JobStageCompleted)
}

func TestManager_StatusUnknownJob(t *testing.T) {
	manager := NewManager(newTestPipeline(newFakeStore(), &fakeIndex{}, &fakeEmbedder{}), newFakeJobStore(), time.Minute)

	_, err := manager.Status("no-such-job")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
