package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/backend/internal/storage/models"
	"github.com/knowledgehub/backend/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Client {
	t.Helper()
	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func newTestApp(store *sqlite.Client) *fiber.App {
	app := fiber.New()
	h := NewDocumentHandler(nil, store)
	app.Get("/api/v1/documents/:id", h.GetDocument)
	app.Get("/api/v1/documents/:id/chunks", h.GetDocumentChunks)
	return app
}

func seedDocument(t *testing.T, store *sqlite.Client, id string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.UpsertDocument(&models.Document{
		ID:          id,
		Title:       "Title " + id,
		ContentType: "text/plain",
		RawContent:  "content",
		Status:      models.DocumentStatusReady,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestGetDocument_UnknownID(t *testing.T) {
	app := newTestApp(newTestStore(t))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/documents/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetDocumentChunks_UnknownDocumentIsNotFound(t *testing.T) {
	app := newTestApp(newTestStore(t))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/documents/missing/chunks", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetDocumentChunks_ExistingDocumentWithoutChunks(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "doc-1")
	app := newTestApp(store)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/documents/doc-1/chunks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		DocumentID string `json:"document_id"`
		Count      int    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "doc-1", body.DocumentID)
	assert.Equal(t, 0, body.Count)
}

func TestGetDocumentChunks_ReturnsStoredChunks(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "doc-1")
	now := time.Now()
	require.NoError(t, store.ReplaceChunks("doc-1", []models.Chunk{
		{ID: "doc-1-0", DocumentID: "doc-1", Ordinal: 0, Content: "first", CreatedAt: now},
		{ID: "doc-1-1", DocumentID: "doc-1", Ordinal: 1, Content: "second", CreatedAt: now},
	}))
	app := newTestApp(store)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/documents/doc-1/chunks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
}
