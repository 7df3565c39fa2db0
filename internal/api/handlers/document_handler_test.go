package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/markdave123-py/docvault/internal/core/database"
	"github.com/markdave123-py/docvault/internal/core/ingestion_engine"
	"github.com/markdave123-py/docvault/internal/models"
	"github.com/markdave123-py/docvault/internal/services"
)

type stubIngestor struct {
	observer ingestion_engine.JobObserver
}

func (s *stubIngestor) Ingest(ctx context.Context, path string) (models.IngestReport, error) {
	return models.IngestReport{Path: path, Pages: 2, Chunks: 5}, nil
}
func (s *stubIngestor) Backfill(ctx context.Context) (int, error)                   { return 0, nil }
func (s *stubIngestor) Enqueue(ctx context.Context, job ingestion_engine.Job) error { return nil }
func (s *stubIngestor) Run(ctx context.Context, numWorkers int) error               { return nil }
func (s *stubIngestor) SetJobObserver(o ingestion_engine.JobObserver)               { s.observer = o }

func newRouter(t *testing.T) (http.Handler, *db.DatabaseClient) {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "pdf_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := NewDocumentHandler(services.NewIngestService(&stubIngestor{}, store), services.NewDocumentService(store))
	r := chi.NewRouter()
	r.Get("/", h.Root)
	r.Post("/process_pdf", h.ProcessPDF)
	r.Post("/api/documents/ingest", h.Ingest)
	r.Get("/api/jobs/{id}", h.GetJob)
	r.Get("/api/stats", h.Stats)
	r.Get("/api/pages/{number}", h.GetPage)
	return r, store
}

func pdfFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Biology.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
	return p
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	r, _ := newRouter(t)
	rec := do(t, r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"API is running!"}`, rec.Body.String())
}

func TestProcessPDF(t *testing.T) {
	r, _ := newRouter(t)
	file := pdfFile(t)

	rec := do(t, r, http.MethodPost, "/process_pdf?filename="+url.QueryEscape(file), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Report.Chunks)

	rec = do(t, r, http.MethodPost, "/process_pdf?filename="+url.QueryEscape(file+".missing"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	rec = do(t, r, http.MethodPost, "/process_pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest(t *testing.T) {
	r, _ := newRouter(t)
	file := pdfFile(t)

	body, _ := json.Marshal(ingestRequest{Path: file})
	rec := do(t, r, http.MethodPost, "/api/documents/ingest", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.IngestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Pages)

	body, _ = json.Marshal(ingestRequest{Path: file, Async: true})
	rec = do(t, r, http.MethodPost, "/api/documents/ingest", string(body))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job services.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, services.JobQueued, job.Status)

	rec = do(t, r, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)

	rec = do(t, r, http.MethodGet, "/api/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/documents/ingest", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(ingestRequest{Path: "/definitely/not/here.pdf", Async: true})
	rec = do(t, r, http.MethodPost, "/api/documents/ingest", string(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsAndPages(t *testing.T) {
	r, store := newRouter(t)
	ctx := context.Background()

	pageID, err := store.UpsertPage(ctx, 1, "hello")
	require.NoError(t, err)
	_, err = store.UpsertChunk(ctx, pageID, 0, "hello")
	require.NoError(t, err)

	rec := do(t, r, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pages":1,"images":0,"chunks":1,"embeddings":0,"metadata":0}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/pages/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page services.PageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, "hello", page.Content)
	assert.Len(t, page.Chunks, 1)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/pages/7", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/pages/abc", "").Code)
}
