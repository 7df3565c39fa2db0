package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/models"
	"github.com/markdave123-py/docvault/internal/services"
)

type DocumentHandler struct {
	ingest *services.IngestService
	docs   *services.DocumentService
}

func NewDocumentHandler(ingest *services.IngestService, docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, docs: docs}
}

func (h *DocumentHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API is running!"})
}

type processResponse struct {
	Message string              `json:"message"`
	Report  models.IngestReport `json:"report"`
}

// ProcessPDF ingests ?filename= synchronously.
func (h *DocumentHandler) ProcessPDF(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	report, err := h.ingest.IngestNow(r.Context(), filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Message: fmt.Sprintf("processed %s", filename),
		Report:  report,
	})
}

type ingestRequest struct {
	Path  string `json:"path"`
	Async bool   `json:"async"`
}

// Ingest runs the pipeline now, or queues it when async is set.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid body", core.ErrInvalidInput))
		return
	}

	if req.Async {
		job, err := h.ingest.Submit(r.Context(), req.Path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	report, err := h.ingest.IngestNow(r.Context(), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ingest.Job(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.ingest.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *DocumentHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: page number must be an integer", core.ErrInvalidInput))
		return
	}
	page, err := h.docs.Page(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
