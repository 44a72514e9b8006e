package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chatppc/chatppc/internal/core"
	"github.com/chatppc/chatppc/internal/core/ingest"
	"github.com/chatppc/chatppc/internal/services"
)

const maxUploadMemory = 32 << 20

// AdminDocumentHandler exposes the knowledge-base management endpoints:
// listing, inspecting, deleting and uploading documents.
type AdminDocumentHandler struct {
	admin     *services.AdminService
	ingestor  *ingest.Ingestor
	extractor core.DocumentExtractor
	objects   core.ObjectClient
	logger    *zap.Logger
}

// NewAdminDocumentHandler wires the document endpoints. objects may be
// nil when no object store is configured; uploads then skip archival.
func NewAdminDocumentHandler(admin *services.AdminService, ingestor *ingest.Ingestor, extractor core.DocumentExtractor, objects core.ObjectClient, logger *zap.Logger) *AdminDocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminDocumentHandler{
		admin:     admin,
		ingestor:  ingestor,
		extractor: extractor,
		objects:   objects,
		logger:    logger,
	}
}

// List returns all documents grouped by source with chunk counts.
func (h *AdminDocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Sources returns the distinct document sources.
func (h *AdminDocumentHandler) Sources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.admin.Sources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// Get looks a document up by source path, falling back to title match.
// The path parameter may be URL-encoded.
func (h *AdminDocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "source")
	if decoded, err := url.PathUnescape(identifier); err == nil {
		identifier = decoded
	}
	detail, err := h.admin.GetDocument(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetChunk returns a single chunk row by its numeric id.
func (h *AdminDocumentHandler) GetChunk(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid chunk ID")
		return
	}
	chunk, err := h.admin.GetChunk(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "Chunk not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

type deleteDocumentRequest struct {
	Source string `json:"source"`
}

// Delete removes every chunk of the source named in the request body.
func (h *AdminDocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" {
		writeError(w, http.StatusBadRequest, "Source is required")
		return
	}
	deleted, err := h.admin.DeleteDocument(r.Context(), req.Source)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Deleted document %s", req.Source),
		"deletedChunks": deleted,
	})
}

// Upload accepts multipart files, extracts text from non-markdown
// formats, archives the raw bytes when an object store is available,
// and runs each file through the ingestion pipeline.
func (h *AdminDocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}

	summary := ingest.Summary{Results: []ingest.Outcome{}}
	for _, header := range files {
		outcome := h.processUpload(r, header)
		summary.Total++
		switch outcome.Status {
		case ingest.StatusSuccess:
			summary.Success++
		case ingest.StatusSkipped:
			summary.Skipped++
		default:
			summary.Errors++
		}
		summary.Results = append(summary.Results, outcome)
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AdminDocumentHandler) processUpload(r *http.Request, header *multipart.FileHeader) ingest.Outcome {
	name := path.Base(header.Filename)
	file, err := header.Open()
	if err != nil {
		return ingest.Outcome{Source: name, Status: ingest.StatusError, Message: err.Error()}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.Outcome{Source: name, Status: ingest.StatusError, Message: err.Error()}
	}

	contentType := header.Header.Get("Content-Type")
	content, err := h.extractor.ExtractText(r.Context(), bytes.NewReader(data), contentType)
	if err != nil {
		return ingest.Outcome{Source: name, Status: ingest.StatusError, Message: fmt.Sprintf("text extraction failed: %v", err)}
	}

	if h.objects != nil {
		key := fmt.Sprintf("uploads/%s/%s", time.Now().UTC().Format("2006-01-02"), name)
		if _, err := h.objects.UploadFile(r.Context(), key, data, contentType); err != nil {
			h.logger.Warn("upload archive failed", zap.String("file", name), zap.Error(err))
		}
	}

	return h.ingestor.IngestDocument(r.Context(), ingest.Document{
		Source:  name,
		Title:   strings.TrimSuffix(name, path.Ext(name)),
		Content: content,
	})
}
