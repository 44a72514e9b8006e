package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chatppc/chatppc/internal/models"
)

const defaultRetrievalLimit = 5

// RetrievalStore is the slice of the database client the retrieval
// endpoint needs.
type RetrievalStore interface {
	SearchChunks(ctx context.Context, embedding []float32, limit int) ([]models.DocumentChunk, error)
}

// Embedder turns query text into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// RetrievalHandler answers similarity-search queries over the ingested
// document chunks.
type RetrievalHandler struct {
	store    RetrievalStore
	embedder Embedder
}

func NewRetrievalHandler(store RetrievalStore, embedder Embedder) *RetrievalHandler {
	return &RetrievalHandler{store: store, embedder: embedder}
}

type retrievalRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type retrievalMatch struct {
	ID       int64                 `json:"id"`
	Content  string                `json:"content"`
	Metadata *models.ChunkMetadata `json:"metadata"`
}

// Query embeds the request text and returns the closest chunks.
func (h *RetrievalHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req retrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	vectors, err := h.embedder.EmbedTexts(r.Context(), []string{req.Query})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chunks, err := h.store.SearchChunks(r.Context(), vectors[0], limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	matches := make([]retrievalMatch, 0, len(chunks))
	for i := range chunks {
		matches = append(matches, retrievalMatch{
			ID:       chunks[i].ID,
			Content:  chunks[i].Content,
			Metadata: &chunks[i].Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": matches})
}
