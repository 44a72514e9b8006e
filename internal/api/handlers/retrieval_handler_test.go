package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatppc/chatppc/internal/models"
)

type stubRetrieval struct {
	gotLimit  int
	gotVector []float32
	chunks    []models.DocumentChunk
}

func (s *stubRetrieval) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]models.DocumentChunk, error) {
	s.gotVector = embedding
	s.gotLimit = limit
	return s.chunks, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestRetrievalQuery(t *testing.T) {
	store := &stubRetrieval{chunks: []models.DocumentChunk{{
		ID:       1,
		Content:  "Plans start at ten dollars.",
		Metadata: models.ChunkMetadata{Source: "pricing.md", Title: "Pricing"},
	}}}
	h := NewRetrievalHandler(store, stubEmbedder{})

	req := httptest.NewRequest(http.MethodPost, "/api/retrieval/query",
		strings.NewReader(`{"query":"how much does it cost"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRetrievalLimit, store.gotLimit)
	assert.Equal(t, []float32{1, 2, 3}, store.gotVector)

	var resp struct {
		Results []struct {
			Content  string               `json:"content"`
			Metadata models.ChunkMetadata `json:"metadata"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "pricing.md", resp.Results[0].Metadata.Source)
}

func TestRetrievalQueryCustomLimit(t *testing.T) {
	store := &stubRetrieval{}
	h := NewRetrievalHandler(store, stubEmbedder{})

	req := httptest.NewRequest(http.MethodPost, "/api/retrieval/query",
		strings.NewReader(`{"query":"q","limit":12}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, store.gotLimit)
}

func TestRetrievalQueryRequiresQuery(t *testing.T) {
	h := NewRetrievalHandler(&stubRetrieval{}, stubEmbedder{})

	req := httptest.NewRequest(http.MethodPost, "/api/retrieval/query", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
