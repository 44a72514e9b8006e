// Package ingest implements the document ingestion pipeline: content
// fingerprinting, markdown-aware chunking and idempotent re-indexing
// against the chunk store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/chatppc/chatppc/internal/core"
	"github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/models"
)

// embedBatchSize caps how many chunk texts go to the embeddings API in a
// single request.
const embedBatchSize = 16

// ChunkStore is the slice of the persistence layer the ingestor needs.
type ChunkStore interface {
	GetSourceHash(ctx context.Context, source string) (string, error)
	DeleteChunksBySource(ctx context.Context, source string) (int64, error)
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
}

// Status classifies the outcome of ingesting one document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Document is one raw input to the pipeline. Source is the logical
// identifier (file path or upload filename) that groups its chunks.
type Document struct {
	Source  string
	Title   string
	Content string
}

// Outcome is the per-document result of an ingestion run.
type Outcome struct {
	Source  string `json:"fileName"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	Total   int       `json:"totalFiles"`
	Success int       `json:"successCount"`
	Skipped int       `json:"skippedCount"`
	Errors  int       `json:"errorCount"`
	Results []Outcome `json:"results"`
}

// Ingestor drives the per-document state machine: hash, compare against
// the stored fingerprint, then skip, or delete-and-reinsert the full
// chunk set. Documents in a batch are processed strictly sequentially.
type Ingestor struct {
	store    ChunkStore
	embedder core.EmbeddingProvider
	splitter *Splitter
	logger   *zap.Logger
}

func NewIngestor(store ChunkStore, embedder core.EmbeddingProvider, splitter *Splitter, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: store, embedder: embedder, splitter: splitter, logger: logger}
}

// IngestDocument processes a single document and never returns an error:
// failures are captured in the outcome so callers can keep going with the
// rest of a batch.
func (i *Ingestor) IngestDocument(ctx context.Context, doc Document) Outcome {
	// The same logical document must never become two sources because of
	// platform path separators.
	source := filepath.ToSlash(doc.Source)

	if strings.TrimSpace(doc.Content) == "" {
		return Outcome{Source: source, Status: StatusSkipped, Message: "file is empty"}
	}

	currentHash := DocumentHash(doc.Content)

	existingHash, err := i.store.GetSourceHash(ctx, source)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			// Availability over consistency: a transient lookup failure
			// forces full re-ingestion rather than failing the document.
			i.logger.Warn("existing fingerprint lookup failed, treating as new",
				zap.String("source", source), zap.Error(err))
		}
		existingHash = ""
	}

	if existingHash == currentHash && existingHash != "" {
		return Outcome{Source: source, Status: StatusSkipped, Message: "file content unchanged"}
	}

	if existingHash != "" {
		// Content changed: replace the full chunk set for this source.
		deleted, err := i.store.DeleteChunksBySource(ctx, source)
		if err != nil {
			return errorOutcome(source, fmt.Errorf("delete existing chunks: %w", err))
		}
		i.logger.Info("replacing changed document",
			zap.String("source", source), zap.Int64("deleted_chunks", deleted))
	}

	texts := i.splitter.Split(doc.Content)
	chunks := make([]models.DocumentChunk, len(texts))
	for idx, t := range texts {
		chunks[idx] = models.DocumentChunk{
			Content: t,
			Metadata: models.ChunkMetadata{
				Source: source,
				Hash:   currentHash,
				Title:  doc.Title,
			},
		}
	}

	if err := i.embedChunks(ctx, chunks); err != nil {
		return errorOutcome(source, fmt.Errorf("embed chunks: %w", err))
	}
	if err := i.store.InsertChunks(ctx, chunks); err != nil {
		return errorOutcome(source, fmt.Errorf("store chunks: %w", err))
	}

	return Outcome{
		Source:  source,
		Status:  StatusSuccess,
		Message: fmt.Sprintf("successfully processed %d chunks", len(chunks)),
		Chunks:  len(chunks),
	}
}

// IngestBatch processes documents one at a time, isolating per-document
// failures, and aggregates the outcomes.
func (i *Ingestor) IngestBatch(ctx context.Context, docs []Document) Summary {
	s := Summary{Total: len(docs), Results: make([]Outcome, 0, len(docs))}
	for _, doc := range docs {
		out := i.IngestDocument(ctx, doc)
		switch out.Status {
		case StatusSuccess:
			s.Success++
		case StatusSkipped:
			s.Skipped++
		case StatusError:
			s.Errors++
		}
		i.logger.Info("document processed",
			zap.String("source", out.Source),
			zap.String("status", string(out.Status)),
			zap.String("message", out.Message))
		s.Results = append(s.Results, out)
	}
	return s
}

func (i *Ingestor) embedChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if i.embedder == nil {
		return nil
	}
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Content)
		}
		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for j, v := range vecs {
			chunks[start+j].Embedding = v
		}
	}
	return nil
}

func errorOutcome(source string, err error) Outcome {
	return Outcome{Source: source, Status: StatusError, Message: err.Error()}
}
