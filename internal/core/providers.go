// Package core declares the provider interfaces shared across the
// application so higher layers never depend on a concrete vendor client.
package core

import (
	"context"
	"io"
)

// EmbeddingProvider turns texts into embedding vectors.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ObjectClient archives raw document bytes in object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// DocumentExtractor converts an uploaded file into plain text.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, contentType string) (string, error)
}
