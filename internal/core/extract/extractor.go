// Package extract converts uploaded files into plain text for ingestion.
package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"

	"github.com/chatppc/chatppc/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Markdown and plain text pass through untouched; everything else (PDF,
// Word, HTML) goes through docconv.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// IsPlainText reports whether the content type needs no conversion.
func IsPlainText(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "", "text/markdown", "text/x-markdown", "text/plain", "application/octet-stream":
		return true
	}
	return false
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, r io.Reader, contentType string) (string, error) {
	if IsPlainText(contentType) {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(data), nil
	}

	res, err := docconv.Convert(r, contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv extract %q: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Body, nil
}
