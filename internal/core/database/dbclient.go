package database

import (
	"context"
	"errors"
	"time"

	"github.com/chatppc/chatppc/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a
// specific database; services declare narrower views of it.
type DbClient interface {
	// Document chunks (vector store side).
	GetSourceHash(ctx context.Context, source string) (string, error)
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksBySource(ctx context.Context, source string) (int64, error)
	CountChunksBySource(ctx context.Context, source string) (int, error)
	ListChunks(ctx context.Context, limit int) ([]models.DocumentChunk, error)
	GetChunkByID(ctx context.Context, id int64) (*models.DocumentChunk, error)
	GetChunksBySource(ctx context.Context, source string) ([]models.DocumentChunk, error)
	GetChunksByTitle(ctx context.Context, title string) ([]models.DocumentChunk, error)
	ListSources(ctx context.Context) ([]string, error)
	SearchChunks(ctx context.Context, embedding []float32, limit int) ([]models.DocumentChunk, error)

	// Chat sessions and messages.
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	CreateSession(ctx context.Context, session *models.ChatSession) error
	TouchSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	ExistingSequenceOrders(ctx context.Context, sessionID string) (map[int]struct{}, error)
	InsertMessages(ctx context.Context, msgs []models.ChatMessage) error
	GetMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUser(ctx context.Context, userID string) (int, error)

	// Link clicks.
	InsertLinkClick(ctx context.Context, click *models.LinkClick) error
	ListLinkClicks(ctx context.Context) ([]models.LinkClick, error)

	// Admin aggregates. Search patterns arrive pre-escaped.
	SearchSessionIDsByContent(ctx context.Context, pattern string) ([]string, error)
	ListConversationSummaries(ctx context.Context, ids []string, limit, offset int) ([]models.ConversationSummary, error)
	CountSessions(ctx context.Context, ids []string) (int, error)
	CountSessionsUpdatedSince(ctx context.Context, since time.Time) (int, error)
	CountMessagesSince(ctx context.Context, since time.Time) (int, error)
	AvgMessagesPerSession(ctx context.Context) (float64, error)

	Close() error
}
