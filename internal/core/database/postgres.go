package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chatppc/chatppc/internal/config"
	"github.com/chatppc/chatppc/internal/models"
)

// Client implements DbClient against Postgres with the pgvector extension.
type Client struct {
	db *sql.DB
}

var _ DbClient = (*Client)(nil)

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// --- document chunks ---

// GetSourceHash returns the stored content fingerprint for a source, or
// ErrNotFound when no chunk for that source exists yet.
func (c *Client) GetSourceHash(ctx context.Context, source string) (string, error) {
	const q = `
		SELECT COALESCE(metadata->>'hash', '')
		FROM documents
		WHERE metadata->>'source' = $1
		LIMIT 1
	`
	var hash string
	err := c.db.QueryRowContext(ctx, q, source).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if hash == "" {
		return "", ErrNotFound
	}
	return hash, nil
}

// InsertChunks inserts chunks in a single transaction.
func (c *Client) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO documents (content, metadata, embedding)
		VALUES ($1, $2, $3)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		var vec any
		if ch.Embedding != nil {
			vec = pgvector.NewVector(ch.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, ch.Content, meta, vec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *Client) DeleteChunksBySource(ctx context.Context, source string) (int64, error) {
	const q = `DELETE FROM documents WHERE metadata->>'source' = $1`
	res, err := c.db.ExecContext(ctx, q, source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *Client) CountChunksBySource(ctx context.Context, source string) (int, error) {
	const q = `SELECT COUNT(*) FROM documents WHERE metadata->>'source' = $1`
	var n int
	if err := c.db.QueryRowContext(ctx, q, source).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Client) ListChunks(ctx context.Context, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, content, metadata
		FROM documents
		ORDER BY id ASC
		LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (c *Client) GetChunkByID(ctx context.Context, id int64) (*models.DocumentChunk, error) {
	const q = `SELECT id, content, metadata FROM documents WHERE id = $1`
	var (
		ch   models.DocumentChunk
		meta []byte
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(&ch.ID, &ch.Content, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
	}
	return &ch, nil
}

func (c *Client) GetChunksBySource(ctx context.Context, source string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, content, metadata
		FROM documents
		WHERE metadata->>'source' = $1
		ORDER BY id ASC
	`
	rows, err := c.db.QueryContext(ctx, q, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (c *Client) GetChunksByTitle(ctx context.Context, title string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, content, metadata
		FROM documents
		WHERE metadata->>'title' = $1
		ORDER BY id ASC
	`
	rows, err := c.db.QueryContext(ctx, q, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (c *Client) ListSources(ctx context.Context) ([]string, error) {
	const q = `
		SELECT DISTINCT metadata->>'source'
		FROM documents
		WHERE metadata->>'source' IS NOT NULL
		ORDER BY 1 ASC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SearchChunks returns the chunks nearest to the query embedding.
func (c *Client) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, content, metadata
		FROM documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <-> $1
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]models.DocumentChunk, error) {
	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch   models.DocumentChunk
			meta []byte
		)
		if err := rows.Scan(&ch.ID, &ch.Content, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// --- chat sessions and messages ---

func (c *Client) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	const q = `
		SELECT id, created_at, updated_at, COALESCE(user_id, '')
		FROM chat_sessions WHERE id = $1
	`
	var s models.ChatSession
	err := c.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session == nil {
		return errors.New("nil session")
	}
	const q = `
		INSERT INTO chat_sessions (id, created_at, updated_at, user_id)
		VALUES ($1, now(), now(), NULLIF($2, ''))
	`
	_, err := c.db.ExecContext(ctx, q, session.ID, session.UserID)
	return err
}

func (c *Client) TouchSession(ctx context.Context, id string) error {
	const q = `UPDATE chat_sessions SET updated_at = now() WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	const q = `
		SELECT id, created_at, updated_at, COALESCE(user_id, '')
		FROM chat_sessions
		ORDER BY updated_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatSession
	for rows.Next() {
		var s models.ChatSession
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.UserID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExistingSequenceOrders returns the set of sequence orders already stored
// for a session, used for idempotent incremental appends.
func (c *Client) ExistingSequenceOrders(ctx context.Context, sessionID string) (map[int]struct{}, error) {
	const q = `SELECT sequence_order FROM chat_messages WHERE session_id = $1`
	rows, err := c.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]struct{})
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out[n] = struct{}{}
	}
	return out, rows.Err()
}

func (c *Client) InsertMessages(ctx context.Context, msgs []models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chat_messages (session_id, role, content, tool_calls, sequence_order, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range msgs {
		m := &msgs[i]
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			toolCalls = []byte(m.ToolCalls)
		}
		if _, err := stmt.ExecContext(ctx, m.SessionID, m.Role, m.Content, toolCalls, m.SequenceOrder); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *Client) GetMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, session_id, role, content, tool_calls, sequence_order, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY sequence_order ASC
	`
	rows, err := c.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m         models.ChatMessage
			toolCalls []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &toolCalls, &m.SequenceOrder, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(toolCalls) > 0 {
			m.ToolCalls = json.RawMessage(toolCalls)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteSession removes a session's messages and then the session row.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

// DeleteSessionsByUser removes every session owned by userID along with
// their messages, returning the number of sessions deleted.
func (c *Client) DeleteSessionsByUser(ctx context.Context, userID string) (int, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	const delMsgs = `
		DELETE FROM chat_messages
		WHERE session_id IN (SELECT id FROM chat_sessions WHERE user_id = $1)
	`
	if _, err := tx.ExecContext(ctx, delMsgs, userID); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE user_id = $1`, userID)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

// --- link clicks ---

func (c *Client) InsertLinkClick(ctx context.Context, click *models.LinkClick) error {
	if click == nil {
		return errors.New("nil link click")
	}
	const q = `
		INSERT INTO link_clicks (session_id, message_id, link_url, link_text, clicked_at, user_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), now(), NULLIF($5, ''))
	`
	_, err := c.db.ExecContext(ctx, q, click.SessionID, click.MessageID, click.LinkURL, click.LinkText, click.UserID)
	return err
}

// ListLinkClicks returns all clicks newest first; aggregation happens in
// the admin service.
func (c *Client) ListLinkClicks(ctx context.Context) ([]models.LinkClick, error) {
	const q = `
		SELECT id, session_id, message_id, link_url, COALESCE(link_text, ''), clicked_at, COALESCE(user_id, '')
		FROM link_clicks
		ORDER BY clicked_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LinkClick
	for rows.Next() {
		var lc models.LinkClick
		if err := rows.Scan(&lc.ID, &lc.SessionID, &lc.MessageID, &lc.LinkURL, &lc.LinkText, &lc.ClickedAt, &lc.UserID); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// --- admin aggregates ---

// SearchSessionIDsByContent finds sessions with any message matching the
// given ILIKE pattern. Callers must escape wildcard characters first.
func (c *Client) SearchSessionIDsByContent(ctx context.Context, pattern string) ([]string, error) {
	const q = `
		SELECT DISTINCT session_id
		FROM chat_messages
		WHERE content ILIKE $1
	`
	rows, err := c.db.QueryContext(ctx, q, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListConversationSummaries returns one page of session summaries ordered
// by updated_at descending. A nil ids slice means all sessions.
func (c *Client) ListConversationSummaries(ctx context.Context, ids []string, limit, offset int) ([]models.ConversationSummary, error) {
	const base = `
		SELECT s.id, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id) AS message_count,
			COALESCE(fm.content, ''), COALESCE(fm.role, '')
		FROM chat_sessions s
		LEFT JOIN LATERAL (
			SELECT content, role
			FROM chat_messages m
			WHERE m.session_id = s.id AND m.role = 'user'
			ORDER BY m.sequence_order ASC
			LIMIT 1
		) fm ON true
	`
	var (
		rows *sql.Rows
		err  error
	)
	if ids == nil {
		rows, err = c.db.QueryContext(ctx, base+` ORDER BY s.updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = c.db.QueryContext(ctx, base+` WHERE s.id = ANY($1) ORDER BY s.updated_at DESC LIMIT $2 OFFSET $3`, ids, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var (
			cs      models.ConversationSummary
			content string
			role    string
		)
		if err := rows.Scan(&cs.ID, &cs.CreatedAt, &cs.UpdatedAt, &cs.MessageCount, &content, &role); err != nil {
			return nil, err
		}
		if role != "" {
			cs.FirstMessage = &models.MessagePreview{Content: content, Role: role}
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (c *Client) CountSessions(ctx context.Context, ids []string) (int, error) {
	var (
		n   int
		err error
	)
	if ids == nil {
		err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions`).Scan(&n)
	} else {
		err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE id = ANY($1)`, ids).Scan(&n)
	}
	return n, err
}

func (c *Client) CountSessionsUpdatedSince(ctx context.Context, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM chat_sessions WHERE updated_at >= $1`
	var n int
	err := c.db.QueryRowContext(ctx, q, since).Scan(&n)
	return n, err
}

func (c *Client) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM chat_messages WHERE created_at >= $1`
	var n int
	err := c.db.QueryRowContext(ctx, q, since).Scan(&n)
	return n, err
}

func (c *Client) AvgMessagesPerSession(ctx context.Context) (float64, error) {
	const q = `
		SELECT CASE WHEN COUNT(DISTINCT s.id) = 0 THEN 0
			ELSE COUNT(m.id)::float / COUNT(DISTINCT s.id) END
		FROM chat_sessions s
		LEFT JOIN chat_messages m ON m.session_id = s.id
	`
	var avg float64
	err := c.db.QueryRowContext(ctx, q).Scan(&avg)
	return avg, err
}
