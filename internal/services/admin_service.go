package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/models"
)

const (
	// MaxPageSize bounds the limit query parameter on every listing.
	MaxPageSize = 100

	defaultPageSize     = 10
	defaultLinkPageSize = 5
	maxSearchLength     = 1000
	previewLength       = 100
	chunkListLimit      = 1000
)

var (
	// ErrSearchTooLong rejects unreasonably large search inputs.
	ErrSearchTooLong = errors.New("search query too long")
	// ErrConversationNotFound means the referenced conversation is absent.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDocumentNotFound means no chunks exist for the referenced document.
	ErrDocumentNotFound = errors.New("document not found")
)

// AdminStore is the read view of the persistence layer the admin
// dashboard queries, plus the document delete used for management.
type AdminStore interface {
	SearchSessionIDsByContent(ctx context.Context, pattern string) ([]string, error)
	ListConversationSummaries(ctx context.Context, ids []string, limit, offset int) ([]models.ConversationSummary, error)
	CountSessions(ctx context.Context, ids []string) (int, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	GetMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	DeleteSession(ctx context.Context, id string) error

	ListChunks(ctx context.Context, limit int) ([]models.DocumentChunk, error)
	GetChunkByID(ctx context.Context, id int64) (*models.DocumentChunk, error)
	GetChunksBySource(ctx context.Context, source string) ([]models.DocumentChunk, error)
	GetChunksByTitle(ctx context.Context, title string) ([]models.DocumentChunk, error)
	CountChunksBySource(ctx context.Context, source string) (int, error)
	DeleteChunksBySource(ctx context.Context, source string) (int64, error)
	ListSources(ctx context.Context) ([]string, error)

	ListLinkClicks(ctx context.Context) ([]models.LinkClick, error)
	CountSessionsUpdatedSince(ctx context.Context, since time.Time) (int, error)
	CountMessagesSince(ctx context.Context, since time.Time) (int, error)
	AvgMessagesPerSession(ctx context.Context) (float64, error)
}

// AdminService serves the paginated, searchable dashboard views.
type AdminService struct {
	store  AdminStore
	logger *zap.Logger
}

func NewAdminService(store AdminStore, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{store: store, logger: logger}
}

// ConversationPage is one page of the conversation listing.
type ConversationPage struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	Pagination    models.Pagination            `json:"pagination"`
}

// ConversationDetail is a full conversation with its messages.
type ConversationDetail struct {
	Session      models.ChatSession   `json:"session"`
	Messages     []models.ChatMessage `json:"messages"`
	MessageCount int                  `json:"messageCount"`
}

// DocumentStats is the grouped document listing.
type DocumentStats struct {
	TotalDocuments int                   `json:"totalDocuments"`
	TotalChunks    int                   `json:"totalChunks"`
	Documents      []models.DocumentInfo `json:"documents"`
}

// DocumentDetail holds the ordered chunks of one document.
type DocumentDetail struct {
	Source     string               `json:"source"`
	ChunkCount int                  `json:"chunkCount"`
	Chunks     []models.ChunkDetail `json:"chunks"`
}

// ChunkInfo is the single-chunk detail shape.
type ChunkInfo struct {
	ID         int64                `json:"id"`
	Source     string               `json:"source"`
	Title      string               `json:"title"`
	Content    string               `json:"content"`
	Metadata   models.ChunkMetadata `json:"metadata"`
	ChunkCount int                  `json:"chunkCount"`
	ChunkIndex int                  `json:"chunkIndex"`
}

// LinkClickPage is one page of the link analytics view.
type LinkClickPage struct {
	MostClickedLinks []models.LinkStat `json:"mostClickedLinks"`
	TotalClicks      int               `json:"totalClicks"`
	UniqueLinks      int               `json:"uniqueLinks"`
	Pagination       models.Pagination `json:"pagination"`
}

func clampPaging(page, limit, fallback int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = fallback
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func pageCount(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// escapeLike neutralizes SQL pattern metacharacters so user input cannot
// act as wildcards in ILIKE queries.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListConversations returns session summaries ordered by last update,
// optionally filtered to sessions whose message content matches search.
func (s *AdminService) ListConversations(ctx context.Context, page, limit int, search string) (*ConversationPage, error) {
	page, limit = clampPaging(page, limit, defaultPageSize)
	if len(search) > maxSearchLength {
		return nil, ErrSearchTooLong
	}

	var ids []string
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		pattern := "%" + escapeLike(trimmed) + "%"
		matched, err := s.store.SearchSessionIDsByContent(ctx, pattern)
		if err != nil {
			return nil, fmt.Errorf("search messages: %w", err)
		}
		if len(matched) == 0 {
			return &ConversationPage{
				Conversations: []models.ConversationSummary{},
				Pagination:    models.Pagination{Page: page, Limit: limit},
			}, nil
		}
		ids = matched
	}

	total, err := s.store.CountSessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	offset := (page - 1) * limit
	sums, err := s.store.ListConversationSummaries(ctx, ids, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if sums == nil {
		sums = []models.ConversationSummary{}
	}
	for i := range sums {
		if fm := sums[i].FirstMessage; fm != nil {
			fm.Content = truncate(fm.Content, previewLength)
		}
	}

	return &ConversationPage{
		Conversations: sums,
		Pagination: models.Pagination{
			Page: page, Limit: limit, Total: total, Pages: pageCount(total, limit),
		},
	}, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// GetConversation returns one session with all of its messages.
func (s *AdminService) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	session, err := s.store.GetSession(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.GetMessagesBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return &ConversationDetail{Session: *session, Messages: msgs, MessageCount: len(msgs)}, nil
}

// DeleteConversation removes a session and its messages.
func (s *AdminService) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// ListDocuments groups stored chunks by source with aggregate counts.
func (s *AdminService) ListDocuments(ctx context.Context) (*DocumentStats, error) {
	chunks, err := s.store.ListChunks(ctx, chunkListLimit)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	bySource := map[string]*models.DocumentInfo{}
	var order []string
	for _, ch := range chunks {
		source := ch.Metadata.Source
		if source == "" {
			source = "Unknown Document"
		}
		info, ok := bySource[source]
		if !ok {
			title := ch.Metadata.Title
			if title == "" {
				title = source
			}
			info = &models.DocumentInfo{Source: source, Title: title}
			bySource[source] = info
			order = append(order, source)
		}
		info.ChunkCount++
	}

	docs := make([]models.DocumentInfo, 0, len(order))
	for _, source := range order {
		docs = append(docs, *bySource[source])
	}
	return &DocumentStats{
		TotalDocuments: len(docs),
		TotalChunks:    len(chunks),
		Documents:      docs,
	}, nil
}

// GetDocument resolves an identifier that is either a numeric chunk id or
// a source name (with a title fallback) and returns the matching chunks.
func (s *AdminService) GetDocument(ctx context.Context, identifier string) (*DocumentDetail, error) {
	if id, ok := parseChunkID(identifier); ok {
		ch, err := s.store.GetChunkByID(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		if err != nil {
			return nil, err
		}
		source := ch.Metadata.Source
		if source == "" {
			source = "Unknown Document"
		}
		return &DocumentDetail{
			Source:     source,
			ChunkCount: 1,
			Chunks:     []models.ChunkDetail{chunkDetail(*ch, 1)},
		}, nil
	}

	chunks, err := s.store.GetChunksBySource(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		chunks, err = s.store.GetChunksByTitle(ctx, identifier)
		if err != nil {
			return nil, err
		}
	}

	details := make([]models.ChunkDetail, 0, len(chunks))
	for i, ch := range chunks {
		details = append(details, chunkDetail(ch, i+1))
	}
	return &DocumentDetail{Source: identifier, ChunkCount: len(details), Chunks: details}, nil
}

// GetChunk returns one chunk by its numeric id.
func (s *AdminService) GetChunk(ctx context.Context, id int64) (*ChunkInfo, error) {
	ch, err := s.store.GetChunkByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	source := ch.Metadata.Source
	if source == "" {
		source = "Unknown Document"
	}
	title := ch.Metadata.Title
	if title == "" {
		title = source
	}
	return &ChunkInfo{
		ID:         ch.ID,
		Source:     source,
		Title:      title,
		Content:    ch.Content,
		Metadata:   ch.Metadata,
		ChunkCount: 1,
		ChunkIndex: 1,
	}, nil
}

// DeleteDocument removes every chunk for a source and reports how many
// were deleted.
func (s *AdminService) DeleteDocument(ctx context.Context, source string) (int, error) {
	count, err := s.store.CountChunksBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrDocumentNotFound
	}
	if _, err := s.store.DeleteChunksBySource(ctx, source); err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	s.logger.Info("document deleted", zap.String("source", source), zap.Int("chunks", count))
	return count, nil
}

// Sources lists the distinct stored document sources.
func (s *AdminService) Sources(ctx context.Context) ([]string, error) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []string{}
	}
	return sources, nil
}

// LinkClickStats aggregates clicks by URL, most-clicked first.
func (s *AdminService) LinkClickStats(ctx context.Context, page, limit int, search string) (*LinkClickPage, error) {
	page, limit = clampPaging(page, limit, defaultLinkPageSize)

	clicks, err := s.store.ListLinkClicks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list link clicks: %w", err)
	}

	// Clicks arrive newest first, so the first occurrence of a URL carries
	// its most recent text and timestamp.
	byURL := map[string]*models.LinkStat{}
	var order []string
	for _, click := range clicks {
		stat, ok := byURL[click.LinkURL]
		if !ok {
			text := click.LinkText
			if text == "" {
				text = "No text"
			}
			stat = &models.LinkStat{URL: click.LinkURL, Text: text, LastClicked: click.ClickedAt}
			byURL[click.LinkURL] = stat
			order = append(order, click.LinkURL)
		}
		stat.ClickCount++
	}

	stats := make([]models.LinkStat, 0, len(order))
	for _, url := range order {
		stats = append(stats, *byURL[url])
	}
	sort.SliceStable(stats, func(a, b int) bool {
		return stats[a].ClickCount > stats[b].ClickCount
	})

	uniqueLinks := len(stats)
	if trimmed := strings.ToLower(strings.TrimSpace(search)); trimmed != "" {
		filtered := stats[:0]
		for _, st := range stats {
			if strings.Contains(strings.ToLower(st.Text), trimmed) ||
				strings.Contains(strings.ToLower(st.URL), trimmed) {
				filtered = append(filtered, st)
			}
		}
		stats = filtered
	}

	total := len(stats)
	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &LinkClickPage{
		MostClickedLinks: stats[offset:end],
		TotalClicks:      len(clicks),
		UniqueLinks:      uniqueLinks,
		Pagination: models.Pagination{
			Page: page, Limit: limit, Total: total, Pages: pageCount(total, limit),
		},
	}, nil
}

// Stats computes the dashboard headline numbers; the four queries run
// concurrently.
func (s *AdminService) Stats(ctx context.Context) (*models.UsageStats, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var (
		total, active, today int
		avg                  float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.store.CountSessions(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = s.store.CountSessionsUpdatedSince(gctx, now.Add(-24*time.Hour))
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.store.CountMessagesSince(gctx, midnight)
		return err
	})
	g.Go(func() error {
		var err error
		avg, err = s.store.AvgMessagesPerSession(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.UsageStats{
		TotalConversations: total,
		ActiveSessions:     active,
		MessagesToday:      today,
		AverageLength:      math.Round(avg*100) / 100,
	}, nil
}

func chunkDetail(ch models.DocumentChunk, index int) models.ChunkDetail {
	return models.ChunkDetail{
		ID:         fmt.Sprintf("%d", ch.ID),
		ChunkIndex: index,
		Content:    ch.Content,
		Metadata:   ch.Metadata,
	}
}

// parseChunkID accepts digit-only identifiers that fit in an int64;
// anything else (including overlong digit strings) is treated as a
// source name.
func parseChunkID(identifier string) (int64, bool) {
	if identifier == "" {
		return 0, false
	}
	for _, r := range identifier {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
