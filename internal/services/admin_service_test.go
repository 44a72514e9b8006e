package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/models"
)

// adminFake provides canned data behind the AdminStore interface.
type adminFake struct {
	summaries []models.ConversationSummary
	sessions  map[string]*models.ChatSession
	messages  map[string][]models.ChatMessage
	chunks    []models.DocumentChunk
	clicks    []models.LinkClick
	sources   []string

	searchPattern string
	searchIDs     []string

	sessionCount  int
	activeCount   int
	messagesToday int
	avgLength     float64

	deletedSources []string
}

func (f *adminFake) SearchSessionIDsByContent(ctx context.Context, pattern string) ([]string, error) {
	f.searchPattern = pattern
	return f.searchIDs, nil
}

func (f *adminFake) ListConversationSummaries(ctx context.Context, ids []string, limit, offset int) ([]models.ConversationSummary, error) {
	sums := f.summaries
	if ids != nil {
		allowed := map[string]struct{}{}
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
		var filtered []models.ConversationSummary
		for _, s := range sums {
			if _, ok := allowed[s.ID]; ok {
				filtered = append(filtered, s)
			}
		}
		sums = filtered
	}
	if offset > len(sums) {
		offset = len(sums)
	}
	end := offset + limit
	if end > len(sums) {
		end = len(sums)
	}
	return append([]models.ConversationSummary(nil), sums[offset:end]...), nil
}

func (f *adminFake) CountSessions(ctx context.Context, ids []string) (int, error) {
	if ids != nil {
		return len(ids), nil
	}
	if f.sessionCount > 0 {
		return f.sessionCount, nil
	}
	return len(f.summaries), nil
}

func (f *adminFake) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s, nil
}

func (f *adminFake) GetMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return f.messages[sessionID], nil
}

func (f *adminFake) DeleteSession(ctx context.Context, id string) error {
	if _, ok := f.sessions[id]; !ok {
		return database.ErrNotFound
	}
	delete(f.sessions, id)
	return nil
}

func (f *adminFake) ListChunks(ctx context.Context, limit int) ([]models.DocumentChunk, error) {
	return f.chunks, nil
}

func (f *adminFake) GetChunkByID(ctx context.Context, id int64) (*models.DocumentChunk, error) {
	for i := range f.chunks {
		if f.chunks[i].ID == id {
			return &f.chunks[i], nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *adminFake) GetChunksBySource(ctx context.Context, source string) ([]models.DocumentChunk, error) {
	var out []models.DocumentChunk
	for _, ch := range f.chunks {
		if ch.Metadata.Source == source {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *adminFake) GetChunksByTitle(ctx context.Context, title string) ([]models.DocumentChunk, error) {
	var out []models.DocumentChunk
	for _, ch := range f.chunks {
		if ch.Metadata.Title == title {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *adminFake) CountChunksBySource(ctx context.Context, source string) (int, error) {
	n := 0
	for _, ch := range f.chunks {
		if ch.Metadata.Source == source {
			n++
		}
	}
	return n, nil
}

func (f *adminFake) DeleteChunksBySource(ctx context.Context, source string) (int64, error) {
	f.deletedSources = append(f.deletedSources, source)
	var kept []models.DocumentChunk
	var n int64
	for _, ch := range f.chunks {
		if ch.Metadata.Source == source {
			n++
			continue
		}
		kept = append(kept, ch)
	}
	f.chunks = kept
	return n, nil
}

func (f *adminFake) ListSources(ctx context.Context) ([]string, error) {
	return f.sources, nil
}

func (f *adminFake) ListLinkClicks(ctx context.Context) ([]models.LinkClick, error) {
	return f.clicks, nil
}

func (f *adminFake) CountSessionsUpdatedSince(ctx context.Context, since time.Time) (int, error) {
	return f.activeCount, nil
}

func (f *adminFake) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	return f.messagesToday, nil
}

func (f *adminFake) AvgMessagesPerSession(ctx context.Context) (float64, error) {
	return f.avgLength, nil
}

func summaries(n int) []models.ConversationSummary {
	out := make([]models.ConversationSummary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.ConversationSummary{
			ID:           string(rune('a' + i)),
			MessageCount: i + 1,
			FirstMessage: &models.MessagePreview{Content: "hello there", Role: models.RoleUser},
		})
	}
	return out
}

func TestListConversationsPagination(t *testing.T) {
	fake := &adminFake{summaries: summaries(12)}
	svc := NewAdminService(fake, nil)

	page, err := svc.ListConversations(context.Background(), 1, 5, "")
	require.NoError(t, err)
	assert.Len(t, page.Conversations, 5)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 5, Total: 12, Pages: 3}, page.Pagination)

	last, err := svc.ListConversations(context.Background(), 3, 5, "")
	require.NoError(t, err)
	assert.Len(t, last.Conversations, 2)
}

func TestListConversationsDefaultsAndClamps(t *testing.T) {
	fake := &adminFake{summaries: summaries(3)}
	svc := NewAdminService(fake, nil)

	page, err := svc.ListConversations(context.Background(), 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 10, page.Pagination.Limit)

	page, err = svc.ListConversations(context.Background(), 1, 5000, "")
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Pagination.Limit)
}

func TestListConversationsSearchEscapesWildcards(t *testing.T) {
	fake := &adminFake{summaries: summaries(2), searchIDs: []string{"a"}}
	svc := NewAdminService(fake, nil)

	_, err := svc.ListConversations(context.Background(), 1, 10, `50%_off\deal`)
	require.NoError(t, err)
	assert.Equal(t, `%50\%\_off\\deal%`, fake.searchPattern)
}

func TestListConversationsSearchNoMatches(t *testing.T) {
	fake := &adminFake{summaries: summaries(5), searchIDs: nil}
	svc := NewAdminService(fake, nil)

	page, err := svc.ListConversations(context.Background(), 1, 10, "nothing")
	require.NoError(t, err)
	assert.Empty(t, page.Conversations)
	assert.Zero(t, page.Pagination.Total)
}

func TestListConversationsSearchTooLong(t *testing.T) {
	svc := NewAdminService(&adminFake{}, nil)
	long := make([]byte, maxSearchLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := svc.ListConversations(context.Background(), 1, 10, string(long))
	assert.ErrorIs(t, err, ErrSearchTooLong)
}

func TestListConversationsTruncatesPreview(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	fake := &adminFake{summaries: []models.ConversationSummary{{
		ID:           "a",
		FirstMessage: &models.MessagePreview{Content: long, Role: models.RoleUser},
	}}}
	svc := NewAdminService(fake, nil)

	page, err := svc.ListConversations(context.Background(), 1, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Conversations, 1)
	preview := page.Conversations[0].FirstMessage.Content
	assert.Len(t, []rune(preview), previewLength+3)
	assert.True(t, len(preview) < len(long))
}

func TestGetConversation(t *testing.T) {
	fake := &adminFake{
		sessions: map[string]*models.ChatSession{"s1": {ID: "s1"}},
		messages: map[string][]models.ChatMessage{"s1": {
			{SessionID: "s1", Role: models.RoleUser, SequenceOrder: 0},
			{SessionID: "s1", Role: models.RoleAssistant, SequenceOrder: 1},
		}},
	}
	svc := NewAdminService(fake, nil)

	detail, err := svc.GetConversation(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.MessageCount)

	_, err = svc.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDeleteConversation(t *testing.T) {
	fake := &adminFake{sessions: map[string]*models.ChatSession{"s1": {ID: "s1"}}}
	svc := NewAdminService(fake, nil)

	require.NoError(t, svc.DeleteConversation(context.Background(), "s1"))
	assert.ErrorIs(t, svc.DeleteConversation(context.Background(), "s1"), ErrConversationNotFound)
}

func chunk(id int64, source, title string) models.DocumentChunk {
	return models.DocumentChunk{
		ID:      id,
		Content: "chunk content",
		Metadata: models.ChunkMetadata{
			Source: source, Title: title, Hash: "abc",
		},
	}
}

func TestListDocumentsGroupsBySource(t *testing.T) {
	fake := &adminFake{chunks: []models.DocumentChunk{
		chunk(1, "a.md", "Alpha"),
		chunk(2, "a.md", "Alpha"),
		chunk(3, "b.md", ""),
		chunk(4, "", ""),
	}}
	svc := NewAdminService(fake, nil)

	stats, err := svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 4, stats.TotalChunks)

	require.Len(t, stats.Documents, 3)
	assert.Equal(t, models.DocumentInfo{Source: "a.md", Title: "Alpha", ChunkCount: 2}, stats.Documents[0])
	assert.Equal(t, "b.md", stats.Documents[1].Title)
	assert.Equal(t, "Unknown Document", stats.Documents[2].Source)
}

func TestGetDocumentBySourceWithTitleFallback(t *testing.T) {
	fake := &adminFake{chunks: []models.DocumentChunk{
		chunk(1, "guides/a.md", "Alpha Guide"),
		chunk(2, "guides/a.md", "Alpha Guide"),
	}}
	svc := NewAdminService(fake, nil)

	bySource, err := svc.GetDocument(context.Background(), "guides/a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, bySource.ChunkCount)
	assert.Equal(t, 1, bySource.Chunks[0].ChunkIndex)
	assert.Equal(t, 2, bySource.Chunks[1].ChunkIndex)

	byTitle, err := svc.GetDocument(context.Background(), "Alpha Guide")
	require.NoError(t, err)
	assert.Equal(t, 2, byTitle.ChunkCount)

	// Unknown source yields an empty detail, not an error.
	empty, err := svc.GetDocument(context.Background(), "nope.md")
	require.NoError(t, err)
	assert.Zero(t, empty.ChunkCount)
}

func TestGetDocumentByNumericID(t *testing.T) {
	fake := &adminFake{chunks: []models.DocumentChunk{chunk(42, "a.md", "Alpha")}}
	svc := NewAdminService(fake, nil)

	detail, err := svc.GetDocument(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "a.md", detail.Source)
	assert.Equal(t, 1, detail.ChunkCount)

	_, err = svc.GetDocument(context.Background(), "99")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestGetDocumentOverlongDigitsTreatedAsSource(t *testing.T) {
	// 20 digits exceed int64, so the identifier is a source name.
	source := strings.Repeat("9", 20)
	fake := &adminFake{chunks: []models.DocumentChunk{chunk(1, source, "")}}
	svc := NewAdminService(fake, nil)

	detail, err := svc.GetDocument(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, source, detail.Source)
	assert.Equal(t, 1, detail.ChunkCount)
}

func TestGetChunk(t *testing.T) {
	fake := &adminFake{chunks: []models.DocumentChunk{chunk(7, "a.md", "")}}
	svc := NewAdminService(fake, nil)

	info, err := svc.GetChunk(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.ID)
	assert.Equal(t, "a.md", info.Title)

	_, err = svc.GetChunk(context.Background(), 8)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteDocument(t *testing.T) {
	fake := &adminFake{chunks: []models.DocumentChunk{
		chunk(1, "a.md", ""), chunk(2, "a.md", ""), chunk(3, "b.md", ""),
	}}
	svc := NewAdminService(fake, nil)

	n, err := svc.DeleteDocument(context.Background(), "a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a.md"}, fake.deletedSources)

	_, err = svc.DeleteDocument(context.Background(), "a.md")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func click(url, text string, at time.Time) models.LinkClick {
	return models.LinkClick{LinkURL: url, LinkText: text, ClickedAt: at}
}

func TestLinkClickStatsAggregation(t *testing.T) {
	now := time.Now()
	// Newest first, matching the store's ordering.
	fake := &adminFake{clicks: []models.LinkClick{
		click("https://a.example", "Pricing", now),
		click("https://b.example", "Docs", now.Add(-time.Minute)),
		click("https://a.example", "Old pricing", now.Add(-time.Hour)),
		click("https://a.example", "", now.Add(-2*time.Hour)),
		click("https://c.example", "", now.Add(-3*time.Hour)),
	}}
	svc := NewAdminService(fake, nil)

	page, err := svc.LinkClickStats(context.Background(), 1, 10, "")
	require.NoError(t, err)

	assert.Equal(t, 5, page.TotalClicks)
	assert.Equal(t, 3, page.UniqueLinks)
	require.Len(t, page.MostClickedLinks, 3)

	top := page.MostClickedLinks[0]
	assert.Equal(t, "https://a.example", top.URL)
	assert.Equal(t, 3, top.ClickCount)
	// The newest click supplies the display text and timestamp.
	assert.Equal(t, "Pricing", top.Text)
	assert.Equal(t, now, top.LastClicked)

	// A URL whose clicks all lack text gets a placeholder.
	assert.Equal(t, "No text", page.MostClickedLinks[2].Text)
}

func TestLinkClickStatsSearchAndPaging(t *testing.T) {
	now := time.Now()
	fake := &adminFake{clicks: []models.LinkClick{
		click("https://a.example/pricing", "Pricing page", now),
		click("https://b.example/docs", "Documentation", now),
		click("https://c.example/faq", "FAQ", now),
	}}
	svc := NewAdminService(fake, nil)

	page, err := svc.LinkClickStats(context.Background(), 1, 10, "PRIC")
	require.NoError(t, err)
	require.Len(t, page.MostClickedLinks, 1)
	assert.Equal(t, "https://a.example/pricing", page.MostClickedLinks[0].URL)
	// Totals describe the whole dataset, not the filtered page.
	assert.Equal(t, 3, page.TotalClicks)
	assert.Equal(t, 3, page.UniqueLinks)

	second, err := svc.LinkClickStats(context.Background(), 2, 2, "")
	require.NoError(t, err)
	assert.Len(t, second.MostClickedLinks, 1)
	assert.Equal(t, 2, second.Pagination.Pages)
}

func TestStats(t *testing.T) {
	fake := &adminFake{
		sessionCount:  40,
		activeCount:   7,
		messagesToday: 19,
		avgLength:     3.14159,
	}
	svc := NewAdminService(fake, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, stats.TotalConversations)
	assert.Equal(t, 7, stats.ActiveSessions)
	assert.Equal(t, 19, stats.MessagesToday)
	assert.Equal(t, 3.14, stats.AverageLength)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% sure`, escapeLike(`100% sure`))
	assert.Equal(t, `snake\_case`, escapeLike(`snake_case`))
	assert.Equal(t, `back\\slash`, escapeLike(`back\slash`))
	assert.Equal(t, `plain`, escapeLike(`plain`))
}
