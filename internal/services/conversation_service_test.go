package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/models"
)

// memStore is an in-memory ConversationStore for service tests.
type memStore struct {
	sessions map[string]*models.ChatSession
	messages map[string][]models.ChatMessage
	clicks   []models.LinkClick
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]*models.ChatSession{},
		messages: map[string][]models.ChatMessage{},
	}
}

func (m *memStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	now := time.Now()
	m.sessions[session.ID] = &models.ChatSession{
		ID: session.ID, UserID: session.UserID, CreatedAt: now, UpdatedAt: now,
	}
	return nil
}

func (m *memStore) TouchSession(ctx context.Context, id string) error {
	if s, ok := m.sessions[id]; ok {
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memStore) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	out := make([]models.ChatSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	return out, nil
}

func (m *memStore) ExistingSequenceOrders(ctx context.Context, sessionID string) (map[int]struct{}, error) {
	out := map[int]struct{}{}
	for _, msg := range m.messages[sessionID] {
		out[msg.SequenceOrder] = struct{}{}
	}
	return out, nil
}

func (m *memStore) InsertMessages(ctx context.Context, msgs []models.ChatMessage) error {
	for _, msg := range msgs {
		m.nextID++
		msg.ID = m.nextID
		msg.CreatedAt = time.Now()
		m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	}
	return nil
}

func (m *memStore) GetMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	msgs := append([]models.ChatMessage(nil), m.messages[sessionID]...)
	sort.Slice(msgs, func(a, b int) bool { return msgs[a].SequenceOrder < msgs[b].SequenceOrder })
	return msgs, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) DeleteSessionsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			delete(m.messages, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) InsertLinkClick(ctx context.Context, click *models.LinkClick) error {
	c := *click
	c.ClickedAt = time.Now()
	m.clicks = append(m.clicks, c)
	return nil
}

func incoming(roles ...string) []models.IncomingMessage {
	out := make([]models.IncomingMessage, 0, len(roles))
	for i, r := range roles {
		out = append(out, models.IncomingMessage{Role: r, Content: "message " + string(rune('a'+i))})
	}
	return out
}

func TestStoreMessagesCreatesSessionAndAssignsOrder(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)

	err := svc.StoreMessages(context.Background(), "s1", "u1",
		incoming(models.RoleUser, models.RoleAssistant, models.RoleUser))
	require.NoError(t, err)

	require.Contains(t, store.sessions, "s1")
	assert.Equal(t, "u1", store.sessions["s1"].UserID)

	msgs, _ := store.GetMessagesBySession(context.Background(), "s1")
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, i, msg.SequenceOrder)
	}
}

func TestStoreMessagesIncrementalAppend(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.StoreMessages(ctx, "s1", "u1",
		incoming(models.RoleUser, models.RoleAssistant)))

	// The UI resends the whole transcript; only the new tail is inserted.
	require.NoError(t, svc.StoreMessages(ctx, "s1", "u1",
		incoming(models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant)))

	msgs, _ := store.GetMessagesBySession(ctx, "s1")
	require.Len(t, msgs, 4)
	for i, msg := range msgs {
		assert.Equal(t, i, msg.SequenceOrder)
	}
}

func TestStoreMessagesRetryDoesNotDuplicate(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)
	ctx := context.Background()

	batch := incoming(models.RoleUser, models.RoleAssistant)
	require.NoError(t, svc.StoreMessages(ctx, "s1", "u1", batch))
	require.NoError(t, svc.StoreMessages(ctx, "s1", "u1", batch))

	msgs, _ := store.GetMessagesBySession(ctx, "s1")
	assert.Len(t, msgs, 2)
}

func TestStoreMessagesOwnerMismatch(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.StoreMessages(ctx, "s1", "alice", incoming(models.RoleUser)))

	err := svc.StoreMessages(ctx, "s1", "mallory", incoming(models.RoleUser))
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestStoreMessagesRejectsInvalidRole(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)

	err := svc.StoreMessages(context.Background(), "s1", "u1",
		[]models.IncomingMessage{{Role: "oracle", Content: "hi"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid message role")
}

func TestDeleteSessionOwnerChecks(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.StoreMessages(ctx, "s1", "alice", incoming(models.RoleUser)))

	assert.ErrorIs(t, svc.DeleteSession(ctx, "missing", "alice"), ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, "s1", "mallory"), ErrOwnerMismatch)

	require.NoError(t, svc.DeleteSession(ctx, "s1", "alice"))
	assert.NotContains(t, store.sessions, "s1")
	assert.Empty(t, store.messages["s1"])
}

func TestDeleteAllSessionsRequiresUser(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)
	ctx := context.Background()

	_, err := svc.DeleteAllSessions(ctx, "")
	assert.Error(t, err)

	require.NoError(t, svc.StoreMessages(ctx, "s1", "alice", incoming(models.RoleUser)))
	require.NoError(t, svc.StoreMessages(ctx, "s2", "alice", incoming(models.RoleUser)))
	require.NoError(t, svc.StoreMessages(ctx, "s3", "bob", incoming(models.RoleUser)))

	n, err := svc.DeleteAllSessions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, store.sessions, "s3")
}

func TestRecordLinkClickRequiresSession(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store, nil)
	ctx := context.Background()

	click := &models.LinkClick{SessionID: "nope", MessageID: "m1", LinkURL: "https://example.com"}
	assert.ErrorIs(t, svc.RecordLinkClick(ctx, click), ErrSessionNotFound)

	require.NoError(t, svc.StoreMessages(ctx, "s1", "u1", incoming(models.RoleUser)))
	click.SessionID = "s1"
	require.NoError(t, svc.RecordLinkClick(ctx, click))
	require.Len(t, store.clicks, 1)
	assert.Equal(t, "https://example.com", store.clicks[0].LinkURL)
}
