package models

import (
	"encoding/json"
	"time"
)

// ChunkMetadata is the typed metadata attached to every stored chunk.
// Source and Hash are required for ingested chunks; Title is optional.
// Extra preserves any additional keys found in stored JSON so round-trips
// through the database are lossless.
type ChunkMetadata struct {
	Source string
	Hash   string
	Title  string
	Extra  map[string]any
}

// MarshalJSON flattens Extra into the top-level object alongside the
// required keys.
func (m ChunkMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	if m.Hash != "" {
		out["hash"] = m.Hash
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	return json.Marshal(out)
}

func (m *ChunkMetadata) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["source"].(string); ok {
		m.Source = v
	}
	if v, ok := raw["hash"].(string); ok {
		m.Hash = v
	}
	if v, ok := raw["title"].(string); ok {
		m.Title = v
	}
	delete(raw, "source")
	delete(raw, "hash")
	delete(raw, "title")
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// DocumentChunk is one stored slice of a document's text.
// The embedding is populated on insert and similarity search; listing
// queries leave it nil.
type DocumentChunk struct {
	ID        int64         `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"-"`
}

// ChatSession is one conversation thread. IDs are client-generated.
// UserID is empty for sessions created before an owner was known.
type ChatSession struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `json:"user_id,omitempty"`
}

// Message roles accepted by the store.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ChatMessage belongs to exactly one session. SequenceOrder is zero-based
// and unique within the session; it defines replay order.
type ChatMessage struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"session_id"`
	Role          string          `json:"role"`
	Content       string          `json:"content"`
	ToolCalls     json.RawMessage `json:"tool_calls,omitempty"`
	SequenceOrder int             `json:"sequence_order"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IncomingMessage is the wire shape the chat UI sends when storing a
// conversation. Sequence order is assigned by position in the array.
type IncomingMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// LinkClick records a user clicking a link the assistant provided.
// MessageID is the client-side message identifier, not a chat_messages row.
type LinkClick struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id"`
	LinkURL   string    `json:"link_url"`
	LinkText  string    `json:"link_text,omitempty"`
	ClickedAt time.Time `json:"clicked_at"`
	UserID    string    `json:"user_id,omitempty"`
}

// Pagination is attached to every paginated admin response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// MessagePreview is a truncated first user message shown in listings.
type MessagePreview struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// ConversationSummary is one row of the admin conversation listing.
type ConversationSummary struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	MessageCount int             `json:"message_count"`
	FirstMessage *MessagePreview `json:"first_message"`
}

// DocumentInfo groups chunks that share a source.
type DocumentInfo struct {
	Source     string `json:"source"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunkCount"`
}

// ChunkDetail is one chunk row in a document detail response.
type ChunkDetail struct {
	ID         string        `json:"id"`
	ChunkIndex int           `json:"chunkIndex"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// LinkStat is one aggregated row of the link-click analytics view.
type LinkStat struct {
	URL         string    `json:"url"`
	Text        string    `json:"text"`
	ClickCount  int       `json:"clickCount"`
	LastClicked time.Time `json:"lastClicked"`
}

// UsageStats holds the admin dashboard headline numbers.
type UsageStats struct {
	TotalConversations int     `json:"totalConversations"`
	ActiveSessions     int     `json:"activeSessions"`
	MessagesToday      int     `json:"messagesToday"`
	AverageLength      float64 `json:"averageLength"`
}
