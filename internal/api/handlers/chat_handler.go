package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatppc/chatppc/internal/api/middlewares"
	"github.com/chatppc/chatppc/internal/models"
	"github.com/chatppc/chatppc/internal/services"
)

// ChatHandler serves the chat UI's session, history and link-click
// endpoints.
type ChatHandler struct {
	conversations *services.ConversationService
}

func NewChatHandler(conversations *services.ConversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

type storeMessagesRequest struct {
	SessionID string                   `json:"sessionId"`
	Messages  []models.IncomingMessage `json:"messages"`
}

// StoreMessages persists the conversation the UI sends after each turn.
func (h *ChatHandler) StoreMessages(w http.ResponseWriter, r *http.Request) {
	var req storeMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Messages are required and must be an array")
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.conversations.StoreMessages(r.Context(), req.SessionID, userID, req.Messages); err != nil {
		if errors.Is(err, services.ErrOwnerMismatch) {
			writeError(w, http.StatusForbidden, "session belongs to another user")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessionId": req.SessionID})
}

// History returns all messages of a session in replay order.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	msgs, err := h.conversations.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// Sessions lists all chat sessions, most recently updated first.
func (h *ChatHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.conversations.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// DeleteSessions removes one session (?sessionId=) or every session the
// current user owns (?all=true).
func (h *ChatHandler) DeleteSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	sessionID := r.URL.Query().Get("sessionId")
	deleteAll := r.URL.Query().Get("all") == "true"

	switch {
	case deleteAll:
		if _, err := h.conversations.DeleteAllSessions(r.Context(), userID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All sessions deleted"})
	case sessionID != "":
		err := h.conversations.DeleteSession(r.Context(), sessionID, userID)
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, services.ErrOwnerMismatch):
			writeError(w, http.StatusForbidden, "You don't have permission to delete this session")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session deleted"})
		}
	default:
		writeError(w, http.StatusBadRequest, "Either sessionId or all=true is required")
	}
}

type linkClickRequest struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	LinkURL   string `json:"linkUrl"`
	LinkText  string `json:"linkText"`
}

// RecordLinkClick logs a click on a link the assistant provided.
func (h *ChatHandler) RecordLinkClick(w http.ResponseWriter, r *http.Request) {
	var req linkClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.MessageID == "" || req.LinkURL == "" {
		writeError(w, http.StatusBadRequest, "Session ID, message ID, and link URL are required")
		return
	}

	click := &models.LinkClick{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		LinkURL:   req.LinkURL,
		LinkText:  req.LinkText,
		UserID:    middleware.UserID(r.Context()),
	}
	if err := h.conversations.RecordLinkClick(r.Context(), click); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound,
				"Cannot log link click - chat session does not exist yet. Please send a message first.")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
