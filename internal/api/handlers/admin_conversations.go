package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatppc/chatppc/internal/services"
)

// AdminConversationHandler exposes the admin view over stored
// conversations.
type AdminConversationHandler struct {
	admin *services.AdminService
}

func NewAdminConversationHandler(admin *services.AdminService) *AdminConversationHandler {
	return &AdminConversationHandler{admin: admin}
}

// List returns a paginated conversation overview, optionally filtered
// by a content search term.
func (h *AdminConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 0)
	search := r.URL.Query().Get("search")

	result, err := h.admin.ListConversations(r.Context(), page, limit, search)
	if err != nil {
		if errors.Is(err, services.ErrSearchTooLong) {
			writeError(w, http.StatusBadRequest, "Search term too long")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get returns a single conversation with its full message history.
func (h *AdminConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.admin.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Delete removes a conversation and its messages.
func (h *AdminConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.admin.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation deleted"})
}
