package handlers

import (
	"net/http"

	"github.com/chatppc/chatppc/internal/services"
)

// AdminLinkHandler reports which assistant-provided links users click.
type AdminLinkHandler struct {
	admin *services.AdminService
}

func NewAdminLinkHandler(admin *services.AdminService) *AdminLinkHandler {
	return &AdminLinkHandler{admin: admin}
}

// Stats returns link-click aggregates grouped by URL.
func (h *AdminLinkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 0)
	search := r.URL.Query().Get("search")

	result, err := h.admin.LinkClickStats(r.Context(), page, limit, search)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
