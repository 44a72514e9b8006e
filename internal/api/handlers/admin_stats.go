package handlers

import (
	"net/http"

	"github.com/chatppc/chatppc/internal/services"
)

// AdminStatsHandler serves the dashboard usage counters.
type AdminStatsHandler struct {
	admin *services.AdminService
}

func NewAdminStatsHandler(admin *services.AdminService) *AdminStatsHandler {
	return &AdminStatsHandler{admin: admin}
}

func (h *AdminStatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
