package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/transport-university/chatbot/backend/internal/service/chat"
	"github.com/transport-university/chatbot/backend/pkg/utils"
)

// Handler serves the admin statistics.
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

// New creates a dashboard handler.
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	return &Handler{chatSvc: chatSvc, logger: logger.With("component", "dashboard-handler")}
}

// RegisterRoutes mounts the dashboard route. The caller mounts admin checks.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleStats)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chatSvc.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}
