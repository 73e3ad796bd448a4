package locale

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/transport-university/chatbot/backend/internal/model/locale"
	"github.com/transport-university/chatbot/backend/pkg/utils"
)

// Handler serves the locale catalogs.
type Handler struct {
	catalogs locale.Store
}

// New creates a locale handler.
func New(catalogs locale.Store) *Handler {
	return &Handler{catalogs: catalogs}
}

// RegisterRoutes mounts the locale routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/locales", h.handleList)
	r.Get("/locales/current", h.handleCurrent)
}

// handleList lists every catalog.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.catalogs.List())
}

// handleCurrent negotiates a catalog from Accept-Language.
func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	catalog := h.catalogs.Match(r.Header.Get("Accept-Language"))
	w.Header().Set("Content-Language", catalog.Tag)
	w.Header().Add("Vary", "Accept-Language")
	utils.RespondJSON(w, http.StatusOK, catalog)
}
