package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/transport-university/chatbot/backend/internal/middleware"
	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	chatService "github.com/transport-university/chatbot/backend/internal/service/chat"
	"github.com/transport-university/chatbot/backend/internal/store"
	"github.com/transport-university/chatbot/backend/pkg/utils"
)

// Handler serves the exchange log over HTTP.
type Handler struct {
	chatSvc  *chatService.Service
	catalogs locale.Store
	metrics  *middleware.Metrics
	logger   *slog.Logger
}

// New creates a chat handler.
func New(chatSvc *chatService.Service, catalogs locale.Store, metrics *middleware.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		catalogs: catalogs,
		metrics:  metrics,
		logger:   logger.With("component", "chat-handler"),
	}
}

// RegisterRoutes mounts the chat routes. The caller mounts authentication.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/chat/send", h.handleSend)
	r.Post("/chat/save", h.handleSave)
	r.Get("/chat/history", h.handleHistory)
	r.Delete("/chat/history/{id}", h.handleDelete)
}

// handleSend stores the question and returns the reply.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())

	var payload chat.SendRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		h.observe(middleware.OutcomeRejected)
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	catalog := h.catalogs.Match(r.Header.Get("Accept-Language"))
	ex, err := h.chatSvc.Send(r.Context(), u.ID, payload, catalog)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadRequest {
			h.observe(middleware.OutcomeRejected)
		} else {
			h.observe(middleware.OutcomeFailed)
		}
		h.fail(w, r, status, err)
		return
	}
	h.observe(middleware.OutcomeAnswered)

	utils.RespondJSON(w, http.StatusOK, chat.SendResponse{
		ChatID:    ex.ID,
		Message:   ex.Message,
		Response:  *ex.Response,
		Timestamp: ex.CreatedAt,
	})
}

// handleSave stores a pair answered elsewhere.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())

	var payload chat.SaveRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ex, err := h.chatSvc.Save(r.Context(), u.ID, payload)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, ex)
}

// handleHistory returns one page of history.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	page, err := h.chatSvc.History(r.Context(), u.ID, limit, offset)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, page)
}

// handleDelete removes one exchange owned by the caller.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "invalid exchange id")
		return
	}

	if err := h.chatSvc.Delete(r.Context(), u.ID, id); err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed", "path", r.URL.Path, "status", status, "err", err)
		if status == http.StatusInternalServerError {
			message = "internal error"
		} else {
			message = chatService.ErrNoReply.Error()
		}
	}
	utils.RespondError(w, status, message)
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveExchange(outcome)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrMessageEmpty),
		errors.Is(err, chatService.ErrMessageTooLong),
		errors.Is(err, chatService.ErrInvalidLimit),
		errors.Is(err, chatService.ErrInvalidOffset):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrExchangeNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrNoReply):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
