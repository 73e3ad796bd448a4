package auth

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/transport-university/chatbot/backend/internal/middleware"
	"github.com/transport-university/chatbot/backend/internal/model/user"
	authService "github.com/transport-university/chatbot/backend/internal/service/auth"
	"github.com/transport-university/chatbot/backend/internal/store"
	"github.com/transport-university/chatbot/backend/pkg/utils"
)

// Handler serves account registration and login.
type Handler struct {
	authSvc *authService.Service
	logger  *slog.Logger
}

// New creates an account handler.
func New(authSvc *authService.Service, logger *slog.Logger) *Handler {
	return &Handler{
		authSvc: authSvc,
		logger:  logger.With("component", "auth-handler"),
	}
}

// RegisterRoutes mounts the public account routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/login/json", h.handleLogin)
}

// RegisterProtectedRoutes mounts the routes that need a token.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", h.handleMe)
}

// handleRegister creates an account.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload user.RegisterRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.authSvc.Register(r.Context(), payload)
	switch {
	case err == nil:
		h.logger.Info("user registered", "user", u.ID, "admin", u.IsAdmin)
		utils.RespondJSON(w, http.StatusCreated, u.Public())
	case errors.Is(err, store.ErrUserExists):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authService.ErrInvalidUsername),
		errors.Is(err, authService.ErrInvalidEmail),
		errors.Is(err, authService.ErrWeakPassword):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("register failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleLogin checks credentials and issues a token. Form and JSON bodies are both accepted.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload user.LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		payload.Username = r.PostForm.Get("username")
		payload.Password = r.PostForm.Get("password")
	} else if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.authSvc.Login(r.Context(), payload)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, token)
	case errors.Is(err, authService.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authService.ErrInactive):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("login failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleMe returns the current user.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, middleware.NotAuthenticated)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u.Public())
}
