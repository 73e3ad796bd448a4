package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/transport-university/chatbot/backend/internal/handler/auth"
	"github.com/transport-university/chatbot/backend/internal/handler/chat"
	"github.com/transport-university/chatbot/backend/internal/handler/dashboard"
	"github.com/transport-university/chatbot/backend/internal/handler/live"
	localeHandler "github.com/transport-university/chatbot/backend/internal/handler/locale"
	middlewarePkg "github.com/transport-university/chatbot/backend/internal/middleware"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	authService "github.com/transport-university/chatbot/backend/internal/service/auth"
	chatService "github.com/transport-university/chatbot/backend/internal/service/chat"
	"github.com/transport-university/chatbot/backend/pkg/utils"
)

// Deps collects what the router needs.
type Deps struct {
	Catalogs       locale.Store
	ChatSvc        *chatService.Service
	AuthSvc        *authService.Service
	Metrics        *middlewarePkg.Metrics
	Limiter        *middlewarePkg.RateLimiter
	AllowedOrigins []string
	Health         func(ctx context.Context) error
	Logger         *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(d.AllowedOrigins))
	r.Use(d.Metrics.Instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				d.Logger.Error("health check failed", "err", err)
				utils.RespondError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	// Create handlers
	authH := authHandler.New(d.AuthSvc, d.Logger)
	chatH := chat.New(d.ChatSvc, d.Catalogs, d.Metrics, d.Logger)
	liveH := live.NewWebSocketHandler(d.ChatSvc, d.Catalogs, d.Metrics, d.AllowedOrigins, d.Logger)
	dashboardH := dashboard.New(d.ChatSvc, d.Logger)

	r.Route("/api", func(api chi.Router) {
		localeHandler.New(d.Catalogs).RegisterRoutes(api)
		authH.RegisterRoutes(api)

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.RequireAuth(d.AuthSvc, d.Logger))

			authH.RegisterProtectedRoutes(protected)
			chatH.RegisterRoutes(protected, d.Limiter.Limit)
			liveH.RegisterRoutes(protected)

			protected.Group(func(admin chi.Router) {
				admin.Use(middlewarePkg.RequireAdmin)
				dashboardH.RegisterRoutes(admin)
			})
		})
	})

	return r
}
