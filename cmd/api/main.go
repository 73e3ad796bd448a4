package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/transport-university/chatbot/backend/internal/config"
	"github.com/transport-university/chatbot/backend/internal/handler"
	"github.com/transport-university/chatbot/backend/internal/middleware"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	"github.com/transport-university/chatbot/backend/internal/service/ai"
	"github.com/transport-university/chatbot/backend/internal/service/auth"
	"github.com/transport-university/chatbot/backend/internal/service/chat"
	"github.com/transport-university/chatbot/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.LogLevel}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", "err", envErr)
	}

	repo, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("store ready", "driver", cfg.Store.Driver)

	catalogs := locale.NewMemoryStore(locale.Seed())

	var responder chat.Responder = ai.CannedResponder{}
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn("failed to initialize AI service, answering with fallback sentences", "err", err)
		} else {
			responder = aiService
			logger.Info("AI service initialized", "model", cfg.AI.Model, "history_limit", cfg.AI.HistoryLimit)
		}
	} else {
		logger.Info("Ark credentials not configured, answering with fallback sentences")
	}

	chatService := chat.NewService(repo, responder, chat.Options{
		HistoryLimit: cfg.AI.HistoryLimit,
		Logger:       logger,
	})
	authService := auth.NewService(repo, cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.AdminUsernames)

	limiter := middleware.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)
	go limiter.Run(time.Minute, ctx.Done())

	router := handler.NewRouter(handler.Deps{
		Catalogs:       catalogs,
		ChatSvc:        chatService,
		AuthSvc:        authService,
		Metrics:        middleware.NewMetrics(),
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         repo.Ping,
		Logger:         logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Repository, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		return store.NewSQLite(cfg.SQLitePath)
	case config.StoreRedis:
		return store.NewRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	logger.Info("chat backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
