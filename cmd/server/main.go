// GitSight - repository understanding chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Saail289/gitsight/internal/api"
	"github.com/Saail289/gitsight/internal/assistant"
	"github.com/Saail289/gitsight/internal/chat"
	"github.com/Saail289/gitsight/internal/config"
	"github.com/Saail289/gitsight/internal/events"
	"github.com/Saail289/gitsight/internal/identity"
	"github.com/Saail289/gitsight/internal/middleware"
	"github.com/Saail289/gitsight/internal/store"
	"github.com/Saail289/gitsight/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DBDriver)

	// Initialize dependencies.
	repo, err := store.Open(cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	backend := assistant.New(cfg.AssistantAPIURL, logger)

	// Probe the assistant once at startup. Failures are logged, not
	// fatal: the backend can come up after this server does.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := backend.Health(probeCtx); err != nil {
		slog.Warn("Assistant backend unreachable at startup", "error", err, "url", cfg.AssistantAPIURL)
	} else {
		slog.Info("Assistant backend connected", "url", cfg.AssistantAPIURL)
	}
	probeCancel()

	transcript := chat.NewTranscriptLogger(cfg.Transcript)
	defer transcript.Close()

	hub := events.NewHub()

	// Initialize handlers.
	chatHandler := chat.NewHandler(repo, backend, hub, transcript, cfg)
	systemHandler := api.NewSystemHandler(repo, backend, hub, cfg)
	healthHandler := api.NewHealthHandler(repo, backend)
	eventsHandler := events.NewHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment(), "/api/health", "/ping"))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	chatHandler.RegisterRoutes(r)
	systemHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/events", eventsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// No WriteTimeout: assistant queries can run long and the response
	// is not written until they finish.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat.StartRetentionWorker(ctx, repo, cfg.SessionRetention)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
