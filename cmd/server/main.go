// convopilot - conversation context assembly and continuity server
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

	"github.com/akulov/convopilot/internal/api"
	"github.com/akulov/convopilot/internal/assembly"
	"github.com/akulov/convopilot/internal/config"
	"github.com/akulov/convopilot/internal/identity"
	"github.com/akulov/convopilot/internal/llm"
	"github.com/akulov/convopilot/internal/middleware"
	"github.com/akulov/convopilot/internal/session"
	"github.com/akulov/convopilot/internal/store"
	"github.com/akulov/convopilot/internal/stream"
	"github.com/akulov/convopilot/internal/vault"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "admin_mode", cfg.AdminMode)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
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

	var cipher vault.Cipher = vault.Noop{}
	if cfg.VaultKey != "" {
		box, err := vault.NewBox(cfg.VaultKey)
		if err != nil {
			slog.Error("Failed to initialize vault", "error", err)
			os.Exit(1)
		}
		cipher = box
		slog.Info("Message vault enabled")
	}

	client, err := llm.NewHTTPClient(llm.Config{
		BaseURL:        cfg.Session.BaseURL,
		APIKey:         cfg.Session.APIKey,
		Model:          cfg.Session.Model,
		RequestTimeout: cfg.Session.RequestTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize session api client", "error", err)
		os.Exit(1)
	}

	builder := assembly.NewBuilder(repo, cipher, nil, cfg.AdminMode)
	engine := session.NewManager(repo, client, builder, logger)
	if err := engine.Warm(context.Background()); err != nil {
		slog.Error("Failed to warm session cache", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	streamHandler := stream.NewHandler(cfg.FrontendURL, cfg.IsDevelopment(), logger)
	apiHandler := api.NewHandler(repo, engine, streamHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware())

	apiHandler.RegisterRoutes(r)
	r.Get("/ws/suggestions", streamHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
