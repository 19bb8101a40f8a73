// presenced - local presence agent for the LumaMeet product
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumameet/presenced/internal/api"
	"github.com/lumameet/presenced/internal/config"
	"github.com/lumameet/presenced/internal/geo"
	"github.com/lumameet/presenced/internal/identity"
	"github.com/lumameet/presenced/internal/middleware"
	"github.com/lumameet/presenced/internal/presence"
	"github.com/lumameet/presenced/internal/push"
	"github.com/lumameet/presenced/internal/state"
	"github.com/lumameet/presenced/internal/transport"
	"github.com/lumameet/presenced/web"
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

	slog.Info("Starting agent", "port", cfg.Port, "api", cfg.APIBaseURL, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	store, err := state.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close state store", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	deviceID, err := identity.Ensure(context.Background(), store)
	if err != nil {
		slog.Error("Failed to establish device identity", "error", err)
		os.Exit(1)
	}
	slog.Info("Device identity ready", "device_id", deviceID)

	apiClient, err := transport.NewClient(cfg.APIBaseURL, deviceID, cfg.HTTPTimeout)
	if err != nil {
		slog.Error("Failed to initialize API client", "error", err)
		os.Exit(1)
	}

	pushClient := push.NewClient(cfg.ResolvedPushURL(), deviceID)

	provider := geo.FromConfig(cfg.Geo)
	if provider == nil {
		slog.Warn("Geolocation disabled; check-ins will be rejected")
	}

	presenceStore := presence.NewStore()
	orc := presence.NewOrchestrator(apiClient, pushClient, provider, presenceStore, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Maintain the push channel in the background; the orchestrator joins
	// and leaves rooms through it.
	go pushClient.Run(ctx)

	if err := orc.Start(ctx); err != nil {
		slog.Warn("Failed to restore persisted session", "error", err)
	}

	presence.StartExpiryWorker(ctx, orc, cfg.SweepEvery)

	// Initialize handlers.
	baseHandler := api.NewHandler(orc, cfg.IsDevelopment())
	streamHandler := api.NewStreamHandler(presenceStore, cfg.UIOrigin, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(middleware.Metrics)

	baseHandler.RegisterRoutes(r)

	// Live update stream for the UI shell.
	r.Get("/api/stream", streamHandler.ServeHTTP)

	r.Handle("/metrics", promhttp.Handler())

	// Serve embedded UI shell (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// Note: the stream endpoint holds connections open (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

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

	// Leave the push room cleanly; the persisted session survives for the
	// next start.
	orc.Stop(shutdownCtx)
	pushClient.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Agent stopped successfully")
}
