// Package main is the entrypoint for the Tracklight ingestion server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tracklight/tracklight/internal/alerts"
	"github.com/tracklight/tracklight/internal/api"
	"github.com/tracklight/tracklight/internal/api/handler"
	"github.com/tracklight/tracklight/internal/api/response"
	"github.com/tracklight/tracklight/internal/broker"
	"github.com/tracklight/tracklight/internal/cache"
	"github.com/tracklight/tracklight/internal/config"
	"github.com/tracklight/tracklight/internal/ingest"
	"github.com/tracklight/tracklight/internal/ratelimit"
	"github.com/tracklight/tracklight/internal/store"
	"github.com/tracklight/tracklight/internal/symbolication"
	"github.com/tracklight/tracklight/internal/worker"
	"github.com/tracklight/tracklight/internal/ws"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "async_workers", cfg.Worker.Async)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Kafka producer for the analytics hand-off
	producer := broker.NewProducer(cfg.Kafka, logger)
	defer producer.Close()
	slog.Info("kafka producer ready", "brokers", cfg.Kafka.Brokers)

	// 7. Live event hub
	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, projectChecker{pgStore}, logger)

	// 8. Ingest pipeline pieces
	symEngine := symbolication.NewEngine(pgStore, logger)
	dispatcher := alerts.NewDispatcher(cfg.Alerts, logger)
	alertEngine := alerts.NewEngine(pgStore, dispatcher, logger)

	var submitter worker.Submitter = worker.Direct{}
	if cfg.Worker.Async {
		workers := worker.NewPool(cfg.Worker.Size, logger)
		defer workers.Close()
		submitter = workers
	}

	limiter := ratelimit.New(redisCache, cfg.RateLimit.EventsPerMinute, time.Minute)
	svc := ingest.NewService(pgStore, limiter, symEngine, alertEngine, submitter, producer, hub, logger)

	// 9. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler:        healthHandler(pgStore, redisCache),
		IngestBySlugHandler:  handler.NewIngestBySlugHandler(svc),
		IngestByTokenHandler: handler.NewIngestByTokenHandler(svc),
		SessionIngestHandler: handler.NewSessionIngestHandler(svc),
		SymbolicateHandler:   handler.NewSymbolicateHandler(pgStore, symEngine),
		GroupActionHandler:   handler.NewGroupActionHandler(pgStore),
		AlertSnoozeHandler:   handler.NewAlertSnoozeHandler(pgStore, true),
		AlertUnsnoozeHandler: handler.NewAlertSnoozeHandler(pgStore, false),
		ArtifactHandler:      handler.NewArtifactUploadHandler(pgStore),
		WSHandler:            wsHandler.ServeHTTP,
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// projectChecker adapts the store to the hub's existence check.
type projectChecker struct {
	store store.Store
}

func (p projectChecker) ProjectExists(ctx context.Context, slug string) (bool, error) {
	_, err := p.store.GetProjectBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
