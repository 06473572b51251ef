// Package main is the entrypoint for the RepoPulse API server.
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

	"github.com/repopulse/repopulse/internal/analysis"
	"github.com/repopulse/repopulse/internal/api"
	"github.com/repopulse/repopulse/internal/api/handler"
	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/auth"
	"github.com/repopulse/repopulse/internal/cache"
	"github.com/repopulse/repopulse/internal/config"
	"github.com/repopulse/repopulse/internal/github"
	"github.com/repopulse/repopulse/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

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

	// 5. Create store and services
	pgStore := store.NewPostgresStore(pool)

	cipher, err := auth.NewTokenCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		return fmt.Errorf("create token cipher: %w", err)
	}

	authSvc := auth.NewService(pgStore, auth.Config{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		RedirectURL:  cfg.GitHub.RedirectURL,
		JWTSecret:    cfg.Auth.JWTSecret,
		AccessTTL:    cfg.Auth.AccessTokenTTL,
		RefreshTTL:   cfg.Auth.RefreshTokenTTL,
	})

	ghClient := github.NewCachingClient(
		github.NewHTTPClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Timeout),
		redisCache, cfg.GitHub.CacheTTL)

	orchestrator := analysis.NewOrchestrator(pgStore, redisCache, cipher, cfg.Jobs.MaxAttempts)
	aggregator := analysis.NewAggregator(pgStore)
	monitor := analysis.NewMonitor(orchestrator, aggregator)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(authSvc, pgStore),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: healthHandler(pgStore, redisCache),

		GithubURLHandler:      handler.NewGithubURLHandler(authSvc),
		GithubCallbackHandler: handler.NewGithubCallbackHandler(authSvc),
		RefreshHandler:        handler.NewRefreshHandler(authSvc),

		CreateContextHandler:     handler.NewCreateContextHandler(pgStore),
		ListContextsHandler:      handler.NewListContextsHandler(pgStore),
		GetContextHandler:        handler.NewGetContextHandler(pgStore),
		DeactivateContextHandler: handler.NewDeactivateContextHandler(pgStore),

		GetRepoHandler:      handler.NewGetRepoHandler(ghClient),
		ListBranchesHandler: handler.NewListBranchesHandler(ghClient),
		GetCommitHandler:    handler.NewGetCommitHandler(ghClient),

		StartAnalysisHandler: handler.NewStartAnalysisHandler(orchestrator),
		ListJobsHandler:      handler.NewListJobsHandler(orchestrator),
		GetJobHandler:        handler.NewGetJobHandler(orchestrator),
		CancelHandler:        handler.NewCancelHandler(orchestrator),

		WorkerStatusHandler: handler.NewWorkerStatusHandler(orchestrator),
		StuckJobsHandler:    handler.NewStuckJobsHandler(monitor),
		JobHealthHandler:    handler.NewJobHealthHandler(monitor),
		AutoFixHandler:      handler.NewAutoFixHandler(monitor),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
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
