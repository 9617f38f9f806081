// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

// Command api is the entry point for the Tankobon HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Connect to blob storage (S3-compatible).
//  7. Wire domain services and HTTP handlers.
//  8. Start the reconcile worker and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
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

	"github.com/tankobonhq/tankobon/internal/api"
	"github.com/tankobonhq/tankobon/internal/core/ingest"
	"github.com/tankobonhq/tankobon/internal/core/reader"
	"github.com/tankobonhq/tankobon/internal/core/series"
	"github.com/tankobonhq/tankobon/internal/platform/config"
	"github.com/tankobonhq/tankobon/internal/platform/constants"
	"github.com/tankobonhq/tankobon/internal/platform/migration"
	pgstore "github.com/tankobonhq/tankobon/internal/platform/postgres"
	redisstore "github.com/tankobonhq/tankobon/internal/platform/redis"
	"github.com/tankobonhq/tankobon/internal/platform/sec"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
	"github.com/tankobonhq/tankobon/internal/users/account"
	"github.com/tankobonhq/tankobon/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "tankobon"))
	slog.SetDefault(log)

	log.Info("[Tankobon] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "tankobon"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Blob Storage ───────────────────────────────────────────────────
	blobStore, err := blob.NewS3Store(startupCtx, blob.Options{
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		PublicBase: cfg.PublicAssetBase,
	}, log)
	must(log, err, "connect to blob storage")

	// ── 7. Token Service ──────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
		CheckStorage: func() error {
			return blobStore.Healthy(context.Background())
		},
	}, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	seriesRepository := series.NewPostgresRepository(pool)
	releaseRepository := series.NewPostgresReleaseRepository(pool)
	chapterCache := reader.NewCache(rdb, log)

	reconciler := ingest.NewReconciler(seriesRepository, releaseRepository, blobStore, chapterCache, log)

	seriesService := series.NewService(seriesRepository, releaseRepository, chapterCache, log)
	ingestService := ingest.NewService(blobStore, seriesRepository, reconciler, log)
	readerService := reader.NewService(seriesRepository, releaseRepository, blobStore, chapterCache, log)

	accountRepository := auth.NewAccountRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	sessionCache := auth.NewSessionCache(rdb)
	resetTokenRepository := auth.NewResetTokenRepository(rdb)
	authService := auth.NewService(accountRepository, sessionRepository, sessionCache, resetTokenRepository, jwtSvc)

	bookmarkRepository := account.NewBookmarkRepository(pool)
	sessionViewRepository := account.NewSessionRepository(pool)
	accountService := account.NewService(accountRepository, bookmarkRepository, sessionViewRepository, sessionCache, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService),
		Account:   account.NewHandler(accountService),
		Series:    series.NewHandler(seriesService),
		Ingest:    ingest.NewHandler(ingestService),
		Reader:    reader.NewHandler(readerService),
	}

	// The server context must outlive startup: the rate limiter's cleanup
	// goroutine runs until it is cancelled, so handing it startupCtx would
	// stop eviction 30 seconds after boot.
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	server := api.NewServer(serverCtx, cfg, log, jwtSvc, handlers)

	// ── 11. Background Workers ────────────────────────────────────────────
	reconciler.Start()

	// ── 12. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Drain the reconcile queue only after HTTP stops producing jobs.
	reconciler.Stop()

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
