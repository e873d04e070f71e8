package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telescope-hq/telescope/internal/alert"
	"github.com/telescope-hq/telescope/internal/api"
	"github.com/telescope-hq/telescope/internal/config"
	"github.com/telescope-hq/telescope/internal/ingest"
	"github.com/telescope-hq/telescope/internal/retention"
	"github.com/telescope-hq/telescope/internal/sourcemap"
	"github.com/telescope-hq/telescope/internal/store"
	ws "github.com/telescope-hq/telescope/internal/websocket"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Live feed hub
	hub := ws.NewHub(logger)
	go hub.Run()

	// Ingestion pipeline
	tracker := ingest.NewTracker(redisStore.Client(), logger)
	rateLimiter := ingest.NewRateLimiter(redisStore.Client(), logger)
	ingestor := ingest.NewIngestor(pgStore, tracker, logger)
	ingestor.AddObserver(hub)

	// Alert engine with email + webhook notification, delivered by a
	// bounded dispatch pool
	var senders alert.MultiSender
	if cfg.SMTPAddr != "" {
		senders = append(senders, alert.NewEmailSender(alert.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, logger))
	}
	breaker := alert.NewBreaker(redisStore.Client(), logger)
	senders = append(senders, alert.NewWebhookSender(cfg.WebhookSecret, breaker, logger))

	dispatcher := alert.NewDispatcher(cfg.AlertWorkers, senders, pgStore, logger)
	dispatcher.Start()

	engine := alert.NewEngine(pgStore, tracker, redisStore.Client(), dispatcher, logger)
	ingestor.AddObserver(engine)

	// Source map resolution (off the hot ingestion path)
	resolver := sourcemap.NewResolver(pgStore, logger)

	// Retention job
	janitor := retention.NewJanitor(pgStore, tracker, cfg.Retention, logger)
	if err := janitor.Start(cfg.RetentionSchedule); err != nil {
		logger.Error("failed to schedule retention job", "error", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	router := api.NewRouter(api.RouterDeps{
		Store:       pgStore,
		Ingestor:    ingestor,
		RateLimiter: rateLimiter,
		Resolver:    resolver,
		Hub:         hub,
		ReportLimit: cfg.ReportRateLimit,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight alert notifications finish before the process exits.
	dispatcher.Stop()

	logger.Info("server stopped")
}
