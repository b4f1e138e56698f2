package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/trackflow/internal/api"
	"github.com/Priya8975/trackflow/internal/attribution"
	"github.com/Priya8975/trackflow/internal/config"
	"github.com/Priya8975/trackflow/internal/engine"
	"github.com/Priya8975/trackflow/internal/store"
	ws "github.com/Priya8975/trackflow/internal/websocket"
	"github.com/Priya8975/trackflow/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
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

	queue := engine.NewQueue(redisStore.Client(), logger)
	limiter := engine.NewRateLimiter(redisStore.Client(), cfg.RateLimitWindow, logger)
	breaker := engine.NewCircuitBreaker(redisStore.Client(), cfg.CRMBreaker, logger)

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	calc := attribution.NewCalculator()
	calc.Window = cfg.AttributionWindow
	calc.HalfLife = cfg.TimeDecayHalfLife
	attributor := attribution.NewService(pgStore, calc, logger)

	forward := cfg.CRMWebhookURL != ""
	processor := worker.NewProcessor(pgStore, attributor, cfg.AttributionModel, hub, queue, forward, logger)

	var forwarder worker.JobForwarder
	if forward {
		forwarder = worker.NewForwarder(cfg.CRMWebhookURL, cfg.CRMWebhookSecret, breaker, queue, logger)
		logger.Info("crm forwarding enabled",
			"url", cfg.CRMWebhookURL,
			"breaker_threshold", cfg.CRMBreaker.Threshold,
			"breaker_cooldown", cfg.CRMBreaker.Cooldown.String(),
		)
	}

	// Claimed jobs are already off the queue, so workers drain them even
	// after shutdown begins.
	pool := worker.NewPool(cfg.NumWorkers, processor, forwarder, queue, logger)
	pool.Start(context.WithoutCancel(ctx))

	dispatcher := worker.NewDispatcher(queue, pool, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()

	deps := api.Deps{
		Store:           pgStore,
		Queue:           queue,
		Limiter:         limiter,
		Attributor:      attributor,
		Hub:             hub,
		Logger:          logger,
		PublicBaseURL:   cfg.PublicBaseURL,
		ShortCodeLength: cfg.ShortCodeLength,
		TrackRateLimit:  cfg.TrackRateLimit,
		DefaultModel:    cfg.AttributionModel,
	}
	if forward {
		deps.Breaker = breaker
		deps.CRMSink = worker.CRMSink(cfg.CRMWebhookURL)
	}
	router := api.NewRouter(deps)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port, "model", cfg.AttributionModel)
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop claiming jobs, then let in-flight work finish
	cancel()
	<-dispatcherDone
	pool.Stop()

	logger.Info("server stopped")
}
