package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/handler"
	"github.com/tile-leaderboard/internal/kafka"
	"github.com/tile-leaderboard/internal/metrics"
	"github.com/tile-leaderboard/internal/redis"
	"github.com/tile-leaderboard/internal/seed"
	"github.com/tile-leaderboard/internal/service"
	"github.com/tile-leaderboard/internal/store"
	"github.com/tile-leaderboard/internal/web"
	"github.com/tile-leaderboard/internal/websocket"
	"github.com/tile-leaderboard/internal/worker"
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration; only a missing file falls back to defaults
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		if !errors.Is(loadErr, fs.ErrNotExist) {
			slog.Error("invalid configuration", "path", *configPath, "error", loadErr)
			os.Exit(1)
		}
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("config file not found, using defaults", "path", *configPath)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Initialize storage
	logger.Info("opening store", "driver", cfg.Storage.Driver)
	st, err := store.Open(ctx, &cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store opened", "dialect", st.Driver())

	// Optional Redis: view cache and cross-process seed lock
	seedOpts := []seed.Option{seed.WithMetrics(m)}
	svcOpts := []service.Option{
		service.WithMetrics(m),
		service.WithDemoMode(cfg.Demo.Enabled),
	}
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		logger.Info("connected to Redis")

		seedOpts = append(seedOpts, seed.WithLocker(redis.NewSeedLock(client, cfg.Redis.LockTTL, logger)))
		svcOpts = append(svcOpts, service.WithCache(redis.NewViewCache(client, cfg.Redis.CacheTTL, logger)))
	}

	// Seed before the listener opens
	seeder := seed.NewSeeder(st, &cfg.Demo, logger, seedOpts...)
	seeded, err := seeder.EnsureSeeded(ctx)
	if err != nil {
		logger.Error("failed to seed demo data", "error", err)
		os.Exit(1)
	}
	logger.Info("store ready", "seeded", seeded)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger, m)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	svcOpts = append(svcOpts, service.WithBroadcaster(wsHub))
	leaderboardService := service.NewLeaderboardService(st, &cfg.Leaderboard, logger, svcOpts...)

	// Initialize refresh worker
	refreshWorker := worker.NewRefreshWorker(leaderboardService, wsHub, &cfg.Refresh, logger)
	if cfg.Refresh.Enabled {
		if err := refreshWorker.Start(ctx); err != nil {
			logger.Error("failed to start refresh worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for completion ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		logger.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(leaderboardService, wsHub, renderer, m, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr, "demo_mode", cfg.Demo.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop refresh worker
	if err := refreshWorker.Stop(); err != nil {
		logger.Error("failed to stop refresh worker", "error", err)
	}

	logger.Info("server stopped")
}
