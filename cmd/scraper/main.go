package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/api"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/browser"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/config"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/database"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/dedup"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/jobs"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/scraper"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/targets"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Redis connection for the cross-job dedup set
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var seen jobs.SeenStore
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, cross-job dedup disabled", "error", err)
	} else {
		seen = dedup.NewSeenStore(redisClient, cfg.Redis.SeenTTL)
	}

	// Browser setup for token minting
	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Scraper.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		Locale:         cfg.Browser.Locale,
		MaxConcurrent:  cfg.Browser.MaxConcurrent,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// Initialize services
	metrics := pipeline.NewMetrics()
	sessions := session.NewCache(cfg.Scraper.SessionCacheSize, cfg.Scraper.SessionTTL, logger)
	registry := targets.All(targets.Deps{
		Browser:     b,
		HTTPTimeout: cfg.Scraper.HTTPTimeout,
		UserAgent:   cfg.Scraper.UserAgent,
		Logger:      logger,
	})
	fetcher := pipeline.NewHTTPFetcher(cfg.Scraper.HTTPTimeout, cfg.Scraper.UserAgent, logger)
	scraperService := scraper.NewService(registry, sessions, fetcher, cfg.Scraper, metrics, logger)
	jobManager := jobs.NewManager(db, scraperService, seen, logger)

	// Start job workers
	go jobManager.StartWorkers(ctx, cfg.Scraper.MaxConcurrentRuns)

	// HTTP surface
	handlers := api.NewHandlers(scraperService, jobManager, logger)
	router := api.NewRouter(handlers, func(ctx context.Context) error {
		return db.Pool().Ping(ctx)
	}, metrics.Registry, cfg.Server.WriteTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "platforms", targets.Names())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
