package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-archive/app/api"
	"github.com/lysyi3m/rss-archive/app/cfg"
	"github.com/lysyi3m/rss-archive/app/collector"
	"github.com/lysyi3m/rss-archive/app/database"
	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/lysyi3m/rss-archive/app/notify"
	"github.com/lysyi3m/rss-archive/app/parser"
	"github.com/lysyi3m/rss-archive/app/scheduler"
	"github.com/lysyi3m/rss-archive/app/subscriptions"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("RSS Archive stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting RSS Archive", "version", appCfg.Version)

	if err := os.MkdirAll(filepath.Dir(appCfg.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, _, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema", version)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load feed configurations: %w", err)
	}
	slog.Info("Feed configurations loaded", "dir", appCfg.FeedsDir, "count", configCache.GetConfigCount())

	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)

	hub := notify.NewHub(0)
	publishers := notify.Publishers{hub}
	if appCfg.RedisAddr != "" {
		redisPublisher, err := notify.NewRedisPublisher(context.Background(), appCfg.RedisAddr, appCfg.RedisChannel)
		if err != nil {
			slog.Warn("Redis publishing disabled", "addr", appCfg.RedisAddr, "error", err)
		} else {
			defer redisPublisher.Close()
			publishers = append(publishers, redisPublisher)
		}
	}

	feedCollector := collector.NewCollector(
		collector.NewFetcher(appCfg.UserAgent),
		parser.DefaultRegistry(),
		feedRepo,
		itemRepo,
		publishers,
	)

	feedScheduler := scheduler.NewScheduler(feedCollector, appCfg.CollectTimeout)
	manager := subscriptions.NewManager(configCache, feedScheduler, feedRepo)

	scheduled := manager.Bootstrap()
	slog.Info("Feeds scheduled", "scheduled", scheduled, "configured", configCache.GetConfigCount())

	cleanup := func(ctx context.Context) error {
		removed, err := itemRepo.CleanFeedItems(ctx, appCfg.Retention)
		if err != nil {
			return err
		}
		slog.Info("Retention cleanup completed", "retention", appCfg.Retention.String(), "removed", removed)
		return nil
	}
	if err := cleanup(context.Background()); err != nil {
		slog.Error("Retention cleanup failed", "error", err)
	}
	if err := feedScheduler.ScheduleFunc("retention", appCfg.RetentionSchedule, cleanup); err != nil {
		return err
	}

	feedScheduler.Start()
	defer feedScheduler.Stop()

	handler := api.NewHandler(configCache, feedRepo, itemRepo, feed.NewGenerator(appCfg.Version),
		manager, feedScheduler, hub, appCfg.BaseUrl)

	// Event streams only end when their request context does.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	httpServer := &http.Server{
		Addr:        ":" + appCfg.Port,
		Handler:     api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelRequests)

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}
