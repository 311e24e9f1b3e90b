package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Houeta/edition-tracker/internal/bot"
	"github.com/Houeta/edition-tracker/internal/catalog"
	"github.com/Houeta/edition-tracker/internal/config"
	"github.com/Houeta/edition-tracker/internal/discovery"
	"github.com/Houeta/edition-tracker/internal/repository"
	"github.com/Houeta/edition-tracker/internal/repository/file"
	"github.com/Houeta/edition-tracker/internal/repository/sqlite"
	"github.com/Houeta/edition-tracker/internal/services/digest"
	"github.com/Houeta/edition-tracker/internal/services/reconciler"
	"github.com/Houeta/edition-tracker/internal/services/tracker"
	"github.com/joho/godotenv"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	store, err := openStore(ctx, logger, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	repo := repository.New(logger, store)
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	client := catalog.NewClient(logger, catalog.Settings{
		URL:        cfg.Catalog.URL,
		Timeout:    cfg.Catalog.Timeout,
		Attempts:   cfg.Catalog.Attempts,
		RetryDelay: cfg.Catalog.RetryDelay,
	})

	var finder reconciler.Discoverer
	if cfg.Catalog.DiscoveryURL != "" {
		finder = discovery.NewFinder(logger, cfg.Catalog.DiscoveryURL)
	}

	engine := reconciler.NewEngine(logger, client, repo, finder, reconciler.Settings{
		TriggerWeekday:   cfg.Schedule.TriggerWeekday,
		DiscoveryWeekday: cfg.Schedule.DiscoveryWeekday,
		Thresholds:       cfg.Schedule.Thresholds,
	})
	gate := digest.NewGate(cfg.Digest.Everyday, cfg.Digest.Weekdays)
	cycles := tracker.NewTracker(logger, client, engine, gate, repo)

	trackerBot, err := bot.NewBot(ctx, logger, repo, cfg.Tg.Token, cfg.Tg.Timeout, cfg.Schedule.Location)
	if err != nil {
		log.Fatalf("Failed to init bot: %v", err)
	}

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.",
		"storage", cfg.Storage.Type, "poll_interval", cfg.Schedule.PollInterval)

	// Start the bot in a goroutine to allow main to listen for signals.
	go trackerBot.Start()

	// Cycles run from this goroutine only, so they never overlap.
	runCycle := func() {
		now := time.Now().In(cfg.Schedule.Location)
		d, err := cycles.RunCycle(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "Reconciliation cycle failed", "error", err)
			return
		}
		if err = trackerBot.Notify(ctx, d, now); err != nil {
			logger.ErrorContext(ctx, "Failed to deliver digest", "error", err)
		}
	}

	ticker := time.NewTicker(cfg.Schedule.PollInterval)
	defer ticker.Stop()

	runCycle()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			runCycle()
		}
	}

	// Log that a shutdown signal has been received.
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	// Stop the bot gracefully.
	trackerBot.Stop()

	// Log graceful shutdown completion.
	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, log *slog.Logger, cfg config.Storage) (repository.Store, error) {
	switch cfg.Type {
	case config.StorageFile:
		return file.NewStore(log, cfg.DataDir)
	case config.StorageSQLite:
		return sqlite.NewStore(ctx, log, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified	 or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
