package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pr_digest_bot/internal/bot"
	"pr_digest_bot/internal/config"
	"pr_digest_bot/internal/delivery"
	"pr_digest_bot/internal/digest"
	"pr_digest_bot/internal/github"
	"pr_digest_bot/internal/reach"
	"pr_digest_bot/internal/schedule"
	"pr_digest_bot/internal/scheduler"
	"pr_digest_bot/internal/service"
	"pr_digest_bot/internal/storage"
	"pr_digest_bot/internal/subscription"
)

// directoryRefresh drops cached organizations and teams.
const directoryRefresh = "@every 6h"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if cfg.DatabaseDriver == config.DriverSQLite {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	kv, err := storage.Open(cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		log.Error("open database", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = kv.Close() }()

	gh := github.New(&http.Client{Timeout: 30 * time.Second}, cfg.GitHubAPIURL, cfg.GitHubToken)
	directory := digest.NewDirectory(gh)
	producer := digest.NewProducer(gh, directory)

	engine := scheduler.New(schedule.Weekdays(cfg.DigestHour), cfg.Location(), log)
	refresh, err := schedule.Parse(directoryRefresh)
	if err != nil {
		log.Error("parse refresh schedule", "error", err)
		os.Exit(1)
	}
	engine.Every("directory refresh", refresh, directory.Reset)

	svc := service.New(subscription.New(kv, log), engine, reach.NewTracker(), producer, directory, log)

	b, err := bot.New(cfg.TelegramBotToken, svc, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := svc.Restore(ctx); err != nil {
		log.Error("restore subscriptions", "error", err)
		os.Exit(1)
	}

	log.Info("starting bot", "timezone", cfg.Timezone, "digest_hour", cfg.DigestHour, "storage", cfg.DatabaseDriver)

	engine.Start()
	dispatcher := delivery.NewDispatcher(b, cfg.SendRate, log)
	go dispatcher.Run(ctx, svc.Digests())

	b.Run(ctx)

	svc.Close()
	stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	engine.Stop(stopCtx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
