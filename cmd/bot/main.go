package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"court_bot/internal/bot"
	"court_bot/internal/config"
	"court_bot/internal/delivery"
	"court_bot/internal/dispatch"
	"court_bot/internal/fetcher"
	"court_bot/internal/registry"
	"court_bot/internal/scheduler"
	"court_bot/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	policy, err := registry.NewPolicy(cfg.RefreshSchedule, cfg.Timezone)
	if err != nil {
		log.Error("refresh policy", "error", err)
		os.Exit(1)
	}

	f := fetcher.New(&http.Client{Timeout: cfg.FetchTimeout}, cfg.CourtURLTemplate)
	engine := dispatch.New(store, f, registry.New(store, policy), nil, log)
	engine.SetFetchTimeout(cfg.FetchTimeout)

	b, err := bot.New(cfg.TelegramBotToken, store, engine, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	worker := delivery.New(store, b, log, cfg.SendRate)
	worker.SetSendTimeout(cfg.SendTimeout)
	engine.SetNotifier(worker)

	sched := scheduler.New(engine, store, log, cfg.Workers)
	sched.SetTickInterval(cfg.CheckInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot",
		"check_interval", cfg.CheckInterval.String(),
		"workers", cfg.Workers,
		"refresh_schedule", cfg.RefreshSchedule,
	)

	go worker.Run(ctx)
	go sched.Run(ctx)

	b.Run(ctx)

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
