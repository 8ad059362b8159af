package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/cardbot/internal/bot"
	"github.com/example/cardbot/internal/config"
	"github.com/example/cardbot/internal/database"
	"github.com/example/cardbot/internal/logger"
	"github.com/example/cardbot/internal/scheduler"
	"github.com/example/cardbot/internal/spaced_repetition"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Error("bot stopped with error", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("bot stopped")
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn, err := cfg.Database.DSN()
	if err != nil {
		return err
	}
	db, err := database.Connect(ctx, database.Options{
		Driver:       cfg.Database.Type,
		DSN:          dsn,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	store := database.NewStore(db)
	defer store.Close()
	lg.Info("database ready", zap.String("driver", cfg.Database.Type))

	srs := spaced_repetition.NewScheduler(cfg.SRS)
	processor := spaced_repetition.NewProcessor(store, srs, cfg.SRS, lg)
	selector := spaced_repetition.NewSelector(store, cfg.SRS, lg)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	lg.Info("authorized", zap.String("account", api.Self.UserName))

	b := bot.New(api, store, processor, selector, &bot.BotConfig{
		AdminIDs:            cfg.Telegram.AdminIDs,
		DefaultMode:         cfg.Mode(),
		DefaultTimezone:     cfg.SRS.DefaultTimezoneOffset,
		SkipStreakThreshold: cfg.SRS.SkipStreakThreshold,
		UpdateTimeout:       cfg.Telegram.UpdateTimeout,
	}, lg)

	if cfg.Reminder.Enabled {
		reminders := scheduler.New(store, b, scheduler.Options{
			Interval:  cfg.Reminder.Interval,
			StartHour: cfg.Reminder.StartHour,
			EndHour:   cfg.Reminder.EndHour,
			MinGap:    cfg.Reminder.MinGap,
		}, lg)
		if err := reminders.Start(ctx); err != nil {
			return err
		}
		defer reminders.Stop()
	}

	lg.Info("bot started, press Ctrl+C to stop")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
