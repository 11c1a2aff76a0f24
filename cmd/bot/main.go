package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/go-telegram/bot"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/chatbot"
	"github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("bot configuration invalid", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		logger.Error("bot requires TELEGRAM_BOT_TOKEN")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("bot requires REDIS_ADDR")
		os.Exit(1)
	}
	defer redisClient.Close()

	app, err := bootstrap.Assemble(ctx, cfg, bootstrap.Infra{
		Pool:   db.Pool,
		SQL:    db.SQL,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to assemble bot", "error", err)
		os.Exit(1)
	}

	b, err := bot.New(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	flow := chatbot.NewFlow(app.Booking, app.Users, logger)
	controller := chatbot.NewController(flow, b, logger)
	controller.Register(b)
	if err := controller.SetCommands(ctx, b); err != nil {
		logger.Warn("failed to publish bot commands", "error", err)
	}

	logger.Info("telegram bot polling", "clinic", cfg.ClinicName)
	b.Start(ctx)
	logger.Info("telegram bot stopped")
}
