package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.Validate(); err != nil {
		logger.Error("reminder worker configuration invalid", "error", err)
		os.Exit(1)
	}

	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("reminder worker requires REDIS_ADDR for settings and run claims")
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
		logger.Error("failed to assemble reminder worker", "error", err)
		os.Exit(1)
	}

	scheduler := app.Scheduler()
	scheduler.Start(ctx)
	logger.Info("reminder worker started", "transport", app.Transport, "tick", cfg.SchedulerTick)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("reminder worker shutting down")
	cancel()
	scheduler.Stop()
}
