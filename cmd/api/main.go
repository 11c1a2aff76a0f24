package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/board"
	"github.com/wolfman30/clinic-booking/internal/booking"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/settings"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for settings and rate limiting")
		os.Exit(1)
	}
	defer redisClient.Close()

	metricsHandler, bookingMetrics := setupMetrics()
	app, err := bootstrap.Assemble(ctx, cfg, bootstrap.Infra{
		Pool:    db.Pool,
		SQL:     db.SQL,
		Redis:   redisClient,
		Metrics: bookingMetrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to assemble application", "error", err)
		os.Exit(1)
	}

	if err := app.Hub.Listen(ctx); err != nil {
		logger.Error("failed to start board relay", "error", err)
		os.Exit(1)
	}

	routerCfg := routerConfig(app, redisClient, metricsHandler)
	routerCfg.Health = map[string]router.HealthCheck{
		"postgres": db.Pool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupMetrics registers the booking collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// newLimiter shares request budgets across API replicas through Redis when
// available.
func newLimiter(cfg *appconfig.Config, redisClient *redis.Client) httpmiddleware.Limiter {
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	if redisClient != nil {
		return httpmiddleware.NewRedisWindow(redisClient, burst, 10*time.Second)
	}
	rate := cfg.RateLimitRPS
	if rate <= 0 {
		rate = 5
	}
	return httpmiddleware.NewTokenBucket(rate, burst)
}

func routerConfig(app *bootstrap.App, redisClient *redis.Client, metricsHandler http.Handler) *router.Config {
	logger := app.Logger
	cfg := &router.Config{
		Logger:             logger,
		Booking:            booking.NewHandler(app.Booking, logger.Component("booking-http")),
		Schedule:           schedule.NewHandler(app.Templates, logger.Component("schedule-http")),
		Settings:           settings.NewHandler(app.Settings, logger.Component("settings-http")),
		Users:              users.NewHandler(app.Users, logger.Component("users-http")),
		Board:              board.NewHandler(app.Hub, app.Config.CORSAllowedOrigins),
		Limiter:            newLimiter(app.Config, redisClient),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: app.Config.CORSAllowedOrigins,
	}
	if app.MessageLog != nil {
		cfg.Messaging = messaging.NewHandler(app.MessageLog, app.Scheduled, app.Outbox, logger.Component("messaging-http"))
	}
	if app.Issuer != nil {
		cfg.Auth = app.Issuer
	}
	return cfg
}
