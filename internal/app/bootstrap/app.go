package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/board"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/closures"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/settings"
	"github.com/wolfman30/clinic-booking/internal/storage"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/internal/waitlist"
	schedulerworker "github.com/wolfman30/clinic-booking/internal/worker/scheduler"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Infra is the set of external handles a process opened.
type Infra struct {
	Pool    storage.Pool
	SQL     *sql.DB
	Redis   *redis.Client
	Metrics *metrics.BookingMetrics
	Logger  *logging.Logger
}

// App holds every wired component. Binaries take what they need.
type App struct {
	Config *appconfig.Config
	Logger *logging.Logger

	Appointments *appointments.Store
	Closures     *closures.Registry
	Waitlist     *waitlist.Store
	Users        *users.Store
	Templates    *schedule.Store
	Scheduled    *messaging.ScheduledStore
	MessageLog   *messaging.MessageLog
	Settings     *settings.Store

	Resolver   *availability.Resolver
	Outbox     *messaging.Outbox
	Staff      *notify.StaffNotifier
	Hub        *board.Hub
	Reminders  *reminders.Dispatcher
	Flusher    *messaging.Flusher
	Booking    *booking.Service
	Issuer     *auth.Issuer
	Metrics    *metrics.BookingMetrics
	Transport  string
	EmailTrans string
}

// Assemble wires the domain graph over infra. A missing signing secret leaves
// Issuer nil, which closes every authenticated route.
func Assemble(ctx context.Context, cfg *appconfig.Config, infra Infra) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if infra.Pool == nil {
		return nil, errors.New("bootstrap: database pool is required")
	}
	if infra.Redis == nil {
		return nil, errors.New("bootstrap: redis is required")
	}
	logger := infra.Logger
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:       cfg,
		Logger:       logger,
		Appointments: appointments.NewStore(infra.Pool),
		Closures:     closures.NewRegistry(infra.Pool),
		Waitlist:     waitlist.NewStore(infra.Pool),
		Users:        users.NewStore(infra.Pool),
		Templates:    schedule.NewStore(infra.Pool),
		Scheduled:    messaging.NewScheduledStore(infra.Pool),
		Settings:     settings.NewStore(infra.Redis, settings.DefaultsFromConfig(cfg)),
		Metrics:      infra.Metrics,
	}
	if infra.SQL != nil {
		app.MessageLog = messaging.NewMessageLog(infra.SQL)
	}

	generator := schedule.NewGenerator(app.Templates)
	app.Resolver = availability.NewResolver(generator, app.Closures, app.Appointments, loc)

	outbox, transport, err := BuildOutbox(cfg, infra.SQL, infra.Metrics, logger.Component("outbox"))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: outbox: %w", err)
	}
	app.Outbox, app.Transport = outbox, transport
	app.Staff, app.EmailTrans = BuildStaffNotifier(ctx, cfg, logger.Component("notify"))
	app.Hub = board.NewHub(logger.Component("board"), infra.Metrics).WithRelay(infra.Redis, board.DefaultChannel)

	app.Reminders = reminders.NewDispatcher(app.Appointments, app.Users, app.Outbox, app.Settings, infra.Metrics, loc, logger.Component("reminders"))
	app.Flusher = messaging.NewFlusher(app.Scheduled, app.Users, app.Outbox, logger.Component("flusher"))

	app.Booking = booking.NewService(booking.Deps{
		Ledger:       app.Appointments,
		Closures:     app.Closures,
		Waitlist:     app.Waitlist,
		Availability: app.Resolver,
		Slots:        generator,
		Users:        app.Users,
		Tx:           storage.NewTransactor(infra.Pool),
		Outbox:       app.Outbox,
		Staff:        app.Staff,
		Publisher:    app.Hub,
		Reminders:    app.Reminders,
		Metrics:      infra.Metrics,
		Logger:       logger.Component("booking"),
		WindowWeeks:  cfg.BookingWindowWeeks,
		ClinicName:   cfg.ClinicName,
	})

	if cfg.AdminJWTSecret != "" {
		issuer, err := auth.NewIssuer(cfg.AdminJWTSecret, cfg.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		app.Issuer = issuer
	} else {
		logger.Warn("ADMIN_JWT_SECRET is empty; authenticated routes will reject every request")
	}

	logger.Info("application assembled", "transport", app.Transport, "email", app.EmailTrans, "timezone", loc.String())
	return app, nil
}

// Scheduler builds the reminder and scheduled-message loop.
func (a *App) Scheduler() *schedulerworker.Scheduler {
	interval := a.Config.SchedulerTick
	if interval <= 0 {
		interval = time.Minute
	}
	return schedulerworker.New(a.Reminders, a.Settings, a.Flusher, a.Resolver.Location(), a.Logger.Component("scheduler")).
		WithInterval(interval).
		WithMetrics(a.Metrics)
}
