package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/board"
	"github.com/wolfman30/clinic-booking/internal/booking"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/settings"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration. Nil handlers are not mounted.
type Config struct {
	Logger             *logging.Logger
	Booking            *booking.Handler
	Schedule           *schedule.Handler
	Messaging          *messaging.Handler
	Settings           *settings.Handler
	Users              *users.Handler
	Board              *board.Handler
	Auth               httpmiddleware.TokenParser
	Limiter            httpmiddleware.Limiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	Health             map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.Health))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Limiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.Limiter, cfg.Logger))
		}
		api.Use(middleware.Compress(5))
		if cfg.Booking != nil {
			cfg.Booking.RegisterPublicRoutes(api)
		}
		api.Group(func(patient chi.Router) {
			patient.Use(httpmiddleware.Authenticate(cfg.Auth))
			if cfg.Booking != nil {
				cfg.Booking.RegisterPatientRoutes(patient)
			}
		})
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.Authenticate(cfg.Auth))
		admin.Use(httpmiddleware.RequireAdmin)
		if cfg.Board != nil {
			cfg.Board.RegisterRoutes(admin)
		}
		admin.Group(func(rest chi.Router) {
			rest.Use(middleware.Compress(5))
			if cfg.Booking != nil {
				cfg.Booking.RegisterAdminRoutes(rest)
			}
			if cfg.Schedule != nil {
				cfg.Schedule.RegisterRoutes(rest)
			}
			if cfg.Messaging != nil {
				cfg.Messaging.RegisterRoutes(rest)
			}
			if cfg.Settings != nil {
				cfg.Settings.RegisterRoutes(rest)
			}
			if cfg.Users != nil {
				cfg.Users.RegisterRoutes(rest)
			}
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp[name] = err.Error()
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
