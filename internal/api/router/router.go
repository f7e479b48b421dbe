package router

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medspa-capacity/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-capacity/internal/http/middleware"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger    *logging.Logger
	Tenants   tenancy.Directory
	Bookings  *handlers.BookingsHandler
	Capacity  *handlers.CapacityHandler
	Templates *handlers.TemplatesHandler
	Settings  *handlers.SettingsHandler

	// StaffAuthSecret signs staff JWTs. Staff routes reject every request
	// when it is empty.
	StaffAuthSecret    string
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Health reports backing store readiness (optional).
	Health func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/health", healthHandler(cfg.Health))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Tenants are addressed by slug or id in the path, or by the custom
	// domain the request arrived on.
	r.Route("/tenants/{tenant}", func(t chi.Router) {
		mountTenantRoutes(t, cfg, logger, bySlugParam(cfg.Tenants))
	})
	r.Route("/site", func(t chi.Router) {
		mountTenantRoutes(t, cfg, logger, byHost(cfg.Tenants))
	})

	if len(cfg.CORSAllowedOrigins) == 0 {
		return r
	}
	return httpmiddleware.CORS(httpmiddleware.CORSOptions{
		Origins: cfg.CORSAllowedOrigins,
		Methods: routeMethods(r, logger),
	})(r)
}

// routeMethods lists the distinct methods registered on r.
func routeMethods(r chi.Routes, logger *logging.Logger) []string {
	seen := map[string]struct{}{}
	var out []string
	err := chi.Walk(r, func(method, _ string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if _, ok := seen[method]; !ok {
			seen[method] = struct{}{}
			out = append(out, method)
		}
		return nil
	})
	if err != nil {
		logger.Warn("route walk failed", "error", err)
	}
	return out
}

func mountTenantRoutes(t chi.Router, cfg *Config, logger *logging.Logger, lookup tenantLookup) {
	strict := resolveTenant(lookup, logger, false)

	t.With(resolveTenant(lookup, logger, true)).Get("/capacity", cfg.Capacity.Month)

	t.Group(func(public chi.Router) {
		public.Use(strict)
		public.Get("/capacity/day", cfg.Capacity.Day)

		admit := public.With(httpmiddleware.OptionalStaffJWT(cfg.StaffAuthSecret))
		if cfg.RateLimiter != nil {
			admit = admit.With(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		admit.Post("/bookings", cfg.Bookings.Admit)
	})

	t.Group(func(staff chi.Router) {
		staff.Use(strict)
		staff.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))

		staff.Put("/capacity/day", cfg.Capacity.PutDay)
		staff.Delete("/capacity/day", cfg.Capacity.DeleteDay)

		staff.Get("/bookings", cfg.Bookings.List)
		staff.Post("/bookings/{id}/{action}", cfg.Bookings.Transition)

		if cfg.Templates != nil {
			staff.Get("/templates", cfg.Templates.List)
			staff.Post("/templates", cfg.Templates.Create)
			staff.Put("/templates/{id}", cfg.Templates.Update)
			staff.Delete("/templates/{id}", cfg.Templates.Delete)
		}
		if cfg.Settings != nil {
			staff.Get("/settings", cfg.Settings.Get)
			staff.Put("/settings", cfg.Settings.Put)
		}
	})
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if check != nil {
			if err := check(r.Context()); err != nil {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
