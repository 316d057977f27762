/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends
  5. RateLimit:  Token bucket per tenant, tenant routes only

ROUTE GROUPS:
  /api/tenants/{tenant}/*   Tenant-scoped engine operations
  /api/scenarios/*          Demo data
  /healthz                  Liveness
  /metrics                  Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The tenant in the path is trusted, so the
  server belongs behind a gateway that authenticates callers.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterOptions configures the outer HTTP layer.
type RouterOptions struct {
	CORSOrigins []string
	// RateLimitRPS disables tenant rate limiting when zero.
	RateLimitRPS   float64
	RateLimitBurst int
	// MetricsPath is not mounted when empty.
	MetricsPath string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			if opts.RateLimitRPS > 0 {
				r.Use(newTenantLimiter(opts.RateLimitRPS, max(1, opts.RateLimitBurst)).Middleware)
			}

			// Service and availability routes
			r.Route("/services", func(r chi.Router) {
				r.Get("/", h.ListServices)
				r.Post("/", h.CreateService)
				r.Route("/{service}", func(r chi.Router) {
					r.Get("/days/{date}", h.GetDay)
					r.Get("/days/{date}/slots", h.GetSlots)
					r.Get("/availability", h.CheckAvailability)
					r.Get("/capacity", h.GetCapacity)
					r.Post("/bookings", h.CreateBooking)
				})
			})
			r.Post("/bookings/{booking}/cancel", h.CancelBooking)

			// Workforce routes
			r.Route("/employees", func(r chi.Router) {
				r.Post("/", h.CreateEmployee)
				r.Route("/{employee}", func(r chi.Router) {
					r.Post("/leave", h.CreateLeave)
					r.Post("/limits", h.CreateLimit)
					r.Post("/shifts/validate", h.ValidateShift)
					r.Post("/shifts", h.AssignShift)
					r.Get("/hours", h.GetHours)
				})
			})
			r.Route("/shifts", func(r chi.Router) {
				r.Post("/swap/validate", h.ValidateSwap)
				r.Post("/swap", h.Swap)
				r.Post("/{shift}/classify", h.ClassifyShift)
			})

			// Attendance routes
			r.Post("/corrections/review", h.ReviewCorrection)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
