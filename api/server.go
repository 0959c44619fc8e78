/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. AccessLog:  zap request logging with the request id
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counters and latency
  6. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /healthz              Liveness and store ping
  /metrics              Prometheus scrape endpoint
  /api/settings         Club settings
  /api/members/*        Members, fee overrides, payments, dues
  /api/dues/*           Club-wide arrears
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
	"go.uber.org/zap"

	"github.com/mouros/motohub/metrics"
)

// RouterOptions carries the deployment-specific router settings.
type RouterOptions struct {
	AllowedOrigins []string
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetMember)
				r.Put("/", h.UpdateMember)

				r.Get("/fee-settings", h.GetFeeSettings)
				r.Put("/fee-settings", h.PutFeeSettings)
				r.Post("/exemptions", h.AddExemption)
				r.Delete("/exemptions/{idx}", h.RemoveExemption)

				r.Get("/payments", h.ListPayments)
				r.Put("/payments/{year}", h.RecordPayment)
				r.Delete("/payments/{year}", h.MarkUnpaid)

				r.Get("/dues", h.GetDues)
				r.Get("/dues/summary", h.GetDuesSummary)
				r.Get("/dues/export", h.ExportDues)
			})
		})

		// Club-wide dues routes
		r.Route("/dues/arrears", func(r chi.Router) {
			r.Get("/", h.GetArrears)
			r.Get("/export", h.ExportArrears)
			r.Get("/runs", h.ListArrearsRuns)
			r.Post("/runs", h.TriggerArrearsRun)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// accessLog replaces chi's stdlib-log Logger with a zap line per request.
func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
