/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address behind proxies
  3. RequestLogger: zap request logging + per-route metrics
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/employees/*       Employees, their pay history and analysis
  /api/jobs/*            Jobs, completion and calculation
  /api/assignments/*     Assignments and interim pay
  /api/incidents         Incidents
  /api/configurations/*  P4P configuration
  /api/periods/*         Pay period calendar
  /api/reports/*         Payroll reports
  /api/recalc/*          Bulk recalculation
  /api/scenarios/*       Demo data
  /metrics               Prometheus
  /healthz               Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fieldcrew/p4p-engine/observability"
)

// RouterOptions configures NewRouter. Zero values are usable.
type RouterOptions struct {
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	var observer RequestObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger, observer))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/assignments", h.GetEmployeeAssignments)
			r.Get("/{id}/incidents", h.GetEmployeeIncidents)
			r.Get("/{id}/analysis", h.AnalyzeEmployee)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Post("/", h.CreateJob)
			r.Get("/{id}", h.GetJob)
			r.Get("/{id}/assignments", h.GetJobAssignments)
			r.Post("/{id}/complete", h.CompleteJob)
			r.Post("/{id}/calculate", h.CalculateJob)
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.CreateAssignment)
			r.Get("/{id}", h.GetAssignment)
			r.Post("/{id}/calculate", h.CalculateAssignment)
		})

		r.Post("/incidents", h.CreateIncident)

		r.Route("/configurations", func(r chi.Router) {
			r.Get("/", h.ListConfigurations)
			r.Post("/", h.CreateConfiguration)
			r.Get("/presets", h.ListConfigurationPresets)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Get("/current", h.GetCurrentPeriod)
			r.Get("/{date}", h.GetPeriodForDate)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/payroll", h.GetPayrollReport)
			r.Get("/payroll.pdf", h.GetPayrollReportPDF)
		})

		r.Route("/recalc", func(r chi.Router) {
			r.Post("/", h.TriggerRecalc)
			r.Get("/runs", h.ListRecalcRuns)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
