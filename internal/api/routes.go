package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/httputil"
)

// RouteOptions tunes SetupRoutes.
type RouteOptions struct {
	AllowedOrigins []string
	// DefaultOrgID is used when a request names no organization. Leave
	// empty outside local development.
	DefaultOrgID   string
	RequestTimeout time.Duration
}

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// SetupRoutes configures all API routes. health may be nil.
func SetupRoutes(h *Handlers, health *HealthChecker, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OrgHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no tenant required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		// Catalog endpoints are tenant independent.
		r.Get("/operators", h.ListOperators)
		r.Get("/plans", h.ListPlans)
		r.Get("/plans/{tier}", h.GetTierPlan)

		r.Group(func(r chi.Router) {
			r.Use(RequireOrg(opts.DefaultOrgID))

			r.Get("/plan", h.GetPlan)

			r.Route("/segments", func(r chi.Router) {
				r.Get("/", h.ListSegments)
				r.Post("/", h.CreateSegment)
				r.Post("/evaluate", h.EvaluateSegment)
				r.Post("/preview", h.PreviewSegment)

				r.Route("/{segmentID}", func(r chi.Router) {
					r.Get("/", h.GetSegment)
					r.Delete("/", h.DeleteSegment)
					r.Get("/contacts", h.GetSegmentContacts)
				})
			})

			r.Get("/contacts/{contactID}/segments", h.GetContactSegments)

			r.With(h.RequireCapability(featuregate.HasMarketingTools)).
				Post("/campaigns/recipients", h.BuildRecipients)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "route not found")
	})
	return r
}
