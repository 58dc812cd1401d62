package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avesia/backend/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Results  *ResultsHandler
	Projects *ProjectHandler
	Clips    *ClipHandler
	Nodes    *NodesHandler
	Vision   *VisionHandler
	Health   *HealthHandler
	Metrics  http.Handler
}

// NewRouter wires all routes.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS)

	r.Get("/healthz", h.Health.Liveness)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	// Clip delivery sits outside /api/v1: links land in emails and must
	// stay short-lived-token gated, not session gated.
	r.Get("/clips/{clip_id}/{file}", h.Clips.Serve)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.Readiness)

		r.Post("/results", h.Results.Ingest)
		r.Get("/results", h.Results.Recent)
		r.Get("/results/latest", h.Results.Latest)
		r.Get("/results/stream", h.Results.Stream)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.Projects.Create)
			r.Get("/", h.Projects.List)
			r.Get("/{id}", h.Projects.Get)
			r.Put("/{id}", h.Projects.Update)
			r.Delete("/{id}", h.Projects.Delete)
			r.Get("/{id}/analytics/events", h.Projects.AnalyticsEvents)
		})

		r.Get("/clips/{clip_id}/token", h.Clips.MintToken)

		r.Get("/nodes", h.Nodes.Get)
		r.Put("/nodes", h.Nodes.Put)
		r.Post("/nodes/reload", h.Nodes.Reload)

		r.Post("/vision/prompt", h.Vision.UpdatePrompt)
		r.Post("/vision/control", h.Vision.Control)
	})

	return r
}
