package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	JWTSecret    string
	TenantHeader string
	// Metrics оборачивает каждый запрос, если задан
	Metrics func(http.Handler) http.Handler
	// MetricsHandler монтируется на MetricsPath, если задан
	MetricsHandler http.Handler
	MetricsPath    string
}

func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.Log, NoColor: true}))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics)
	}

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Group(func(r chi.Router) {
			r.Use(TenantMiddleware(opts.JWTSecret, opts.TenantHeader))

			r.Get("/dashboard/data", h.DashboardDataHandler)
			r.Get("/dashboard/views/{kind}", h.DashboardViewHandler)
			r.Get("/dashboard/projects", h.ProjectsHandler)
			r.Get("/dashboard/filters", h.FiltersHandler)
			r.Post("/upload", h.UploadHandler)
		})
	})
	return r
}
