package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// requestDeadline bounds every data-plane request. The SSE stream is
// registered outside this middleware and lives as long as the client does.
func requestDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetupRoutes configures the full route tree. allowedOrigins feeds CORS for
// the wall display and the back office; empty means local development.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// The stream holds its connection open indefinitely.
		r.Get("/events/stream", h.StreamEvents)

		r.Group(func(r chi.Router) {
			r.Use(requestDeadline(10 * time.Second))

			r.Route("/shifts", func(r chi.Router) {
				r.Post("/open", h.OpenShift)
				r.Get("/active", h.ActiveShift)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetShift)
					r.Post("/close", h.CloseShift)
					r.Get("/qualifications", h.ListQualifications)
					r.Put("/qualifications", h.PutQualifications)
					r.Get("/collectors", h.ListCollectors)
					r.Put("/collectors", h.PutCollectors)
				})
			})

			r.Route("/routes", func(r chi.Router) {
				r.Get("/", h.ListRoutes)
				r.Post("/{id}/mark-collected", h.MarkRouteCollected)
				r.Post("/{id}/reactivate", h.ReactivateRoute)
			})

			r.Route("/print", func(r chi.Router) {
				r.Route("/routes/{id}", func(r chi.Router) {
					r.Post("/operator/enter", h.OperatorEnter)
					r.Post("/operator/print-initial", h.OperatorPrintInitial)
					r.Post("/operator/print-new", h.OperatorPrintNew)
					r.Post("/collector/print-new", h.CollectorPrintNew)
				})
				r.Route("/jobs", func(r chi.Router) {
					r.Get("/", h.ListPrintJobs)
					r.Get("/{id}", h.GetPrintJob)
					r.Get("/{id}/pdf", h.GetPrintJobDocument)
					r.Post("/{id}/reprint", h.Reprint)
				})
			})

			r.Route("/lotes", func(r chi.Router) {
				r.Get("/", h.ListLotes)
				r.Get("/{id}", h.GetLote)
				r.Post("/{id}/reprocess", h.ReprocessLote)
			})

			r.Route("/catalogs", func(r chi.Router) {
				r.Get("/active", h.ActiveCatalogs)
				r.Get("/versions", h.CatalogVersions)
				r.Post("/products", h.UploadProducts)
				r.Post("/products/{version}/activate", h.ActivateProducts)
				r.Post("/routes", h.UploadRoutes)
				r.Post("/routes/{version}/activate", h.ActivateRoutes)
			})

			r.Route("/imap", func(r chi.Router) {
				r.Get("/status", h.ImapStatus)
				r.Post("/force-poll", h.ImapForcePoll)
			})

			r.Get("/events", h.ListEvents)
		})
	})

	return r
}
