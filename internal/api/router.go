package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(ReadOnly)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Content-Range"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Raw outputs keep the file server's own content types and range support.
	r.Handle("/files/*", h.Files())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(ContentTypeJSON)

		r.Get("/health", h.Health)

		r.Get("/", h.LandingPage)
		r.Get("/conformance", h.Conformance)

		r.Get("/collections", h.Collections)
		r.Get("/collections/{collectionId}", h.Collection)
		r.Get("/collections/{collectionId}/items", h.Items)
		r.Get("/collections/{collectionId}/items/{itemId}", h.Item)

		r.Get("/products", h.Products)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}
