package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the admin API router
func NewRouter(handlers *AdminHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Get("/library", handlers.handleLibrary)
	r.Get("/functions", handlers.handleListFunctions)

	r.Route("/types", func(r chi.Router) {
		r.Get("/", handlers.handleListTypes)
		r.Get("/{name}", handlers.handleDescribeType)
	})

	r.Route("/allocations", func(r chi.Router) {
		r.Get("/", handlers.handleAllocations)
		r.Get("/stats", handlers.handleAllocationStats)
		r.Post("/reclaim", handlers.handleReclaim)
	})

	return r
}

// RegisterRoutes mounts the admin API under /admin
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := NewRouter(handlers)

	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
