package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Get("/status", handlers.handleStatus)
	r.Get("/health", handlers.handleHealth)
	r.Route("/maps", func(r chi.Router) {
		r.Get("/", handlers.handleListMaps)
		r.Get("/{name}", handlers.handleMap)
	})

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
