package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/contextpad/internal/docservice"
)

// NewRouter creates a chi router with all backend routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(svc *docservice.Service, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents.
	r.Get("/docs/", h.ListDocuments)
	r.Post("/docs/", h.CreateDocument)
	r.Get("/docs/{id}", h.GetDocument)
	r.Post("/docs/{id}", h.UpdateDocument)
	r.Post("/docs/{id}/status", h.SetStatus)

	// Analysis.
	r.Post("/analyze", h.Analyze)
	r.Post("/relevant", h.Relevant)
	r.Post("/relevant/verify", h.Verify)

	return r
}
