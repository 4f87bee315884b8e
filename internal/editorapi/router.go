// Package editorapi exposes one editor session over HTTP.
package editorapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/contextpad/internal/session"
)

// NewRouter mounts the session routes. events serves the SSE stream and
// may be nil.
func NewRouter(s *session.Session, events http.Handler) chi.Router {
	h := NewHandler(s)

	r := chi.NewRouter()
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Put("/text", h.PutText)
		r.Put("/title", h.PutTitle)
		r.Put("/context", h.PutContext)
		r.Put("/level", h.PutLevel)
		r.Post("/save", h.Save)
		r.Post("/new", h.CreateNew)
		r.Post("/load/{id}", h.Load)
		r.Get("/documents", h.Documents)
		r.Get("/links", h.Links)
		r.Post("/links/attach", h.AttachLinks)
		r.Post("/links/{op}", h.LinkOp)
		if events != nil {
			r.Method(http.MethodGet, "/events", events)
		}
	})
	return r
}
