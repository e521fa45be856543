package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aldmark/skald/internal/engine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(eng *engine.Engine, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(eng)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes/sync", h.SyncNote)
	r.Post("/notes/open", h.OpenNote)
	r.Get("/notes/*", h.GetNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search.
	r.Get("/search", h.Search)

	// Bookmarks.
	r.Get("/bookmarks", h.ListBookmarks)
	r.Put("/bookmarks/{number}", h.SetBookmark)
	r.Delete("/bookmarks/{number}", h.RemoveBookmark)
	r.Get("/bookmarks/{number}/resolve", h.ResolveBookmark)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
