package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gpabois/emerald/internal/shardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *shardservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Virtual filesystem. The bare forms address the vault root.
	r.Get("/fs/dir", h.ReadDir)
	r.Get("/fs/dir/*", h.ReadDir)
	r.Get("/fs/walk", h.Walk)
	r.Get("/fs/walk/*", h.Walk)
	r.Get("/fs/stat/*", h.Stat)
	r.Get("/fs/raw/*", h.ReadRaw)
	r.Put("/fs/raw/*", h.WriteRaw)
	r.Delete("/fs/raw/*", h.Remove)
	r.Post("/fs/link/*", h.Link)

	// Shards.
	r.Get("/shards", h.ListShards)
	r.Post("/shards", h.CreateShard)
	r.Get("/shards/*", h.GetShard)
	r.Put("/shards/*", h.UpdateShard)

	r.Get("/tasks", h.Tasks)
	r.Get("/search", h.Search)
	r.Get("/backlinks/*", h.Backlinks)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
