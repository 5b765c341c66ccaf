package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(m.Timeout(30 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// Pages
	r.Get("/", h.Index)
	r.Get("/post/{id}", h.ShowPost)
	r.Get("/admin", h.Admin)
	r.Post("/admin", h.AdminPost(m.RateLimit(rateLimitRPM)(http.HandlerFunc(h.Login))))
	r.Method(http.MethodPost, "/delete/{id}", h.gate.Require(http.HandlerFunc(h.DeletePost)))
	r.Get("/logout", h.Logout)

	// Stored images
	r.Get("/uploads/{name}", h.Upload)
	r.Get("/media/{id}", h.Media)

	// Read-only JSON API
	r.Route("/api", func(r chi.Router) {
		r.Use(m.CORS(corsOrigins))
		r.Get("/posts", h.ListPostsJSON)
		r.Get("/posts/{id}", h.GetPostJSON)
	})

	return r
}
