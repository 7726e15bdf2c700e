// Package httpapi exposes the arena operations over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/park285/cheese-arena/internal/metrics"
)

const requestTimeout = 15 * time.Second

// NewRouter mounts the REST routes. feed, when non-nil, serves the
// websocket stream at /ws/games/{id}; it is kept outside the request
// timeout.
func NewRouter(h *Handlers, feed http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, metrics.Middleware)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/games", h.FindOrCreateGame)
		r.Get("/games/{id}", h.Game)
		r.Post("/games/{id}/moves", h.SubmitMove)
		r.Post("/games/{id}/resign", h.Resign)
		r.Post("/games/{id}/tick", h.Tick)
		r.Get("/games/{id}/verdict", h.Verdict)
		r.Get("/games/{id}/legal-moves", h.LegalMoves)
		r.Get("/games/{id}/pgn", h.PGN)

		r.Get("/players/{id}", h.Player)
		r.Get("/players/{id}/games", h.PlayerGames)
	})

	if feed != nil {
		r.Method(http.MethodGet, "/ws/games/{id}", feed)
	}
	return r
}
