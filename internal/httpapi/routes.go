package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the API. ws serves the websocket upgrade at /ws.
func (a *API) Routes(ws http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", Healthz)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	if a.logLevel != nil {
		r.Handle("/debug/log-level", a.logLevel)
	}
	if ws != nil {
		r.Handle("/ws", ws)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", a.config)
		r.Post("/auth/dev", a.devSignIn)
		r.Post("/auth/token", a.exchangeToken)

		r.Get("/leaderboard/global", a.globalBoard)
		r.Get("/leaderboard/daily", a.dailyBoard)
		r.Get("/leaderboard/daily/winner", a.dailyWinner)

		r.Group(func(r chi.Router) {
			r.Use(a.requireUser)
			r.Get("/me", a.me)
			r.Get("/history", a.history)
			r.Get("/games/{id}", a.session)
			r.Get("/lobby/waiting", a.waiting)
			r.Post("/lobby/queue/join", a.joinQueue)
			r.Post("/lobby/queue/leave", a.leaveQueue)
			r.Post("/lobby/challenge", a.createChallenge)
			r.Post("/lobby/challenge/respond", a.respondChallenge)
		})
	})
	return r
}
