package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/handlers"
)

func init() {
	// Liveness stays reachable from anywhere for container health checks.
	Register(Group{
		Name: "health",
		Routes: func(r chi.Router, d deps.Deps) {
			r.Get("/healthz", handlers.Healthz(d))
		},
	})
	Register(Group{
		Name:        "readiness",
		Middlewares: allowlisted,
		Routes: func(r chi.Router, d deps.Deps) {
			r.Get("/readyz", handlers.Readyz(d))
		},
	})
}
