package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

type Middleware = func(http.Handler) http.Handler

// Group is one set of routes sharing a middleware chain. The chain is built
// from the dependencies at registration time, so allowlists and limits
// follow the configuration.
type Group struct {
	Name        string
	Middlewares func(d deps.Deps) []Middleware
	Routes      func(r chi.Router, d deps.Deps)
}

var registry []Group

// Register adds a group. Called from init functions in this package.
func Register(g Group) {
	registry = append(registry, g)
}

// RegisterAll mounts every group on r, in registration order.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, g := range registry {
		var mws []Middleware
		if g.Middlewares != nil {
			mws = g.Middlewares(d)
		}
		r.Group(func(sub chi.Router) {
			sub.Use(mws...)
			g.Routes(sub, d)
		})
		d.Logger.Debug("routes registered", logger.String("group", g.Name), logger.Int("middlewares", len(mws)))
	}
}

// allowlisted restricts a group to the configured CIDRs.
func allowlisted(d deps.Deps) []Middleware {
	return []Middleware{mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)}
}
