package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/mw"
)

// requestTimeout covers a full enrichment round trip.
const requestTimeout = 20 * time.Second

func init() {
	Register(Group{Name: "api", Middlewares: allowlisted, Routes: registerAPI})
}

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/infra", handlers.Infra(d))

		// Long-lived stream, no request timeout.
		r.Get("/events", handlers.Events(d))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Use(middleware.AllowContentType("application/json"))

			create := mw.RateLimit(mw.RateLimitConfig{
				Burst:             d.CreateRateLimit,
				RefillPerIPPerMin: d.CreateRateLimit,
				MaxEntries:        10_000,
				TrustProxy:        d.TrustProxy,
			})

			r.Get("/links", handlers.ListLinks(d))
			r.With(create).Post("/links", handlers.CreateLink(d))
			r.With(create).Post("/links/share", handlers.ShareLink(d))
			r.Post("/links/cleanup/{kind}", handlers.Cleanup(d))
			r.Patch("/links/{key}", handlers.UpdateLink(d))
			r.Delete("/links/{key}", handlers.DeleteLink(d))
			r.Post("/links/{key}/favorite", handlers.ToggleFavorite(d))
			r.Post("/links/{key}/read", handlers.ToggleRead(d))
			r.Post("/links/{key}/move", handlers.MoveLink(d))

			r.Get("/folders", handlers.ListFolders(d))
			r.Post("/folders", handlers.CreateFolder(d))
			r.Post("/folders/reorder", handlers.ReorderFolders(d))
			r.Post("/folders/drag/start", handlers.StartDrag(d))
			r.Post("/folders/drag/hover", handlers.HoverDrag(d))
			r.Post("/folders/drag/commit", handlers.CommitDrag(d))
			r.Post("/folders/drag/cancel", handlers.CancelDrag(d))
			r.Patch("/folders/{key}", handlers.RenameFolder(d))
			r.Delete("/folders/{key}", handlers.DeleteFolder(d))

			r.Put("/filter", handlers.UpdateFilter(d))
			r.Post("/sort/toggle", handlers.ToggleSort(d))

			r.Post("/selection/enter", handlers.EnterSelection(d))
			r.Post("/selection/exit", handlers.ExitSelection(d))
			r.Post("/selection/toggle/{key}", handlers.ToggleSelected(d))
			r.Post("/selection/move", handlers.MoveSelected(d))
			r.Post("/selection/delete", handlers.DeleteSelected(d))

			r.Get("/session", handlers.SessionInfo(d))
			r.Post("/session/signin", handlers.SignIn(d))
			r.Post("/session/signout", handlers.SignOut(d))
		})
	})
}
