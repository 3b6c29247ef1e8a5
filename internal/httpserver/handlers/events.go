package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/index"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

const heartbeatInterval = 25 * time.Second

type changeEvent struct {
	Collection string `json:"collection"`
	Links      int    `json:"links"`
	Folders    int    `json:"folders"`
}

// Events streams one server-sent event per applied snapshot. Clients re-read
// /api/links or /api/folders when notified. A slow client only loses
// intermediate events, never the latest one per collection.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// The stream outlives the server's write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		idx := d.Session.Index()
		pending := make(chan index.Change, 8)
		remove := idx.OnChange(func(c index.Change) {
			select {
			case pending <- c:
			default:
			}
		})
		defer remove()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			d.Logger.Debug("event stream not flushable", logger.Error(err))
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			case c := <-pending:
				payload, _ := json.Marshal(changeEvent{
					Collection: string(c.Collection),
					Links:      idx.LinkCount(),
					Folders:    idx.FolderCount(),
				})
				if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
