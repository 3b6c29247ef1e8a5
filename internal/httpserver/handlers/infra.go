package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/redis"
)

type componentStatus struct {
	OK       bool   `json:"ok"`
	Mode     string `json:"mode,omitempty"`
	Links    *int   `json:"links,omitempty"`
	Folders  *int   `json:"folders,omitempty"`
	LastSync string `json:"last_sync,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Impact   string `json:"impact,omitempty"`
	Error    string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := d.Session.Info()
		idx := d.Session.Index()

		links, folders := idx.LinkCount(), idx.FolderCount()
		linkSync, folderSync := idx.LastSync()
		last := linkSync
		if folderSync.Before(last) {
			last = folderSync
		}
		lastStr := "never"
		if !last.IsZero() {
			lastStr = last.Format("2006-01-02 15:04:05")
		}

		components := map[string]componentStatus{
			"session": {
				OK:       info.Ready,
				Mode:     info.Backend,
				Links:    &links,
				Folders:  &folders,
				LastSync: lastStr,
			},
			"local_store": {
				OK:   true,
				Mode: d.LocalStore,
			},
			"redis": checkRedis(r.Context(), d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     determineStatus(components),
			Components: components,
		})
	}
}

func determineStatus(components map[string]componentStatus) string {
	if s, ok := components["session"]; ok && !s.OK {
		return "critical" // nothing delivered yet
	}
	if rs, ok := components["redis"]; ok && !rs.OK && rs.Mode != "disabled" {
		return "degraded" // guest mode still works
	}
	return "ok"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "sign-in-disabled",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	latency, err := redis.Ping(ctx, d.RedisClient)
	if err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "unreachable",
			Impact: "sign-in-unavailable",
			Error:  err.Error(),
		}
	}
	return componentStatus{
		OK:      true,
		Mode:    "connected",
		Latency: latency.String(),
	}
}
