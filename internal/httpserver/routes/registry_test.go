package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

func TestRegisterAll(t *testing.T) {
	r := chi.NewRouter()
	RegisterAll(r, deps.Deps{Logger: logger.Nop()})

	got := map[string]bool{}
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		got[method+" "+route] = true
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	for _, want := range []string{
		"GET /healthz",
		"GET /readyz",
		"GET /api/events",
		"GET /api/links",
		"POST /api/links",
		"POST /api/links/share",
		"POST /api/links/cleanup/{kind}",
		"POST /api/links/{key}/read",
		"POST /api/folders/reorder",
		"POST /api/folders/drag/hover",
		"PUT /api/filter",
		"POST /api/selection/delete",
		"POST /api/session/signin",
	} {
		if !got[want] {
			t.Errorf("route %q not registered", want)
		}
	}
}

func TestAllowlistedGroups(t *testing.T) {
	r := chi.NewRouter()
	RegisterAll(r, deps.Deps{Logger: logger.Nop(), AllowedCIDRS: []string{"10.0.0.0/8"}})

	tests := []struct {
		path string
		want int
	}{
		{"/readyz", http.StatusForbidden},
		{"/api/links", http.StatusForbidden},
		{"/api/session", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}
