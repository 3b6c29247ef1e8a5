package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/MrSnakeDoc/linkpocket/internal/backend/local"
	"github.com/MrSnakeDoc/linkpocket/internal/enrich"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/index"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/session"
)

type stubEnricher struct {
	err error
}

func (e *stubEnricher) Enrich(context.Context, string) (enrich.Metadata, error) {
	return enrich.Metadata{Title: "A page"}, e.err
}

type harness struct {
	handler  http.Handler
	session  *session.Session
	enricher *stubEnricher
}

func newHarness(t *testing.T, mutate ...func(*deps.Deps)) *harness {
	t.Helper()
	b, err := local.New(local.NewMemoryBlobs(), logger.Nop())
	assert.NilError(t, err)

	e := &stubEnricher{}
	s := session.New(b, nil, e, index.NewMemoryIndex(), logger.Nop())
	assert.NilError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if s.Ready() && s.Index().FolderCount() == 2 {
			return poll.Success()
		}
		return poll.Continue("waiting for default folders")
	}, poll.WithTimeout(2*time.Second), poll.WithDelay(10*time.Millisecond))

	d := deps.Deps{
		Logger:     logger.Nop(),
		StartTime:  time.Now(),
		Version:    "test",
		TimeNow:    time.Now,
		LocalStore: "memory",
		Session:    s,
	}
	for _, m := range mutate {
		m(&d)
	}
	return &harness{handler: NewRouter(logger.Nop(), d), session: s, enricher: e}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error
}

func TestProbes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	var ready struct {
		Ready   bool   `json:"ready"`
		Backend string `json:"backend"`
	}
	decodeBody(t, rec, &ready)
	assert.Assert(t, ready.Ready)
	assert.Equal(t, ready.Backend, "local")

	rec = h.do(t, http.MethodGet, "/api/infra", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	var infra struct {
		Status     string `json:"status"`
		Components map[string]struct {
			OK   bool   `json:"ok"`
			Mode string `json:"mode"`
		} `json:"components"`
	}
	decodeBody(t, rec, &infra)
	assert.Equal(t, infra.Status, "ok")
	assert.Equal(t, infra.Components["redis"].Mode, "disabled")
	assert.Equal(t, infra.Components["local_store"].Mode, "memory")
}

func TestLinksLifecycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/links", `{"url":"example.org"}`)
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created struct {
		Key   string `json:"key"`
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	decodeBody(t, rec, &created)
	assert.Assert(t, created.Key != "")
	assert.Equal(t, created.URL, "https://example.org")
	assert.Equal(t, created.Title, "A page")

	rec = h.do(t, http.MethodPatch, "/api/links/"+created.Key, `{"category":"news","title":"Renamed"}`)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	rec = h.do(t, http.MethodPost, "/api/links/"+created.Key+"/favorite", "")
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodPost, "/api/links/"+created.Key+"/read", "")
	assert.Equal(t, rec.Code, http.StatusConflict)

	rec = h.do(t, http.MethodGet, "/api/links", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	var list struct {
		Links []struct {
			Key        string `json:"key"`
			Title      string `json:"title"`
			Category   string `json:"category"`
			IsFavorite bool   `json:"isFavorite"`
		} `json:"links"`
		Counts struct {
			Total int `json:"total"`
		} `json:"counts"`
	}
	decodeBody(t, rec, &list)
	assert.Equal(t, len(list.Links), 1)
	assert.Equal(t, list.Links[0].Title, "Renamed")
	assert.Equal(t, list.Links[0].Category, "news")
	assert.Assert(t, list.Links[0].IsFavorite)
	assert.Equal(t, list.Counts.Total, 1)

	rec = h.do(t, http.MethodPost, "/api/links/"+created.Key+"/move", `{"folderKey":"`+model.DefaultFolderKey1+`"}`)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	rec = h.do(t, http.MethodDelete, "/api/links/"+created.Key, "")
	assert.Equal(t, rec.Code, http.StatusNoContent)
	assert.Equal(t, h.session.Index().LinkCount(), 0)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/links", `{"url":"  "}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
	assert.Assert(t, strings.Contains(errorOf(t, rec), "url is empty"))

	rec = h.do(t, http.MethodPost, "/api/links", `{"link":"x"}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest, "unknown fields are rejected")

	rec = h.do(t, http.MethodPost, "/api/links/missing/favorite", "")
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = h.do(t, http.MethodPut, "/api/filter", `{"filter":"bogus"}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = h.do(t, http.MethodPost, "/api/session/signin", `{"uid":"u1"}`)
	assert.Equal(t, rec.Code, http.StatusConflict)

	rec = h.do(t, http.MethodPost, "/api/links/cleanup/everything", "")
	assert.Equal(t, rec.Code, http.StatusNotFound)

	h.enricher.err = errors.New("upstream down")
	rec = h.do(t, http.MethodPost, "/api/links", `{"url":"example.org"}`)
	assert.Equal(t, rec.Code, http.StatusBadGateway)
	assert.Equal(t, h.session.Index().LinkCount(), 0)
}

func TestFoldersAndReorder(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/folders", `{"name":"Work"}`)
	assert.Equal(t, rec.Code, http.StatusCreated)
	var work struct {
		Key   string `json:"key"`
		Order int    `json:"order"`
	}
	decodeBody(t, rec, &work)
	assert.Equal(t, work.Order, 2)

	rec = h.do(t, http.MethodPost, "/api/folders/reorder", `{"fromKey":"`+work.Key+`","targetKey":"`+model.DefaultFolderKey1+`"}`)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodGet, "/api/folders", "")
	var list struct {
		Folders []struct {
			Key string `json:"key"`
		} `json:"folders"`
	}
	decodeBody(t, rec, &list)
	assert.Equal(t, len(list.Folders), 3)
	assert.Equal(t, list.Folders[0].Key, work.Key)

	rec = h.do(t, http.MethodPost, "/api/folders/reorder", `{"fromKey":"`+work.Key+`"}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = h.do(t, http.MethodPatch, "/api/folders/"+work.Key, `{"name":"Job"}`)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	rec = h.do(t, http.MethodDelete, "/api/folders/"+work.Key, "")
	assert.Equal(t, rec.Code, http.StatusNoContent)
	assert.Equal(t, len(h.session.Folders()), 2)
}

func TestFolderDrag(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/folders/drag/commit", "")
	assert.Equal(t, rec.Code, http.StatusConflict)

	rec = h.do(t, http.MethodPost, "/api/folders/drag/start", `{"fromKey":"`+model.DefaultFolderKey1+`"}`)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodPost, "/api/folders/drag/hover", `{"pointerY":100,"elements":[
		{"key":"`+model.DefaultFolderKey1+`","top":0,"height":40},
		{"key":"`+model.DefaultFolderKey2+`","top":40,"height":40}]}`)
	assert.Equal(t, rec.Code, http.StatusOK)
	var preview struct {
		Preview []string `json:"preview"`
	}
	decodeBody(t, rec, &preview)
	assert.DeepEqual(t, preview.Preview, []string{model.DefaultFolderKey2, model.DefaultFolderKey1})

	rec = h.do(t, http.MethodPost, "/api/folders/drag/commit", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, h.session.Folders()[0].Key, model.DefaultFolderKey2)
}

func TestSelectionEndpoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.session.CreateLink(ctx, "a.example")
	assert.NilError(t, err)
	_, err = h.session.CreateLink(ctx, "b.example")
	assert.NilError(t, err)

	rec := h.do(t, http.MethodPost, "/api/selection/toggle/"+a.Key, "")
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodPost, "/api/links/"+a.Key+"/favorite", "")
	assert.Equal(t, rec.Code, http.StatusConflict, "per-link intents are blocked while selecting")

	rec = h.do(t, http.MethodPost, "/api/selection/delete", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	var count struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &count)
	assert.Equal(t, count.Count, 1)
	assert.Equal(t, h.session.Index().LinkCount(), 1)

	rec = h.do(t, http.MethodPost, "/api/selection/move", `{"folderKey":"`+model.DefaultFolderKey1+`"}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest, "empty selection")

	rec = h.do(t, http.MethodPut, "/api/filter", `{"searchText":"b.example"}`)
	assert.Equal(t, rec.Code, http.StatusOK)
	rec = h.do(t, http.MethodPost, "/api/sort/toggle", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	var sel struct {
		Filter    string `json:"filter"`
		Ascending bool   `json:"ascending"`
	}
	decodeBody(t, rec, &sel)
	assert.Equal(t, sel.Filter, "search")
	assert.Assert(t, sel.Ascending)
}

func TestShareAndCleanup(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/links/share", `{"title":"look","text":"see https://shared.example/a now"}`)
	assert.Equal(t, rec.Code, http.StatusCreated)

	rec = h.do(t, http.MethodPost, "/api/links/share", `{"text":"no link"}`)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = h.do(t, http.MethodPost, "/api/links/cleanup/all", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	var count struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &count)
	assert.Equal(t, count.Count, 1)
}

func TestAllowList(t *testing.T) {
	h := newHarness(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })

	// httptest requests come from 192.0.2.1.
	assert.Equal(t, h.do(t, http.MethodGet, "/api/links", "").Code, http.StatusForbidden)
	assert.Equal(t, h.do(t, http.MethodGet, "/readyz", "").Code, http.StatusForbidden)
	assert.Equal(t, h.do(t, http.MethodGet, "/healthz", "").Code, http.StatusOK)
}

func TestCreateRateLimit(t *testing.T) {
	h := newHarness(t, func(d *deps.Deps) { d.CreateRateLimit = 1 })

	assert.Equal(t, h.do(t, http.MethodPost, "/api/links", `{"url":"a.example"}`).Code, http.StatusCreated)
	assert.Equal(t, h.do(t, http.MethodPost, "/api/links", `{"url":"b.example"}`).Code, http.StatusTooManyRequests)
	assert.Equal(t, h.do(t, http.MethodGet, "/api/links", "").Code, http.StatusOK)
}

func TestEventsStream(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	assert.NilError(t, err)
	resp, err := srv.Client().Do(req)
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, resp.Header.Get("Content-Type"), "text/event-stream")

	_, err = h.session.CreateLink(context.Background(), "stream.example")
	assert.NilError(t, err)

	reader := bufio.NewReader(resp.Body)
	var sawEvent bool
	for {
		line, err := reader.ReadString('\n')
		assert.NilError(t, err)
		line = strings.TrimSpace(line)
		if line == "event: change" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") && strings.Contains(line, `"links":1`) {
			assert.Assert(t, strings.Contains(line, `"collection":"links"`), line)
			return
		}
	}
}
