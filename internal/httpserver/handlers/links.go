package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/lifecycle"
	"github.com/MrSnakeDoc/linkpocket/internal/query"
	"github.com/MrSnakeDoc/linkpocket/internal/session"
)

type linksResponse struct {
	Links     []linkView        `json:"links"`
	Empty     query.EmptyReason `json:"empty,omitempty"`
	Selection query.Selection   `json:"selection"`
	Selecting bool              `json:"selecting"`
	Selected  []string          `json:"selected"`
	Counts    query.Counts      `json:"counts"`
	Creating  bool              `json:"creating"`
}

// ListLinks returns the visible sequence for the current selection.
func ListLinks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := d.Session.Links()
		writeJSON(w, http.StatusOK, linksResponse{
			Links:     linkViews(v.Links),
			Empty:     v.Empty,
			Selection: v.Selection,
			Selecting: v.Selecting,
			Selected:  v.Selected,
			Counts:    v.Counts,
			Creating:  d.Session.Creating(),
		})
	}
}

func CreateLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		link, err := d.Session.CreateLink(r.Context(), req.URL)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, linkView{Key: link.Key, Link: link})
	}
}

// UpdateLink edits the category and/or the title and description.
func UpdateLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		var req struct {
			Category *string `json:"category"`
			Title    *string `json:"title"`
			Desc     *string `json:"desc"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		edit := lifecycle.LinkEdit{Category: req.Category, Title: req.Title, Desc: req.Desc}
		if err := d.Session.UpdateLink(r.Context(), key, edit); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Session.DeleteLink(r.Context(), chi.URLParam(r, "key")); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type toggleResponse struct {
	Value bool `json:"value"`
}

func ToggleFavorite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := d.Session.ToggleFavorite(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toggleResponse{Value: v})
	}
}

func ToggleRead(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := d.Session.ToggleRead(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toggleResponse{Value: v})
	}
}

// MoveLink files a link; an empty folderKey unfiles it.
func MoveLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FolderKey string `json:"folderKey"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if err := d.Session.MoveLink(r.Context(), chi.URLParam(r, "key"), req.FolderKey); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type shareResponse struct {
	Deferred bool      `json:"deferred"`
	Link     *linkView `json:"link,omitempty"`
}

// ShareLink accepts a share-target payload.
func ShareLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
			Text  string `json:"text"`
			URL   string `json:"url"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		link, deferred, err := d.Session.Share(r.Context(), req.Title, req.Text, req.URL)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if deferred {
			writeJSON(w, http.StatusAccepted, shareResponse{Deferred: true})
			return
		}
		writeJSON(w, http.StatusCreated, shareResponse{Link: &linkView{Key: link.Key, Link: link}})
	}
}

type countResponse struct {
	Count int `json:"count"`
}

// Cleanup bulk-deletes non-favorites, read links or everything.
func Cleanup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")
		c, ok := session.ParseCleanup(kind)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown cleanup " + kind})
			return
		}
		n, err := d.Session.Cleanup(r.Context(), c)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}
