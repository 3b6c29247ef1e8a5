package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/session"
)

// UpdateFilter changes the category filter, folder filter or search text.
func UpdateFilter(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.FilterUpdate
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		sel, err := d.Session.UpdateFilter(req)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sel)
	}
}

func ToggleSort(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Session.ToggleSort()
		writeJSON(w, http.StatusOK, d.Session.Selection())
	}
}

func EnterSelection(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Session.EnterSelection()
		w.WriteHeader(http.StatusNoContent)
	}
}

func ExitSelection(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Session.ExitSelection()
		w.WriteHeader(http.StatusNoContent)
	}
}

type selectedResponse struct {
	Selected bool `json:"selected"`
}

func ToggleSelected(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		on, err := d.Session.ToggleSelected(chi.URLParam(r, "key"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, selectedResponse{Selected: on})
	}
}

func MoveSelected(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FolderKey string `json:"folderKey"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		n, err := d.Session.MoveSelected(r.Context(), req.FolderKey)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

// DeleteSelected reports partial failures as a 500 carrying the error list.
func DeleteSelected(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := d.Session.DeleteSelected(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

func SessionInfo(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Session.Info())
	}
}

func SignIn(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UID string `json:"uid"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if err := d.Session.SignIn(r.Context(), req.UID); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Session.Info())
	}
}

func SignOut(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Session.SignOut(r.Context()); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Session.Info())
	}
}
