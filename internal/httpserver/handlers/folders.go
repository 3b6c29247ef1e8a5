package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/order"
)

type foldersResponse struct {
	Folders []folderView `json:"folders"`
}

func ListFolders(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, foldersResponse{Folders: folderViews(d.Session.Folders())})
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

func CreateFolder(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		f, err := d.Session.CreateFolder(r.Context(), req.Name)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, folderView{Key: f.Key, Folder: f})
	}
}

func RenameFolder(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if err := d.Session.RenameFolder(r.Context(), chi.URLParam(r, "key"), req.Name); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteFolder(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Session.DeleteFolder(r.Context(), chi.URLParam(r, "key")); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReorderFolders takes either {fromKey, toIndex} or {fromKey, targetKey}.
func ReorderFolders(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FromKey   string `json:"fromKey"`
			ToIndex   *int   `json:"toIndex"`
			TargetKey string `json:"targetKey"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		var (
			folders []model.Folder
			err     error
		)
		switch {
		case req.FromKey == "":
			err = fmt.Errorf("%w: fromKey is required", errBadRequest)
		case req.ToIndex != nil && req.TargetKey != "":
			err = fmt.Errorf("%w: toIndex and targetKey are exclusive", errBadRequest)
		case req.ToIndex != nil:
			folders, err = d.Session.ReorderFolder(r.Context(), req.FromKey, *req.ToIndex)
		case req.TargetKey != "":
			folders, err = d.Session.DropFolder(r.Context(), req.FromKey, req.TargetKey)
		default:
			err = fmt.Errorf("%w: toIndex or targetKey is required", errBadRequest)
		}
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, foldersResponse{Folders: folderViews(folders)})
	}
}

type previewResponse struct {
	Preview []string `json:"preview"`
}

// StartDrag begins a pointer drag of one folder.
func StartDrag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FromKey string `json:"fromKey"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		preview, err := d.Session.StartDrag(req.FromKey)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, previewResponse{Preview: preview})
	}
}

type elementRequest struct {
	Key    string  `json:"key"`
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// HoverDrag updates the preview from the pointer position and the current
// geometry of the folder list.
func HoverDrag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PointerY float64          `json:"pointerY"`
			Elements []elementRequest `json:"elements"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		elements := make([]order.Element, len(req.Elements))
		for i, e := range req.Elements {
			elements[i] = order.Element{Key: e.Key, Top: e.Top, Height: e.Height}
		}
		preview, err := d.Session.HoverDrag(elements, req.PointerY)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, previewResponse{Preview: preview})
	}
}

func CommitDrag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folders, err := d.Session.CommitDrag(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, foldersResponse{Folders: folderViews(folders)})
	}
}

func CancelDrag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Session.CancelDrag()
		w.WriteHeader(http.StatusNoContent)
	}
}
