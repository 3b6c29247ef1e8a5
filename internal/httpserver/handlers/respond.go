package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/linkpocket/internal/lifecycle"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/session"
)

const maxBody = 64 << 10

var errBadRequest = errors.New("invalid request body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to a status code. Server-side failures are
// logged; notices the user can act on are not.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, lifecycle.ErrEmptyURL),
		errors.Is(err, lifecycle.ErrEmptyFolderName),
		errors.Is(err, lifecycle.ErrInvalidCategory),
		errors.Is(err, lifecycle.ErrEmptySelection),
		errors.Is(err, session.ErrInvalidFilter),
		errors.Is(err, session.ErrEmptyUID),
		errors.Is(err, session.ErrNoSharedLink):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrUnknownLink),
		errors.Is(err, lifecycle.ErrUnknownFolder):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrCreateInProgress),
		errors.Is(err, lifecycle.ErrReadWhileFavorite),
		errors.Is(err, lifecycle.ErrSelectionMode),
		errors.Is(err, session.ErrNoDrag),
		errors.Is(err, session.ErrRemoteUnavailable):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrEnrichment):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNotStarted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decode reads a bounded JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// linkView adds the record key to the stored fields.
type linkView struct {
	Key string `json:"key"`
	model.Link
}

type folderView struct {
	Key string `json:"key"`
	model.Folder
}

func linkViews(links []model.Link) []linkView {
	out := make([]linkView, len(links))
	for i, l := range links {
		out[i] = linkView{Key: l.Key, Link: l}
	}
	return out
}

func folderViews(folders []model.Folder) []folderView {
	out := make([]folderView, len(folders))
	for i, f := range folders {
		out[i] = folderView{Key: f.Key, Folder: f}
	}
	return out
}
