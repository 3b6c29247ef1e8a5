package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/linkpocket/internal/lifecycle"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/order"
	"github.com/MrSnakeDoc/linkpocket/internal/query"
)

// ─────────────────────────────────────────────────────────────────
// Links
// ─────────────────────────────────────────────────────────────────

// CreateLink saves rawURL into the selected folder, if one is selected.
// Only one creation runs at a time; a second call fails with
// ErrCreateInProgress. A shared link deferred while this one ran is saved
// right after it.
func (s *Session) CreateLink(ctx context.Context, rawURL string) (model.Link, error) {
	link, err := s.createOne(ctx, rawURL)
	if errors.Is(err, lifecycle.ErrCreateInProgress) || errors.Is(err, ErrNotStarted) {
		return link, err
	}
	s.flushPending(ctx)
	return link, err
}

func (s *Session) createOne(ctx context.Context, rawURL string) (model.Link, error) {
	m, err := s.current()
	if err != nil {
		return model.Link{}, err
	}
	if !s.creating.CompareAndSwap(false, true) {
		return model.Link{}, lifecycle.ErrCreateInProgress
	}
	defer s.creating.Store(false)

	folder, _ := s.Selection().SpecificFolder()
	return m.CreateLink(ctx, rawURL, folder)
}

// Creating reports whether a link creation is in flight.
func (s *Session) Creating() bool {
	return s.creating.Load()
}

func (s *Session) ToggleFavorite(ctx context.Context, key string) (bool, error) {
	m, err := s.perLink()
	if err != nil {
		return false, err
	}
	return m.ToggleFavorite(ctx, key)
}

func (s *Session) ToggleRead(ctx context.Context, key string) (bool, error) {
	m, err := s.perLink()
	if err != nil {
		return false, err
	}
	return m.ToggleRead(ctx, key)
}

// UpdateLink applies a combined category and text edit.
func (s *Session) UpdateLink(ctx context.Context, key string, e lifecycle.LinkEdit) error {
	m, err := s.perLink()
	if err != nil {
		return err
	}
	return m.UpdateLink(ctx, key, e)
}

// MoveLink files key under folderKey; an empty folderKey unfiles it.
func (s *Session) MoveLink(ctx context.Context, key, folderKey string) error {
	m, err := s.perLink()
	if err != nil {
		return err
	}
	return m.MoveLink(ctx, key, folderKey)
}

func (s *Session) DeleteLink(ctx context.Context, key string) error {
	m, err := s.perLink()
	if err != nil {
		return err
	}
	return m.DeleteLink(ctx, key)
}

// Cleanup selects which links a bulk delete removes.
type Cleanup string

const (
	CleanupNonFavorites Cleanup = "non-favorites"
	CleanupRead         Cleanup = "read"
	CleanupAll          Cleanup = "all"
)

// ParseCleanup accepts the Cleanup names.
func ParseCleanup(s string) (Cleanup, bool) {
	switch c := Cleanup(s); c {
	case CleanupNonFavorites, CleanupRead, CleanupAll:
		return c, true
	}
	return "", false
}

// Cleanup deletes links matching c and returns how many were removed.
// CleanupAll reports the number of links the mirror held before the delete.
func (s *Session) Cleanup(ctx context.Context, c Cleanup) (int, error) {
	m, err := s.current()
	if err != nil {
		return 0, err
	}
	switch c {
	case CleanupNonFavorites:
		return m.DeleteNonFavorites(ctx)
	case CleanupRead:
		return m.DeleteRead(ctx)
	case CleanupAll:
		n := s.index.LinkCount()
		if err := m.DeleteAllLinks(ctx); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("unknown cleanup %q", c)
}

// ─────────────────────────────────────────────────────────────────
// Folders
// ─────────────────────────────────────────────────────────────────

func (s *Session) CreateFolder(ctx context.Context, name string) (model.Folder, error) {
	m, err := s.current()
	if err != nil {
		return model.Folder{}, err
	}
	return m.CreateFolder(ctx, name)
}

func (s *Session) RenameFolder(ctx context.Context, key, name string) error {
	m, err := s.current()
	if err != nil {
		return err
	}
	return m.RenameFolder(ctx, key, name)
}

// DeleteFolder removes the folder and unfiles its links. If it was the
// selected folder the selection falls back to all links.
func (s *Session) DeleteFolder(ctx context.Context, key string) error {
	m, err := s.current()
	if err != nil {
		return err
	}
	if err := m.DeleteFolder(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	if s.selection.Folder == key {
		s.selection.Folder = query.FolderAll
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) ReorderFolder(ctx context.Context, from string, toIndex int) ([]model.Folder, error) {
	m, err := s.current()
	if err != nil {
		return nil, err
	}
	return m.ReorderFolder(ctx, from, toIndex)
}

// DropFolder moves from into target's position.
func (s *Session) DropFolder(ctx context.Context, from, target string) ([]model.Folder, error) {
	m, err := s.current()
	if err != nil {
		return nil, err
	}
	return m.DropFolder(ctx, from, target)
}

// StartDrag begins a pointer drag of folder from, replacing any drag in
// progress. It returns the preview order.
func (s *Session) StartDrag(from string) ([]string, error) {
	m, err := s.current()
	if err != nil {
		return nil, err
	}
	d, err := m.StartFolderDrag(from)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.drag = d
	s.mu.Unlock()
	return d.Preview(), nil
}

// HoverDrag moves the dragged folder to the slot under pointerY.
func (s *Session) HoverDrag(elements []order.Element, pointerY float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return nil, ErrNoDrag
	}
	return s.drag.Hover(elements, pointerY), nil
}

// CommitDrag persists the previewed order and ends the drag.
func (s *Session) CommitDrag(ctx context.Context) ([]model.Folder, error) {
	s.mu.Lock()
	d := s.drag
	s.drag = nil
	s.mu.Unlock()

	if d == nil {
		return nil, ErrNoDrag
	}
	return d.Commit(ctx)
}

// CancelDrag drops the drag without writing anything.
func (s *Session) CancelDrag() {
	s.mu.Lock()
	s.drag = nil
	s.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────
// Share target
// ─────────────────────────────────────────────────────────────────

// Share saves a link received from the share target. When no backend is
// attached yet the URL is kept until the next attach; when another creation
// is in flight it is saved as soon as that one finishes. The returned bool
// reports whether it was deferred.
func (s *Session) Share(ctx context.Context, title, text, url string) (model.Link, bool, error) {
	u, ok := lifecycle.ExtractSharedLink(title, text, url)
	if !ok {
		return model.Link{}, false, ErrNoSharedLink
	}

	link, err := s.CreateLink(ctx, u)
	switch {
	case err == nil:
		return link, false, nil
	case errors.Is(err, ErrNotStarted), errors.Is(err, lifecycle.ErrCreateInProgress):
		s.keepPending(u, true)
		s.logger.Info("shared link deferred", logger.String("url", u))
		// The running creation may have finished before u was parked.
		if errors.Is(err, lifecycle.ErrCreateInProgress) && !s.creating.Load() {
			s.flushPending(ctx)
		}
		return model.Link{}, true, nil
	}
	return model.Link{}, false, err
}

// Pending returns the deferred shared URL, if any.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// keepPending parks u. Without replace, a share parked meanwhile is kept.
func (s *Session) keepPending(u string, replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if replace || s.pending == "" {
		s.pending = u
	}
}

// flushPending saves deferred shared URLs once a backend is attached and no
// other creation is running. A share parked while one is saved is picked up by
// the next iteration.
func (s *Session) flushPending(ctx context.Context) {
	for {
		s.mu.Lock()
		u := s.pending
		s.pending = ""
		s.mu.Unlock()

		if u == "" {
			return
		}
		_, err := s.createOne(ctx, u)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotStarted):
			s.keepPending(u, false)
			return
		case errors.Is(err, lifecycle.ErrCreateInProgress):
			s.keepPending(u, false)
			if s.creating.Load() {
				return
			}
		default:
			s.logger.Warn("saving shared link failed", logger.String("url", u), logger.Error(err))
		}
	}
}
