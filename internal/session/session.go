// Package session holds the per-user context: the active backend and its
// subscriptions, the filter selection, the multi-select set and a pending
// shared link. Sign-in and sign-out swap the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/enrich"
	"github.com/MrSnakeDoc/linkpocket/internal/index"
	"github.com/MrSnakeDoc/linkpocket/internal/lifecycle"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/order"
	"github.com/MrSnakeDoc/linkpocket/internal/query"
	"github.com/MrSnakeDoc/linkpocket/internal/syncer"
)

var (
	ErrRemoteUnavailable = errors.New("sign-in is not configured")
	ErrEmptyUID          = errors.New("user id is empty")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrNotStarted        = errors.New("session not started")
	ErrNoDrag            = errors.New("no folder drag in progress")
	ErrNoSharedLink      = errors.New("no link found in shared content")
)

// RemoteFactory opens the remote backend of a signed-in user.
type RemoteFactory func(uid string) (backend.Backend, error)

// Option customizes a Session.
type Option func(*Session)

// WithDefaultFolderNames names the folders provisioned into empty accounts.
func WithDefaultFolderNames(names [2]string) Option {
	return func(s *Session) { s.folderNames = names }
}

// WithClock replaces time.Now in every component the session builds.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is safe for concurrent use. Its lock is never held across backend
// calls or enrichment.
type Session struct {
	local    backend.Backend
	remote   RemoteFactory
	enricher enrich.Enricher
	index    *index.MemoryIndex
	logger   logger.Logger

	folderNames [2]string
	now         func() time.Time

	creating atomic.Bool

	// switchMu serializes backend swaps so exactly one syncer is attached.
	switchMu sync.Mutex

	mu        sync.Mutex
	active    backend.Backend
	syncer    *syncer.Syncer
	manager   *lifecycle.Manager
	user      string
	selection query.Selection
	selecting bool
	selected  map[string]struct{}
	pending   string
	drag      *order.Drag
}

// New creates a session on the local backend. remote may be nil, in which
// case SignIn fails with ErrRemoteUnavailable.
func New(local backend.Backend, remote RemoteFactory, enricher enrich.Enricher, idx *index.MemoryIndex, log logger.Logger, opts ...Option) *Session {
	s := &Session{
		local:       local,
		remote:      remote,
		enricher:    enricher,
		index:       idx,
		logger:      log.Named("session"),
		folderNames: syncer.DefaultFolderNames,
		now:         time.Now,
		selection:   query.DefaultSelection(),
		selected:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start attaches the local backend.
func (s *Session) Start(ctx context.Context) error {
	return s.switchTo(ctx, s.local, "")
}

// Close detaches the active backend.
func (s *Session) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	old := s.syncer
	s.syncer, s.manager, s.active = nil, nil, nil
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// SignIn switches to the remote backend of uid.
func (s *Session) SignIn(ctx context.Context, uid string) error {
	if s.remote == nil {
		return ErrRemoteUnavailable
	}
	if uid == "" {
		return ErrEmptyUID
	}
	b, err := s.remote(uid)
	if err != nil {
		return fmt.Errorf("open remote backend: %w", err)
	}
	return s.switchTo(ctx, b, uid)
}

// SignOut switches back to the local backend.
func (s *Session) SignOut(ctx context.Context) error {
	return s.switchTo(ctx, s.local, "")
}

// switchTo detaches every subscription of the current backend, resets the
// mirror and transient state, then attaches b. Concurrent calls run one after
// the other; the last one wins.
func (s *Session) switchTo(ctx context.Context, b backend.Backend, uid string) error {
	if err := s.attach(ctx, b, uid); err != nil {
		return err
	}
	s.flushPending(ctx)
	return nil
}

func (s *Session) attach(ctx context.Context, b backend.Backend, uid string) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	old := s.syncer
	s.syncer, s.manager, s.active = nil, nil, nil
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	s.mu.Lock()
	s.selection = query.DefaultSelection()
	s.selecting = false
	s.selected = make(map[string]struct{})
	s.drag = nil
	s.user = uid
	s.mu.Unlock()

	s.index.Reset()

	sy := syncer.New(b, s.index, s.logger,
		syncer.WithDefaultFolderNames(s.folderNames),
		syncer.WithClock(s.now))
	if err := sy.Start(ctx); err != nil {
		return fmt.Errorf("attach %s backend: %w", b.Name(), err)
	}
	m := lifecycle.New(b, s.index, s.enricher, s.logger, lifecycle.WithClock(s.now))

	s.mu.Lock()
	s.active, s.syncer, s.manager = b, sy, m
	s.mu.Unlock()

	s.logger.Info("backend attached", logger.String("backend", b.Name()), logger.Bool("signed_in", uid != ""))
	return nil
}

// Info describes the session for the presentation layer.
type Info struct {
	Backend   string `json:"backend"`
	User      string `json:"user,omitempty"`
	SignedIn  bool   `json:"signedIn"`
	Ready     bool   `json:"ready"`
	CanSignIn bool   `json:"canSignIn"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{User: s.user, SignedIn: s.user != "", CanSignIn: s.remote != nil}
	if s.active != nil {
		info.Backend = s.active.Name()
	}
	if s.syncer != nil {
		info.Ready = s.syncer.Ready()
	}
	return info
}

// Ready reports whether the attached backend delivered both collections.
func (s *Session) Ready() bool {
	return s.Info().Ready
}

// Index exposes the mirror for listeners.
func (s *Session) Index() *index.MemoryIndex {
	return s.index
}

func (s *Session) current() (*lifecycle.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manager == nil {
		return nil, ErrNotStarted
	}
	return s.manager, nil
}

// perLink returns the manager unless selection mode is on.
func (s *Session) perLink() (*lifecycle.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manager == nil {
		return nil, ErrNotStarted
	}
	if s.selecting {
		return nil, lifecycle.ErrSelectionMode
	}
	return s.manager, nil
}

// ─────────────────────────────────────────────────────────────────
// Views
// ─────────────────────────────────────────────────────────────────

// View is the visible link sequence with the state that produced it.
type View struct {
	query.Result
	Selection query.Selection `json:"selection"`
	Selecting bool            `json:"selecting"`
	Selected  []string        `json:"selected"`
	Counts    query.Counts    `json:"counts"`
}

func (s *Session) Links() View {
	s.mu.Lock()
	sel := s.selection
	selecting := s.selecting
	selected := s.selectedKeysLocked()
	s.mu.Unlock()

	links := s.index.Links()
	return View{
		Result:    query.Apply(links, sel),
		Selection: sel,
		Selecting: selecting,
		Selected:  selected,
		Counts:    query.Count(links),
	}
}

// Folders returns the folders in display order.
func (s *Session) Folders() []model.Folder {
	return s.index.Folders()
}

func (s *Session) Selection() query.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// FilterUpdate changes any subset of the filter selection.
type FilterUpdate struct {
	Filter     *string `json:"filter,omitempty"`
	Folder     *string `json:"folder,omitempty"`
	SearchText *string `json:"searchText,omitempty"`
}

// UpdateFilter applies u. Setting search text selects the search filter.
// Any other category filter leaves selection mode and clears the search text.
func (s *Session) UpdateFilter(u FilterUpdate) (query.Selection, error) {
	var filter query.Filter
	if u.Filter != nil {
		f, ok := query.ParseFilter(*u.Filter)
		if !ok {
			return query.Selection{}, fmt.Errorf("%w: %q", ErrInvalidFilter, *u.Filter)
		}
		filter = f
	}
	if u.Folder != nil && *u.Folder == "" {
		return query.Selection{}, fmt.Errorf("%w: empty folder", ErrInvalidFilter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.SearchText != nil {
		s.selection.SearchText = *u.SearchText
		if filter == "" {
			filter = query.FilterSearch
		}
	}
	if filter != "" {
		s.selection.Filter = filter
		if filter != query.FilterSearch {
			s.selection.SearchText = ""
			s.exitSelectionLocked()
		}
	}
	if u.Folder != nil {
		s.selection.Folder = *u.Folder
	}
	return s.selection, nil
}

// ToggleSort flips the sort direction and returns whether it is ascending.
func (s *Session) ToggleSort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Ascending = !s.selection.Ascending
	return s.selection.Ascending
}

// ─────────────────────────────────────────────────────────────────
// Selection mode
// ─────────────────────────────────────────────────────────────────

func (s *Session) EnterSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selecting = true
}

func (s *Session) ExitSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitSelectionLocked()
}

func (s *Session) exitSelectionLocked() {
	s.selecting = false
	s.selected = make(map[string]struct{})
}

// ToggleSelected adds or removes key from the selection set, entering
// selection mode if needed. It returns whether key is now selected.
func (s *Session) ToggleSelected(key string) (bool, error) {
	if _, ok := s.index.Link(key); !ok {
		return false, fmt.Errorf("%w: %s", lifecycle.ErrUnknownLink, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selecting = true
	if _, ok := s.selected[key]; ok {
		delete(s.selected, key)
		return false, nil
	}
	s.selected[key] = struct{}{}
	return true, nil
}

func (s *Session) selectedKeysLocked() []string {
	keys := make([]string, 0, len(s.selected))
	for k := range s.selected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Session) takeSelection() (*lifecycle.Manager, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manager == nil {
		return nil, nil, ErrNotStarted
	}
	keys := s.selectedKeysLocked()
	if len(keys) == 0 {
		return nil, nil, lifecycle.ErrEmptySelection
	}
	return s.manager, keys, nil
}

// MoveSelected moves the selected links, then clears the set and leaves
// selection mode.
func (s *Session) MoveSelected(ctx context.Context, folderKey string) (int, error) {
	m, keys, err := s.takeSelection()
	if err != nil {
		return 0, err
	}
	if err := m.MoveLinks(ctx, keys, folderKey); err != nil {
		return 0, err
	}
	s.ExitSelection()
	return len(keys), nil
}

// DeleteSelected deletes the selected links, then clears the set and leaves
// selection mode. Partial failures are returned with the success count.
func (s *Session) DeleteSelected(ctx context.Context) (int, error) {
	m, keys, err := s.takeSelection()
	if err != nil {
		return 0, err
	}
	n, err := m.DeleteLinks(ctx, keys)
	s.ExitSelection()
	return n, err
}
