// Package syncer keeps the in-memory index current by applying backend
// snapshots as they arrive.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/index"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/order"
)

// DefaultFolderNames are used when none are configured.
var DefaultFolderNames = [2]string{"Folder 1", "Folder 2"}

// Syncer subscribes to both collections of one backend and applies every
// snapshot to the index.
type Syncer struct {
	backend backend.Backend
	index   *index.MemoryIndex
	orders  *order.Manager
	names   [2]string
	now     func() time.Time
	logger  logger.Logger

	// ctx is set once by Start, before any handler can run.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	subs    []backend.Subscription

	linksReady   atomic.Bool
	foldersReady atomic.Bool
}

// Option customizes a Syncer.
type Option func(*Syncer)

// WithDefaultFolderNames sets the names of the folders provisioned into an
// empty collection.
func WithDefaultFolderNames(names [2]string) Option {
	return func(s *Syncer) {
		if names[0] != "" && names[1] != "" {
			s.names = names
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New creates a syncer for b writing into idx.
func New(b backend.Backend, idx *index.MemoryIndex, log logger.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		backend: b,
		index:   idx,
		names:   DefaultFolderNames,
		now:     time.Now,
		logger:  log.Named("syncer"),
	}
	s.orders = order.NewManager(b, log)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start attaches the link and folder subscriptions. A syncer starts once.
// Writes issued from snapshot handlers use a context detached from ctx's
// cancellation and cancelled by Stop.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("syncer already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	s.logger.Info("attaching subscriptions", logger.String("backend", s.backend.Name()))

	// Handlers may run synchronously inside Subscribe, so no lock is held here.
	links, err := s.backend.Subscribe(ctx, backend.Links, s.applyLinks)
	if err != nil {
		s.cancel()
		return fmt.Errorf("subscribe links: %w", err)
	}
	folders, err := s.backend.Subscribe(ctx, backend.Folders, s.applyFolders)
	if err != nil {
		links.Unsubscribe()
		s.cancel()
		return fmt.Errorf("subscribe folders: %w", err)
	}

	s.mu.Lock()
	s.subs = []backend.Subscription{links, folders}
	s.mu.Unlock()
	return nil
}

// Stop detaches every subscription. When it returns no snapshot handler is
// running or will run again.
func (s *Syncer) Stop() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	cancel := s.cancel
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.linksReady.Store(false)
	s.foldersReady.Store(false)

	if len(subs) > 0 {
		s.logger.Info("subscriptions detached", logger.String("backend", s.backend.Name()))
	}
}

// Ready reports whether both collections have received a first snapshot.
func (s *Syncer) Ready() bool {
	return s.linksReady.Load() && s.foldersReady.Load()
}

// Backend returns the backend the syncer is attached to.
func (s *Syncer) Backend() backend.Backend {
	return s.backend
}

func (s *Syncer) writeCtx() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Syncer) applyLinks(snap backend.Snapshot) {
	links := make([]model.Link, 0, len(snap))
	for key, rec := range snap {
		l, err := model.DecodeLink(key, rec)
		if err != nil {
			s.logger.Warn("skipping undecodable link", logger.String("key", key), logger.Error(err))
			continue
		}
		links = append(links, l)
	}

	s.index.ReplaceLinks(links)
	s.linksReady.Store(true)
	s.logger.Debug("links applied", logger.Int("count", len(links)))
	s.index.Notify(index.Change{Collection: backend.Links})
}

func (s *Syncer) applyFolders(snap backend.Snapshot) {
	if len(snap) == 0 {
		s.provisionDefaults()
		return
	}

	folders := make([]model.Folder, 0, len(snap))
	for key, rec := range snap {
		f, err := model.DecodeFolder(key, rec)
		if err != nil {
			s.logger.Warn("skipping undecodable folder", logger.String("key", key), logger.Error(err))
			continue
		}
		folders = append(folders, f)
	}

	normalized, dirty := order.Normalize(folders)
	s.index.ReplaceFolders(normalized)
	s.foldersReady.Store(true)

	if len(dirty) > 0 {
		s.logger.Info("normalizing folder order", logger.Int("changes", len(dirty)))
		if err := s.orders.Persist(s.writeCtx(), dirty); err != nil {
			s.logger.Error("folder order normalization failed", logger.Error(err))
		}
	}

	s.logger.Debug("folders applied", logger.Int("count", len(normalized)))
	s.index.Notify(index.Change{Collection: backend.Folders})
}

// provisionDefaults writes the two default folders. The mirror is left as is;
// the resulting snapshot fills it.
func (s *Syncer) provisionDefaults() {
	defaults := model.DefaultFolders(s.names, model.Millis(s.now()))
	updates := make(backend.Updates, len(defaults)*3)
	for _, f := range defaults {
		for field, v := range f.Fields() {
			updates[backend.Path{Collection: backend.Folders, Key: f.Key, Field: field}] = v
		}
	}

	s.logger.Info("provisioning default folders")
	if err := s.backend.WriteMany(s.writeCtx(), updates); err != nil {
		s.logger.Error("default folder provisioning failed", logger.Error(err))
	}
}
