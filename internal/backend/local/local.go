// Package local implements the anonymous-mode backend: both collections are
// kept in memory and persisted wholesale as JSON blobs on the device.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

// Blob names, kept from the browser storage keys so exported data stays readable.
const (
	LinksBlob   = "linkpocket_guest_data"
	FoldersBlob = "linkpocket_guest_folders"
)

// Store kinds accepted by OpenBlobs.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// OpenBlobs builds the blob store selected by configuration.
func OpenBlobs(kind, dir string) (BlobStore, error) {
	switch kind {
	case KindFile, "":
		return NewFileBlobs(dir), nil
	case KindSQLite:
		return NewSQLiteBlobs(filepath.Join(dir, "linkpocket.db"))
	case KindMemory:
		return NewMemoryBlobs(), nil
	default:
		return nil, fmt.Errorf("unknown local store kind %q", kind)
	}
}

func blobName(c backend.Collection) string {
	if c == backend.Folders {
		return FoldersBlob
	}
	return LinksBlob
}

func keyPrefix(c backend.Collection) string {
	if c == backend.Folders {
		return "folder"
	}
	return "link"
}

type delivery struct {
	sub  *subscription
	snap backend.Snapshot
}

// Backend is the local persistence variant. Notifications fire only for
// mutations made through this value, in commit order, one callback at a time.
//
// A write normally returns after its snapshot has reached every subscriber.
// Two cases hand delivery to a drain already running instead: a write issued
// from inside a callback is delivered after that callback returns, and a write
// made while another goroutine is delivering returns early, its snapshot
// following before that goroutine's own call returns.
type Backend struct {
	blobs BlobStore
	log   logger.Logger

	mu     sync.Mutex
	state  map[backend.Collection]backend.Snapshot
	subs   map[backend.Collection]map[uint64]*subscription
	nextID uint64

	qmu      sync.Mutex
	queue    []delivery
	draining bool
}

// New loads both blobs from the store.
func New(blobs BlobStore, log logger.Logger) (*Backend, error) {
	b := &Backend{
		blobs: blobs,
		log:   log.Named("local"),
		state: make(map[backend.Collection]backend.Snapshot, len(backend.Collections)),
		subs:  make(map[backend.Collection]map[uint64]*subscription, len(backend.Collections)),
	}
	for _, c := range backend.Collections {
		snap, err := b.load(c)
		if err != nil {
			return nil, err
		}
		b.state[c] = snap
		b.subs[c] = make(map[uint64]*subscription)
	}
	return b, nil
}

func (b *Backend) load(c backend.Collection) (backend.Snapshot, error) {
	data, ok, err := b.blobs.Get(blobName(c))
	if err != nil {
		return nil, err
	}
	snap := backend.Snapshot{}
	if !ok || len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", blobName(c), err)
	}
	if snap == nil {
		// a stored "null"
		snap = backend.Snapshot{}
	}
	return snap, nil
}

func (b *Backend) Name() string { return "local" }

// Close releases the blob store.
func (b *Backend) Close() error {
	return b.blobs.Close()
}

// Write creates or patches one entity.
func (b *Backend) Write(ctx context.Context, c backend.Collection, key string, patch backend.Patch) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !c.Valid() {
		return "", fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}
	if key == "" {
		key = model.NewLocalKey(keyPrefix(c))
	}

	err := b.mutate(func(next map[backend.Collection]backend.Snapshot) ([]backend.Collection, error) {
		snap := next[c]
		prev, exists := snap[key]
		if !exists && !patch.HasValues() {
			return []backend.Collection{c}, nil
		}
		rec, err := prev.Apply(patch)
		if err != nil {
			return nil, err
		}
		snap[key] = rec
		return []backend.Collection{c}, nil
	})
	if err != nil {
		return "", fmt.Errorf("write %s/%s: %w", c, key, err)
	}
	return key, nil
}

// WriteMany applies every path in one step; either all of it is persisted or
// the in-memory state is left unchanged.
func (b *Backend) WriteMany(ctx context.Context, updates backend.Updates) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := updates.Validate(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	err := b.mutate(func(next map[backend.Collection]backend.Snapshot) ([]backend.Collection, error) {
		touched := make(map[backend.Collection]bool, 2)
		for _, p := range updates.Sorted() {
			v := updates[p]
			touched[p.Collection] = true
			snap := next[p.Collection]
			if p.Field == "" {
				delete(snap, p.Key)
				continue
			}
			rec, exists := snap[p.Key]
			if !exists && v == nil {
				continue
			}
			out, err := rec.Apply(backend.Patch{p.Field: v})
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			snap[p.Key] = out
		}
		return orderedCollections(touched), nil
	})
	if err != nil {
		return fmt.Errorf("write many: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, c backend.Collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}
	err := b.mutate(func(next map[backend.Collection]backend.Snapshot) ([]backend.Collection, error) {
		delete(next[c], key)
		return []backend.Collection{c}, nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, key, err)
	}
	return nil
}

func (b *Backend) DeleteAll(ctx context.Context, c backend.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}
	err := b.mutate(func(next map[backend.Collection]backend.Snapshot) ([]backend.Collection, error) {
		next[c] = backend.Snapshot{}
		return []backend.Collection{c}, nil
	})
	if err != nil {
		return fmt.Errorf("delete all %s: %w", c, err)
	}
	return nil
}

// mutate runs fn against a copy of the state, persists every collection fn
// reports as touched, then commits and queues notifications.
func (b *Backend) mutate(fn func(next map[backend.Collection]backend.Snapshot) ([]backend.Collection, error)) error {
	b.mu.Lock()

	next := make(map[backend.Collection]backend.Snapshot, len(b.state))
	for c, snap := range b.state {
		next[c] = snap.Clone()
	}

	touched, err := fn(next)
	if err != nil {
		b.mu.Unlock()
		return err
	}

	for i, c := range touched {
		if err := b.persist(c, next[c]); err != nil {
			// Put back the blobs already rewritten by this step.
			for _, done := range touched[:i] {
				if rerr := b.persist(done, b.state[done]); rerr != nil {
					b.log.Error("restore blob failed", logger.String("blob", blobName(done)), logger.Error(rerr))
				}
			}
			b.mu.Unlock()
			return err
		}
	}

	for _, c := range touched {
		b.state[c] = next[c]
	}
	pending := make([]delivery, 0, len(touched))
	for _, c := range touched {
		for _, sub := range b.subs[c] {
			pending = append(pending, delivery{sub: sub, snap: next[c].Clone()})
		}
	}
	b.push(pending...)
	b.mu.Unlock()

	b.drain()
	return nil
}

func (b *Backend) persist(c backend.Collection, snap backend.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", blobName(c), err)
	}
	if err := b.blobs.Put(blobName(c), data); err != nil {
		return err
	}
	b.log.Debug("blob saved", logger.String("blob", blobName(c)), logger.Int("entries", len(snap)))
	return nil
}

// Subscribe registers fn and delivers the current snapshot right away.
// Unsubscribe must not be called from inside fn.
func (b *Backend) Subscribe(ctx context.Context, c backend.Collection, fn backend.SnapshotFunc) (backend.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, collection: c, fn: fn, owner: b}
	b.subs[c][sub.id] = sub
	b.push(delivery{sub: sub, snap: b.state[c].Clone()})
	b.mu.Unlock()

	b.drain()
	return sub, nil
}

// push queues deliveries. Callers hold b.mu so the queue follows commit order.
func (b *Backend) push(items ...delivery) {
	b.qmu.Lock()
	b.queue = append(b.queue, items...)
	b.qmu.Unlock()
}

// drain delivers queued snapshots unless a drain is already running higher
// up the stack or on another goroutine, in which case that drain picks them
// up in order.
func (b *Backend) drain() {
	b.qmu.Lock()
	if b.draining {
		b.qmu.Unlock()
		return
	}
	b.draining = true

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		next.sub.deliver(next.snap)

		b.qmu.Lock()
	}
	b.draining = false
	b.qmu.Unlock()
}

type subscription struct {
	id         uint64
	collection backend.Collection
	fn         backend.SnapshotFunc
	owner      *Backend

	mu     sync.Mutex
	closed bool
}

func (s *subscription) deliver(snap backend.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(snap)
}

func (s *subscription) Unsubscribe() {
	s.owner.mu.Lock()
	delete(s.owner.subs[s.collection], s.id)
	s.owner.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func orderedCollections(set map[backend.Collection]bool) []backend.Collection {
	out := make([]backend.Collection, 0, len(set))
	for _, c := range backend.Collections {
		if set[c] {
			out = append(out, c)
		}
	}
	return out
}
