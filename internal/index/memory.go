package index

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/order"
)

// Change tells listeners which collection was just replaced.
type Change struct {
	Collection backend.Collection
}

// Listener is notified after a snapshot has been applied.
type Listener func(Change)

// MemoryIndex is the session's mirror of links and folders. It is only
// mutated by snapshot application; every other component reads it.
type MemoryIndex struct {
	mu             sync.RWMutex
	links          map[string]model.Link   // key -> Link
	folders        map[string]model.Folder // key -> Folder
	lastLinkSync   time.Time
	lastFolderSync time.Time

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewMemoryIndex creates an empty mirror.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		links:     make(map[string]model.Link),
		folders:   make(map[string]model.Folder),
		listeners: make(map[int]Listener),
	}
}

// ReplaceLinks swaps the whole link mapping.
func (idx *MemoryIndex) ReplaceLinks(links []model.Link) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.links = make(map[string]model.Link, len(links))
	for _, l := range links {
		idx.links[l.Key] = l
	}
	idx.lastLinkSync = time.Now()
}

// ReplaceFolders swaps the whole folder mapping.
func (idx *MemoryIndex) ReplaceFolders(folders []model.Folder) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.folders = make(map[string]model.Folder, len(folders))
	for _, f := range folders {
		idx.folders[f.Key] = f
	}
	idx.lastFolderSync = time.Now()
}

// Link retrieves a link by key.
func (idx *MemoryIndex) Link(key string) (model.Link, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	l, ok := idx.links[key]
	return l, ok
}

// Links returns every link in no particular order.
func (idx *MemoryIndex) Links() []model.Link {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]model.Link, 0, len(idx.links))
	for _, l := range idx.links {
		out = append(out, l)
	}
	return out
}

func (idx *MemoryIndex) LinkCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.links)
}

// Folder retrieves a folder by key.
func (idx *MemoryIndex) Folder(key string) (model.Folder, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, ok := idx.folders[key]
	return f, ok
}

// Folders returns the folders in display order.
func (idx *MemoryIndex) Folders() []model.Folder {
	idx.mu.RLock()
	out := make([]model.Folder, 0, len(idx.folders))
	for _, f := range idx.folders {
		out = append(out, f)
	}
	idx.mu.RUnlock()

	return order.Sort(out)
}

func (idx *MemoryIndex) FolderCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.folders)
}

// LastSync returns when each collection was last replaced.
func (idx *MemoryIndex) LastSync() (links, folders time.Time) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastLinkSync, idx.lastFolderSync
}

// Reset empties the mirror. Listeners are kept.
func (idx *MemoryIndex) Reset() {
	idx.mu.Lock()
	idx.links = make(map[string]model.Link)
	idx.folders = make(map[string]model.Folder)
	idx.lastLinkSync = time.Time{}
	idx.lastFolderSync = time.Time{}
	idx.mu.Unlock()

	idx.Notify(Change{Collection: backend.Links})
	idx.Notify(Change{Collection: backend.Folders})
}

// ─────────────────────────────────────────────────────────────────
// Listeners
// ─────────────────────────────────────────────────────────────────

// OnChange registers a listener and returns the function removing it.
func (idx *MemoryIndex) OnChange(fn Listener) (remove func()) {
	idx.lmu.Lock()
	defer idx.lmu.Unlock()

	id := idx.nextID
	idx.nextID++
	idx.listeners[id] = fn
	return func() {
		idx.lmu.Lock()
		defer idx.lmu.Unlock()
		delete(idx.listeners, id)
	}
}

// Notify calls every listener with c. Listeners run outside any lock.
func (idx *MemoryIndex) Notify(c Change) {
	idx.lmu.Lock()
	fns := make([]Listener, 0, len(idx.listeners))
	for _, fn := range idx.listeners {
		fns = append(fns, fn)
	}
	idx.lmu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
