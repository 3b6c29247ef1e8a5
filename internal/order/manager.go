package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

var ErrUnknownFolder = errors.New("unknown folder")

// Writer is the part of a backend the manager persists through.
type Writer interface {
	WriteMany(ctx context.Context, updates backend.Updates) error
}

// Manager persists order changes. Every call is a single multi-path write.
type Manager struct {
	w   Writer
	log logger.Logger
}

func NewManager(w Writer, log logger.Logger) *Manager {
	return &Manager{w: w, log: log.Named("order")}
}

// Persist writes the given order values.
func (m *Manager) Persist(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	updates := make(backend.Updates, len(changes))
	for _, c := range changes {
		updates[backend.Path{Collection: backend.Folders, Key: c.Key, Field: model.FieldOrder}] = c.Order
	}
	if err := m.w.WriteMany(ctx, updates); err != nil {
		return fmt.Errorf("persist folder order: %w", err)
	}
	m.log.Debug("folder order persisted", logger.Int("changes", len(changes)))
	return nil
}

// Reorder moves from to toIndex and persists the order of every folder.
// It returns the folders in their new order.
func (m *Manager) Reorder(ctx context.Context, folders []model.Folder, from string, toIndex int) ([]model.Folder, error) {
	sorted := Sort(folders)
	keys := keysOf(sorted)
	if indexOf(keys, from) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, from)
	}
	return m.apply(ctx, sorted, Move(keys, from, toIndex))
}

// ReorderOnto performs a discrete drop of from onto target.
func (m *Manager) ReorderOnto(ctx context.Context, folders []model.Folder, from, target string) ([]model.Folder, error) {
	sorted := Sort(folders)
	keys := keysOf(sorted)
	if indexOf(keys, target) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, target)
	}
	return m.Reorder(ctx, sorted, from, DropIndex(keys, target))
}

func (m *Manager) apply(ctx context.Context, sorted []model.Folder, keys []string) ([]model.Folder, error) {
	byKey := make(map[string]model.Folder, len(sorted))
	for _, f := range sorted {
		byKey[f.Key] = f
	}

	out := make([]model.Folder, len(keys))
	changes := make([]Change, len(keys))
	for i, k := range keys {
		out[i] = byKey[k].WithOrder(i)
		changes[i] = Change{Key: k, Order: i}
	}
	if err := m.Persist(ctx, changes); err != nil {
		return nil, err
	}
	return out, nil
}

// Drag is a continuous reorder in progress. Hover only updates the preview;
// nothing is written until Commit.
type Drag struct {
	m       *Manager
	folders []model.Folder
	from    string
	preview []string
}

// StartDrag begins dragging from over the current folders.
func (m *Manager) StartDrag(folders []model.Folder, from string) (*Drag, error) {
	sorted := Sort(folders)
	keys := keysOf(sorted)
	if indexOf(keys, from) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, from)
	}
	return &Drag{m: m, folders: sorted, from: from, preview: keys}, nil
}

// Hover moves the dragged folder in the preview according to the pointer and
// the current on-screen geometry, and returns the previewed key order.
func (d *Drag) Hover(elements []Element, pointerY float64) []string {
	idx := HoverIndex(elements, d.from, pointerY)
	d.preview = Move(d.preview, d.from, idx)
	return d.Preview()
}

// Preview returns the current previewed key order.
func (d *Drag) Preview() []string {
	return append([]string(nil), d.preview...)
}

// Commit persists the previewed order.
func (d *Drag) Commit(ctx context.Context) ([]model.Folder, error) {
	return d.m.apply(ctx, d.folders, d.preview)
}

func keysOf(folders []model.Folder) []string {
	keys := make([]string, len(folders))
	for i, f := range folders {
		keys[i] = f.Key
	}
	return keys
}
