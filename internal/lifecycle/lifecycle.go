// Package lifecycle turns user intents into backend writes: link creation
// with enrichment, partial updates, bulk operations and folder management.
// Reads go through the index; the index itself is only updated by snapshots.
package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/classify"
	"github.com/MrSnakeDoc/linkpocket/internal/enrich"
	"github.com/MrSnakeDoc/linkpocket/internal/index"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
	"github.com/MrSnakeDoc/linkpocket/internal/order"
)

// Fallbacks for enrichment fields the lookup left empty.
const (
	DefaultVideoTitle       = "YouTube video"
	DefaultVideoDescription = "No description"
	DefaultImage            = "https://placehold.co/600x315?text=No+Image"
	PublisherYouTube        = "YouTube"
	PublisherYouTubeMusic   = "YouTube Music"
)

// Manager executes intents against one backend.
type Manager struct {
	backend  backend.Backend
	index    *index.MemoryIndex
	enricher enrich.Enricher
	orders   *order.Manager
	now      func() time.Time
	logger   logger.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(b backend.Backend, idx *index.MemoryIndex, enricher enrich.Enricher, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		backend:  b,
		index:    idx,
		enricher: enricher,
		orders:   order.NewManager(b, log),
		now:      time.Now,
		logger:   log.Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NormalizeURL trims input and adds https:// when it does not start with "http".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "http") {
		return raw
	}
	return "https://" + raw
}

// ─────────────────────────────────────────────────────────────────
// Links
// ─────────────────────────────────────────────────────────────────

// CreateLink classifies, enriches and saves a URL. folderKey, when not
// empty, becomes the link's folder. Nothing is written if enrichment fails.
func (m *Manager) CreateLink(ctx context.Context, rawURL, folderKey string) (model.Link, error) {
	u := NormalizeURL(rawURL)
	if u == "" {
		return model.Link{}, ErrEmptyURL
	}

	link := model.Link{
		URL:       u,
		Category:  classify.Category(u),
		Type:      classify.LinkType(u),
		Timestamp: model.Millis(m.now()),
	}
	if folderKey != "" {
		link.FolderID = model.StringPtr(folderKey)
	}

	meta, err := m.enricher.Enrich(ctx, u)
	if err != nil {
		m.logger.Warn("enrichment failed", logger.String("url", u), logger.Error(err))
		return model.Link{}, fmt.Errorf("%w: %v", ErrEnrichment, err)
	}
	applyMetadata(&link, meta)

	key, err := m.backend.Write(ctx, backend.Links, "", link.Fields())
	if err != nil {
		return model.Link{}, fmt.Errorf("save link: %w", err)
	}
	link.Key = key

	m.logger.Info("link created",
		logger.String("key", key),
		logger.String("category", string(link.Category)),
		logger.String("type", string(link.Type)))
	return link, nil
}

func applyMetadata(link *model.Link, meta enrich.Metadata) {
	id, ok := classify.VideoID(link.URL)
	if meta.IsVideo() {
		id, ok = meta.VideoID, true
	}
	if ok {
		link.Type = model.TypeYouTube
		link.VideoID = id
		link.Title = or(meta.Title, DefaultVideoTitle)
		link.Desc = or(meta.AuthorName, DefaultVideoDescription)
		link.Publisher = PublisherYouTube
		if link.Category == model.CategoryMusic {
			link.Publisher = PublisherYouTubeMusic
		}
		return
	}

	host := link.URL
	if parsed, err := url.Parse(link.URL); err == nil && parsed.Hostname() != "" {
		host = parsed.Hostname()
	}
	link.Title = or(meta.Title, link.URL)
	link.Image = or(meta.ImageURL, DefaultImage)
	link.Desc = meta.Description
	link.Publisher = or(meta.Publisher, host)
}

func (m *Manager) link(key string) (model.Link, error) {
	l, ok := m.index.Link(key)
	if !ok {
		return model.Link{}, fmt.Errorf("%w: %s", ErrUnknownLink, key)
	}
	return l, nil
}

func (m *Manager) patch(ctx context.Context, key string, p backend.Patch) error {
	if _, err := m.backend.Write(ctx, backend.Links, key, p); err != nil {
		return fmt.Errorf("update link %s: %w", key, err)
	}
	return nil
}

// LinkEdit is a partial change of a link's editable fields. Nil fields are
// left as they are.
type LinkEdit struct {
	Category *string
	Title    *string
	Desc     *string
}

// UpdateLink validates e and saves it as one patch, so either every field
// changes or none does.
func (m *Manager) UpdateLink(ctx context.Context, key string, e LinkEdit) error {
	p := backend.Patch{}
	if e.Category != nil {
		c, ok := model.ParseCategory(*e.Category)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCategory, *e.Category)
		}
		p[model.FieldCategory] = string(c)
	}
	if e.Title != nil {
		p[model.FieldTitle] = strings.TrimSpace(*e.Title)
	}
	if e.Desc != nil {
		p[model.FieldDesc] = strings.TrimSpace(*e.Desc)
	}
	if _, err := m.link(key); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return m.patch(ctx, key, p)
}

// SetCategory changes the category tag of a link.
func (m *Manager) SetCategory(ctx context.Context, key, category string) error {
	return m.UpdateLink(ctx, key, LinkEdit{Category: &category})
}

// EditText replaces title and description.
func (m *Manager) EditText(ctx context.Context, key, title, desc string) error {
	return m.UpdateLink(ctx, key, LinkEdit{Title: &title, Desc: &desc})
}

// MoveLink files a link into folderKey, or makes it unclassified when
// folderKey is empty.
func (m *Manager) MoveLink(ctx context.Context, key, folderKey string) error {
	if _, err := m.link(key); err != nil {
		return err
	}
	if err := m.checkFolder(folderKey); err != nil {
		return err
	}
	return m.patch(ctx, key, backend.Patch{model.FieldFolderID: folderValue(folderKey)})
}

// ToggleFavorite flips the favorite flag; favoriting also clears read.
func (m *Manager) ToggleFavorite(ctx context.Context, key string) (bool, error) {
	l, err := m.link(key)
	if err != nil {
		return false, err
	}
	fav := !l.IsFavorite
	p := backend.Patch{model.FieldIsFavorite: fav}
	if fav {
		p[model.FieldIsRead] = false
	}
	return fav, m.patch(ctx, key, p)
}

// ToggleRead flips the read flag. Marking a favorite as read is refused.
func (m *Manager) ToggleRead(ctx context.Context, key string) (bool, error) {
	l, err := m.link(key)
	if err != nil {
		return false, err
	}
	read := !l.IsRead
	if read && l.IsFavorite {
		return l.IsRead, ErrReadWhileFavorite
	}
	return read, m.patch(ctx, key, backend.Patch{model.FieldIsRead: read})
}

func (m *Manager) DeleteLink(ctx context.Context, key string) error {
	if _, err := m.link(key); err != nil {
		return err
	}
	if err := m.backend.Delete(ctx, backend.Links, key); err != nil {
		return fmt.Errorf("delete link %s: %w", key, err)
	}
	return nil
}

// MoveLinks moves every key into folderKey in one multi-path write.
func (m *Manager) MoveLinks(ctx context.Context, keys []string, folderKey string) error {
	if len(keys) == 0 {
		return ErrEmptySelection
	}
	if err := m.checkFolder(folderKey); err != nil {
		return err
	}
	updates := make(backend.Updates, len(keys))
	for _, key := range keys {
		updates[backend.Path{Collection: backend.Links, Key: key, Field: model.FieldFolderID}] = folderValue(folderKey)
	}
	if err := m.backend.WriteMany(ctx, updates); err != nil {
		return fmt.Errorf("move links: %w", err)
	}
	m.logger.Info("links moved", logger.Int("count", len(keys)), logger.String("folder", folderKey))
	return nil
}

// DeleteLinks deletes every key. Failures are collected, the remaining keys
// are still attempted. It returns how many deletes succeeded.
func (m *Manager) DeleteLinks(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, ErrEmptySelection
	}
	var errs error
	deleted := 0
	for _, key := range keys {
		if err := m.backend.Delete(ctx, backend.Links, key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete link %s: %w", key, err))
			continue
		}
		deleted++
	}
	m.logger.Info("links deleted", logger.Int("count", deleted), logger.Int("failed", len(multierr.Errors(errs))))
	return deleted, errs
}

// DeleteNonFavorites deletes every link not marked favorite.
func (m *Manager) DeleteNonFavorites(ctx context.Context) (int, error) {
	return m.deleteWhere(ctx, func(l model.Link) bool { return !l.IsFavorite })
}

// DeleteRead deletes every link marked read.
func (m *Manager) DeleteRead(ctx context.Context) (int, error) {
	return m.deleteWhere(ctx, func(l model.Link) bool { return l.IsRead })
}

// DeleteAllLinks clears the link collection.
func (m *Manager) DeleteAllLinks(ctx context.Context) error {
	if err := m.backend.DeleteAll(ctx, backend.Links); err != nil {
		return fmt.Errorf("delete all links: %w", err)
	}
	m.logger.Info("all links deleted")
	return nil
}

func (m *Manager) deleteWhere(ctx context.Context, match func(model.Link) bool) (int, error) {
	var keys []string
	for _, l := range m.index.Links() {
		if match(l) {
			keys = append(keys, l.Key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return m.DeleteLinks(ctx, keys)
}

// ─────────────────────────────────────────────────────────────────
// Folders
// ─────────────────────────────────────────────────────────────────

// CreateFolder appends a folder after the current last one.
func (m *Manager) CreateFolder(ctx context.Context, name string) (model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Folder{}, ErrEmptyFolderName
	}
	f := model.Folder{
		Name:      name,
		Timestamp: model.Millis(m.now()),
	}.WithOrder(order.Next(m.index.Folders()))

	key, err := m.backend.Write(ctx, backend.Folders, "", f.Fields())
	if err != nil {
		return model.Folder{}, fmt.Errorf("create folder: %w", err)
	}
	f.Key = key
	m.logger.Info("folder created", logger.String("key", key), logger.Int("order", *f.Order))
	return f, nil
}

// RenameFolder changes a folder's name. An unchanged name writes nothing.
func (m *Manager) RenameFolder(ctx context.Context, key, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyFolderName
	}
	f, ok := m.index.Folder(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFolder, key)
	}
	if f.Name == name {
		return nil
	}
	if _, err := m.backend.Write(ctx, backend.Folders, key, backend.Patch{model.FieldName: name}); err != nil {
		return fmt.Errorf("rename folder %s: %w", key, err)
	}
	return nil
}

// DeleteFolder removes a folder and unfiles its links in one write. Links are
// never deleted with their folder; the order gap closes on the next snapshot.
func (m *Manager) DeleteFolder(ctx context.Context, key string) error {
	if _, ok := m.index.Folder(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFolder, key)
	}

	updates := backend.Updates{
		{Collection: backend.Folders, Key: key}: nil,
	}
	unfiled := 0
	for _, l := range m.index.Links() {
		if l.InFolder(key) {
			updates[backend.Path{Collection: backend.Links, Key: l.Key, Field: model.FieldFolderID}] = nil
			unfiled++
		}
	}

	if err := m.backend.WriteMany(ctx, updates); err != nil {
		return fmt.Errorf("delete folder %s: %w", key, err)
	}
	m.logger.Info("folder deleted", logger.String("key", key), logger.Int("unfiled_links", unfiled))
	return nil
}

// ReorderFolder moves from to toIndex.
func (m *Manager) ReorderFolder(ctx context.Context, from string, toIndex int) ([]model.Folder, error) {
	return m.orders.Reorder(ctx, m.index.Folders(), from, toIndex)
}

// DropFolder moves from onto target's position.
func (m *Manager) DropFolder(ctx context.Context, from, target string) ([]model.Folder, error) {
	return m.orders.ReorderOnto(ctx, m.index.Folders(), from, target)
}

// StartFolderDrag begins a live drag of from.
func (m *Manager) StartFolderDrag(from string) (*order.Drag, error) {
	return m.orders.StartDrag(m.index.Folders(), from)
}

func (m *Manager) checkFolder(folderKey string) error {
	if folderKey == "" {
		return nil
	}
	if _, ok := m.index.Folder(folderKey); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFolder, folderKey)
	}
	return nil
}

// folderValue maps "" to field removal.
func folderValue(folderKey string) any {
	if folderKey == "" {
		return nil
	}
	return folderKey
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
