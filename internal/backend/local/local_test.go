package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
)

func newBackend(t *testing.T, blobs BlobStore) *Backend {
	t.Helper()
	b, err := New(blobs, logger.Nop())
	assert.NilError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

type recorder struct {
	snaps []backend.Snapshot
}

func (r *recorder) fn(s backend.Snapshot) { r.snaps = append(r.snaps, s) }

func (r *recorder) last() backend.Snapshot { return r.snaps[len(r.snaps)-1] }

func TestSubscribe_DeliversInitialSnapshot(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	var rec recorder
	sub, err := b.Subscribe(ctx, backend.Links, rec.fn)
	assert.NilError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, len(rec.snaps), 1)
	assert.Assert(t, rec.snaps[0] != nil, "empty collection must deliver an empty map")
	assert.Equal(t, len(rec.snaps[0]), 0)
}

func TestWrite_PartialPatchKeepsFields(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	key, err := b.Write(ctx, backend.Links, "", backend.Patch{"url": "https://a.com", "title": "A"})
	assert.NilError(t, err)
	assert.Assert(t, key != "")

	_, err = b.Write(ctx, backend.Links, key, backend.Patch{"isRead": true})
	assert.NilError(t, err)

	var rec recorder
	sub, err := b.Subscribe(ctx, backend.Links, rec.fn)
	assert.NilError(t, err)
	defer sub.Unsubscribe()

	got := rec.last()[key]
	assert.Equal(t, string(got["url"]), `"https://a.com"`)
	assert.Equal(t, string(got["title"]), `"A"`)
	assert.Equal(t, string(got["isRead"]), `true`)
}

func TestWrite_NotifiesSubscribers(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	var links, folders recorder
	s1, err := b.Subscribe(ctx, backend.Links, links.fn)
	assert.NilError(t, err)
	defer s1.Unsubscribe()
	s2, err := b.Subscribe(ctx, backend.Folders, folders.fn)
	assert.NilError(t, err)
	defer s2.Unsubscribe()

	_, err = b.Write(ctx, backend.Links, "l1", backend.Patch{"url": "https://a.com"})
	assert.NilError(t, err)

	assert.Equal(t, len(links.snaps), 2)
	assert.Equal(t, len(folders.snaps), 1, "folder listeners only see folder changes")
	_, ok := links.last()["l1"]
	assert.Assert(t, ok)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	var rec recorder
	sub, err := b.Subscribe(ctx, backend.Links, rec.fn)
	assert.NilError(t, err)
	sub.Unsubscribe()

	_, err = b.Write(ctx, backend.Links, "l1", backend.Patch{"url": "x"})
	assert.NilError(t, err)
	assert.Equal(t, len(rec.snaps), 1)
}

func TestNestedWrite_DeliveredAfterCallbackReturns(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	var (
		events []string
		depth  int
	)
	sub, err := b.Subscribe(ctx, backend.Folders, func(s backend.Snapshot) {
		depth++
		defer func() { depth-- }()
		assert.Equal(t, depth, 1, "callbacks must not nest")

		events = append(events, "start")
		if len(s) == 0 {
			_, err := b.Write(ctx, backend.Folders, "folder_1", backend.Patch{"name": "Work", "order": 0})
			assert.NilError(t, err)
		}
		events = append(events, "end")
	})
	assert.NilError(t, err)
	defer sub.Unsubscribe()

	assert.DeepEqual(t, events, []string{"start", "end", "start", "end"})
}

func TestConcurrentWrites_DeliveredInCommitOrder(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	var sizes []int
	sub, err := b.Subscribe(ctx, backend.Links, func(s backend.Snapshot) {
		sizes = append(sizes, len(s))
	})
	assert.NilError(t, err)
	defer sub.Unsubscribe()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Write(ctx, backend.Links, fmt.Sprintf("l%d", i), backend.Patch{"url": "https://a.com"})
			assert.Check(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, len(sizes), writers+1, "every write delivered once all writers returned")
	for i, n := range sizes {
		assert.Equal(t, n, i, "snapshot %d arrived out of order", i)
	}
}

func TestWriteMany_RemovesEntityAndField(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	_, err := b.Write(ctx, backend.Folders, "f1", backend.Patch{"name": "Work"})
	assert.NilError(t, err)
	_, err = b.Write(ctx, backend.Links, "l1", backend.Patch{"url": "x", "folderId": "f1"})
	assert.NilError(t, err)

	var links, folders recorder
	s1, _ := b.Subscribe(ctx, backend.Links, links.fn)
	defer s1.Unsubscribe()
	s2, _ := b.Subscribe(ctx, backend.Folders, folders.fn)
	defer s2.Unsubscribe()

	err = b.WriteMany(ctx, backend.Updates{
		{Collection: backend.Folders, Key: "f1"}:                    nil,
		{Collection: backend.Links, Key: "l1", Field: "folderId"}: nil,
	})
	assert.NilError(t, err)

	assert.Equal(t, len(folders.last()), 0)
	_, hasFolder := links.last()["l1"]["folderId"]
	assert.Assert(t, !hasFolder)
	assert.Equal(t, string(links.last()["l1"]["url"]), `"x"`)
}

func TestWriteMany_RejectsInvalidPath(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	err := b.WriteMany(context.Background(), backend.Updates{
		{Collection: backend.Folders, Key: "f1"}: map[string]any{"name": "x"},
	})
	assert.Assert(t, errors.Is(err, backend.ErrInvalidPath))
}

type failingBlobs struct {
	*MemoryBlobs
	failOn string
}

func (f *failingBlobs) Put(name string, data []byte) error {
	if name == f.failOn {
		return errors.New("disk full")
	}
	return f.MemoryBlobs.Put(name, data)
}

func TestWriteMany_PersistFailureLeavesStateUnchanged(t *testing.T) {
	blobs := &failingBlobs{MemoryBlobs: NewMemoryBlobs()}
	b := newBackend(t, blobs)
	ctx := context.Background()

	_, err := b.Write(ctx, backend.Links, "l1", backend.Patch{"url": "x", "folderId": "f1"})
	assert.NilError(t, err)
	_, err = b.Write(ctx, backend.Folders, "f1", backend.Patch{"name": "Work"})
	assert.NilError(t, err)

	blobs.failOn = FoldersBlob
	err = b.WriteMany(ctx, backend.Updates{
		{Collection: backend.Folders, Key: "f1"}:                    nil,
		{Collection: backend.Links, Key: "l1", Field: "folderId"}: nil,
	})
	assert.ErrorContains(t, err, "disk full")

	var links recorder
	sub, _ := b.Subscribe(ctx, backend.Links, links.fn)
	defer sub.Unsubscribe()
	assert.Equal(t, string(links.last()["l1"]["folderId"]), `"f1"`)

	raw, ok, err := blobs.Get(LinksBlob)
	assert.NilError(t, err)
	assert.Assert(t, ok)
	var stored backend.Snapshot
	assert.NilError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, string(stored["l1"]["folderId"]), `"f1"`, "links blob must be restored")
}

func TestDeleteAll(t *testing.T) {
	b := newBackend(t, NewMemoryBlobs())
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		_, err := b.Write(ctx, backend.Links, k, backend.Patch{"url": k})
		assert.NilError(t, err)
	}
	assert.NilError(t, b.Delete(ctx, backend.Links, "a"))

	var rec recorder
	sub, _ := b.Subscribe(ctx, backend.Links, rec.fn)
	defer sub.Unsubscribe()
	assert.Equal(t, len(rec.last()), 1)

	assert.NilError(t, b.DeleteAll(ctx, backend.Links))
	assert.Equal(t, len(rec.last()), 0)
}

func TestPersistence_Reopen(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{"file", KindFile},
		{"sqlite", KindSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			blobs, err := OpenBlobs(tt.kind, dir)
			assert.NilError(t, err)
			b, err := New(blobs, logger.Nop())
			assert.NilError(t, err)
			_, err = b.Write(ctx, backend.Folders, "f1", backend.Patch{"name": "Work", "order": 0})
			assert.NilError(t, err)
			assert.NilError(t, b.Close())

			blobs, err = OpenBlobs(tt.kind, dir)
			assert.NilError(t, err)
			b = newBackend(t, blobs)

			var rec recorder
			sub, err := b.Subscribe(ctx, backend.Folders, rec.fn)
			assert.NilError(t, err)
			defer sub.Unsubscribe()
			assert.Equal(t, string(rec.last()["f1"]["name"]), `"Work"`)
		})
	}
}

func TestFileBlobs_MissingIsAbsent(t *testing.T) {
	s := NewFileBlobs(filepath.Join(t.TempDir(), "nested"))
	_, ok, err := s.Get(LinksBlob)
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestNew_CorruptBlob(t *testing.T) {
	blobs := NewMemoryBlobs()
	assert.NilError(t, blobs.Put(LinksBlob, []byte("{not json")))
	_, err := New(blobs, logger.Nop())
	assert.ErrorContains(t, err, LinksBlob)
}

func TestOpenBlobs_UnknownKind(t *testing.T) {
	_, err := OpenBlobs("floppy", t.TempDir())
	assert.ErrorContains(t, err, "floppy")
}
