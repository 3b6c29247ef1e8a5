package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// BlobStore is device-local key/value storage holding whole JSON documents,
// the equivalent of browser localStorage.
type BlobStore interface {
	// Get returns the blob and whether it exists.
	Get(name string) ([]byte, bool, error)
	Put(name string, data []byte) error
	Close() error
}

// FileBlobs stores each blob as <dir>/<name>.json.
type FileBlobs struct {
	dir string
}

// NewFileBlobs creates a file-backed blob store rooted at dir.
func NewFileBlobs(dir string) *FileBlobs {
	return &FileBlobs{dir: dir}
}

func (s *FileBlobs) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Get reads a blob. A missing file is reported as absent, not as an error.
func (s *FileBlobs) Get(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, true, nil
}

// Put writes a blob through a temp file so readers never see a partial document.
func (s *FileBlobs) Put(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close blob %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace blob %s: %w", name, err)
	}
	return nil
}

func (s *FileBlobs) Close() error { return nil }

// MemoryBlobs keeps blobs in memory.
type MemoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobs) Get(name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryBlobs) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryBlobs) Close() error { return nil }
