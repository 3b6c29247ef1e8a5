package local

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const blobSchemaVersion = 1

// SQLiteBlobs stores blobs as rows of a single key/value table.
type SQLiteBlobs struct {
	db   *sql.DB
	path string
}

// NewSQLiteBlobs opens (and migrates) the blob database at path.
func NewSQLiteBlobs(path string) (*SQLiteBlobs, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; blobs are rewritten wholesale.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteBlobs{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteBlobs) Path() string {
	return s.path
}

func (s *SQLiteBlobs) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		version = 0
	}
	if version >= blobSchemaVersion {
		return nil
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS blobs (
			name TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate blob schema: %w", err)
	}
	return nil
}

func (s *SQLiteBlobs) Get(name string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM blobs WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read blob %s: %w", name, err)
	}
	return []byte(data), true, nil
}

func (s *SQLiteBlobs) Put(name string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO blobs (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, name, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteBlobs) Close() error {
	return s.db.Close()
}
