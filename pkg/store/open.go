package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUnknownBackend is returned by Open for an unsupported kind.
var ErrUnknownBackend = errors.New("store: unknown backend")

// SQLiteFile is the database file name used by Open under its directory.
const SQLiteFile = "gazer.db"

// Open creates the store named kind ("json", "sqlite" or "memory") under dir.
func Open(kind, dir string, opts Options) (Store, error) {
	switch kind {
	case "json":
		s, err := NewJSONStore(dir, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		s, err := OpenSQLite(filepath.Join(dir, SQLiteFile), opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, kind)
	}
}
