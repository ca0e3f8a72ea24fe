package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps the record in <dir>/<slot>.json.
type JSONStore struct {
	path    string
	profile string
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewJSONStore creates a store under dir, creating the directory if needed.
func NewJSONStore(dir string, opts Options) (*JSONStore, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &JSONStore{
		path:    filepath.Join(dir, opts.Slot+".json"),
		profile: opts.Profile,
		logger:  opts.Logger.With("component", "store", "backend", "json"),
	}, nil
}

// Path returns the record file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the record.
func (s *JSONStore) Load(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultState()
	}
	if err != nil {
		s.logger.Warn("read state failed, using defaults", "path", s.path, "error", err)
		return DefaultState()
	}

	st, err := decode(data)
	if err != nil {
		s.logger.Warn("malformed state, using defaults", "path", s.path, "error", err)
		return DefaultState()
	}
	s.logger.Info("state loaded", "samples", len(st.Data))
	return st
}

// Save writes to a temp file and renames it over the record.
func (s *JSONStore) Save(ctx context.Context, st State) error {
	data, err := encode(st, s.profile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	s.logger.Info("state saved", "samples", len(st.Data))
	return nil
}

// Clear removes the record file.
func (s *JSONStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

var _ Store = (*JSONStore)(nil)
