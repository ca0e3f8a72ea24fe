package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps records in a SQLite table keyed by slot.
type SQLiteStore struct {
	db      *sql.DB
	slot    string
	profile string
	logger  *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLiteStore{
		db:      db,
		slot:    opts.Slot,
		profile: opts.Profile,
		logger:  opts.Logger.With("component", "store", "backend", "sqlite"),
	}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateUp applies pending migrations. The migrate instance is not closed
// because that would close the shared database handle.
func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Load reads the slot's record.
func (s *SQLiteStore) Load(ctx context.Context) State {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM slots WHERE slot = ?`, s.slot).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultState()
	}
	if err != nil {
		s.logger.Warn("query state failed, using defaults", "error", err)
		return DefaultState()
	}

	st, err := decode(data)
	if err != nil {
		s.logger.Warn("malformed state, using defaults", "error", err)
		return DefaultState()
	}
	s.logger.Info("state loaded", "samples", len(st.Data))
	return st
}

// Save upserts the slot's record in one statement.
func (s *SQLiteStore) Save(ctx context.Context, st State) error {
	data, err := encode(st, s.profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (slot, record, profile, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			record = excluded.record,
			profile = excluded.profile,
			updated_at = excluded.updated_at`,
		s.slot, data, s.profile, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	s.logger.Info("state saved", "samples", len(st.Data))
	return nil
}

// Clear deletes the slot's record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE slot = ?`, s.slot); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

var _ Store = (*SQLiteStore)(nil)
