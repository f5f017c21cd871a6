// Package sqlite persists the in-memory store to a single SQLite table, one
// JSON row per snapshot bucket.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/internal/infra/persistence/snapshot"
	"equiploan/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "equiploan.db"

const upsertSQL = `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`

// Store persists the in-memory state to SQLite as JSON blobs.
// It snapshots the full state after every successful transaction.
type Store struct {
	*memory.Store
	db     *sql.DB
	mu     sync.Mutex
	path   string
	loaded bool
}

// NewStore opens (creating if needed) the database at path and hydrates the
// store from it. When the stored snapshot cannot be decoded the returned
// store is usable but empty and the error is a domain.SnapshotError.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine, opts...), db: db, path: path}
	snap, found, err := snapshot.LoadSQL(context.Background(), db, "sqlite")
	if err != nil {
		var snapErr domain.SnapshotError
		if errors.As(err, &snapErr) {
			return s, err
		}
		_ = db.Close()
		return nil, err
	}
	if found {
		s.ImportState(snap)
		s.loaded = true
	}
	return s, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.PersistSQL(ctx, s.db, upsertSQL, s.ExportState())
}

// RunInTransaction applies fn within a transaction, then snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Tx) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, fmt.Errorf("persist sqlite snapshot: %w", err)
	}
	return res, nil
}

// ReplaceState swaps the whole state and writes it through.
func (s *Store) ReplaceState(ctx context.Context, snap domain.Snapshot) error {
	s.ImportState(snap)
	if err := s.persist(ctx); err != nil {
		return fmt.Errorf("persist sqlite snapshot: %w", err)
	}
	return nil
}

// Loaded reports whether a snapshot was read from disk at open time.
func (s *Store) Loaded() bool { return s.loaded }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
