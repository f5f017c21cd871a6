// Package mysql provides a MySQL-backed persistent store using the same bucket
// snapshot layout as the sqlite and postgres stores.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/internal/infra/persistence/snapshot"
	"equiploan/pkg/domain"

	driver "github.com/go-sql-driver/mysql"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "mysql"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "equiploan:equiploan@tcp(localhost:3306)/equiploan"
)

const upsertSQL = `INSERT INTO state(bucket,payload) VALUES(?,?) ON DUPLICATE KEY UPDATE payload=VALUES(payload)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to MySQL while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db     *sql.DB
	mu     sync.Mutex
	loaded bool
}

// NormalizeDSN parses dsn and forces UTC time handling with a bounded dial timeout.
func NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return cfg.FormatDSN(), nil
}

// NewStore opens a MySQL-backed store and hydrates it from the state table.
// A snapshot that cannot be decoded leaves the returned store empty and is
// reported as a domain.SnapshotError.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, normalized)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket VARCHAR(64) NOT NULL PRIMARY KEY,
		payload LONGBLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure state table: %w", describe(err))
	}
	s := &Store{Store: memory.NewStore(engine, opts...), db: db}
	snap, found, err := snapshot.LoadSQL(ctx, db, "mysql")
	if err != nil {
		var snapErr domain.SnapshotError
		if errors.As(err, &snapErr) {
			return s, err
		}
		_ = db.Close()
		return nil, describe(err)
	}
	if found {
		s.ImportState(snap)
		s.loaded = true
	}
	return s, nil
}

// describe prefixes server errors with their MySQL error number.
func describe(err error) error {
	var me *driver.MySQLError
	if errors.As(err, &me) {
		return fmt.Errorf("mysql error %d: %w", me.Number, err)
	}
	return err
}

// RunInTransaction applies fn within a transaction, then snapshots to MySQL if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Tx) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// ReplaceState swaps the whole state and writes it through.
func (s *Store) ReplaceState(ctx context.Context, snap domain.Snapshot) error {
	s.ImportState(snap)
	return s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := snapshot.PersistSQL(ctx, s.db, upsertSQL, s.ExportState()); err != nil {
		return fmt.Errorf("persist mysql snapshot: %w", describe(err))
	}
	return nil
}

// Loaded reports whether a snapshot existed when the store was opened.
func (s *Store) Loaded() bool { return s.loaded }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
