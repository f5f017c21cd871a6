// Package redis persists the full store snapshot as one JSON value under a
// fixed namespaced key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/pkg/domain"

	goredis "github.com/redis/go-redis/v9"
)

var _ domain.PersistentStore = (*Store)(nil)

// StateKey is the namespaced key holding the encoded snapshot.
const StateKey = "equiploan:state:v1"

// DefaultAddr is used when no address is configured.
const DefaultAddr = "localhost:6379"

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store persists state to redis while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	rdb    *goredis.Client
	mu     sync.Mutex
	loaded bool
}

// NewStore dials redis and hydrates the store from StateKey. A value that
// cannot be decoded leaves the returned store empty and is reported as a
// domain.SnapshotError.
func NewStore(ctx context.Context, opts Options, engine *domain.RulesEngine, storeOpts ...memory.Option) (*Store, error) {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newStoreWithClient(ctx, rdb, engine, storeOpts...)
}

func newStoreWithClient(ctx context.Context, rdb *goredis.Client, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	s := &Store{Store: memory.NewStore(engine, opts...), rdb: rdb}
	raw, err := rdb.Get(ctx, StateKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return s, nil
	}
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("get %s: %w", StateKey, err)
	}
	snap, err := decode(raw)
	if err != nil {
		return s, err
	}
	s.ImportState(snap)
	s.loaded = true
	return s, nil
}

func decode(raw []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, domain.SnapshotError{Backend: "redis", Err: err}
	}
	return snap, nil
}

// RunInTransaction applies fn within a transaction, then writes the snapshot to redis if successful.
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
	data, err := json.Marshal(s.ExportState())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, StateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("persist redis snapshot: %w", err)
	}
	return nil
}

// Loaded reports whether a snapshot existed when the store was opened.
func (s *Store) Loaded() bool { return s.loaded }

// Client exposes the redis client for integration testing hooks.
func (s *Store) Client() *goredis.Client { return s.rdb }

// Close releases the redis client.
func (s *Store) Close() error { return s.rdb.Close() }
