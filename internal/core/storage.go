package core

import (
	"context"
	"errors"
	"fmt"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/internal/infra/persistence/mysql"
	"equiploan/internal/infra/persistence/postgres"
	"equiploan/internal/infra/persistence/redis"
	"equiploan/internal/infra/persistence/sqlite"
	"equiploan/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMySQL    StorageDriver = "mysql"    // MySQL server
	StorageRedis    StorageDriver = "redis"    // single redis key
)

// StorageConfig selects and parameterises the durable backend. internal/config
// fills it from YAML and EQUIPLOAN_* variables.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	MySQLDSN    string
	Redis       redis.Options
	// SeedOnEmpty loads the built-in dataset when the backend holds no snapshot.
	SeedOnEmpty bool
}

type loadedReporter interface {
	Loaded() bool
}

type stateImporter interface {
	ImportState(domain.Snapshot)
}

// OpenPersistentStore opens the configured backend. An empty backend is seeded
// when cfg.SeedOnEmpty is set. A snapshot that cannot be decoded is logged and
// the store starts from the seed dataset in memory without overwriting the
// stored payload; the next committed transaction replaces it.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine, logger Logger, opts ...memory.Option) (domain.PersistentStore, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}

	var (
		store domain.PersistentStore
		err   error
	)
	switch driver {
	case StorageMemory:
		mem := memory.NewStore(engine, opts...)
		if cfg.SeedOnEmpty {
			mem.ImportState(memory.SeedSnapshot())
		}
		return mem, nil
	case StorageSQLite:
		store, err = nilSafe(sqlite.NewStore(cfg.SQLitePath, engine, opts...))
	case StoragePostgres:
		store, err = nilSafe(postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...))
	case StorageMySQL:
		store, err = nilSafe(mysql.NewStore(ctx, cfg.MySQLDSN, engine, opts...))
	case StorageRedis:
		store, err = nilSafe(redis.NewStore(ctx, cfg.Redis, engine, opts...))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}

	if err != nil {
		var snapErr domain.SnapshotError
		if !errors.As(err, &snapErr) || store == nil {
			return nil, err
		}
		logger.Error("stored snapshot is corrupt, starting from seed dataset", "driver", driver, "error", err)
		if imp, ok := store.(stateImporter); ok {
			imp.ImportState(memory.SeedSnapshot())
		}
		return store, nil
	}

	if lr, ok := store.(loadedReporter); ok && !lr.Loaded() && cfg.SeedOnEmpty {
		logger.Info("storage empty, loading seed dataset", "driver", driver)
		if err := store.ReplaceState(ctx, memory.SeedSnapshot()); err != nil {
			return nil, fmt.Errorf("seed %s store: %w", driver, err)
		}
	}
	return store, nil
}

// nilSafe keeps a typed nil backend from becoming a non-nil interface.
func nilSafe[T domain.PersistentStore](store T, err error) (domain.PersistentStore, error) {
	var zero T
	if any(store) == any(zero) {
		return nil, err
	}
	return store, err
}
