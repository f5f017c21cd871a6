package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/internal/infra/persistence/snapshot"
	"equiploan/internal/infra/persistence/sqlstub"
	"equiploan/pkg/domain"
)

func stubOpen(t *testing.T) *sqlstub.Conn {
	t.Helper()
	db, conn := sqlstub.NewDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return conn
}

func TestNewStoreEnsuresTableAndStartsEmpty(t *testing.T) {
	conn := stubOpen(t)
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.Loaded() {
		t.Fatalf("expected no snapshot")
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsBuckets(t *testing.T) {
	conn := stubOpen(t)
	store, err := NewStore(context.Background(), "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Tx) error {
		_, err := tx.CreateCategory(domain.Category{Name: "Projectors"})
		return err
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rows := conn.Rows("state")
	if len(rows) != len(snapshot.Buckets) {
		t.Fatalf("expected %d bucket rows, got %d", len(snapshot.Buckets), len(rows))
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Tx) error {
		_, err := tx.CreateCategory(domain.Category{Name: "Laptops"})
		return err
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := len(conn.Rows("state")); got != len(snapshot.Buckets) {
		t.Fatalf("upsert should keep one row per bucket, got %d", got)
	}
}

func TestNewStoreLoadsExistingSnapshot(t *testing.T) {
	conn := stubOpen(t)
	encoded, err := snapshot.Encode(memory.SeedSnapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for bucket, payload := range encoded {
		conn.Put("state", map[string]any{"bucket": bucket, "payload": payload})
	}
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if !store.Loaded() || len(store.ListItems()) != 12 {
		t.Fatalf("expected seeded snapshot loaded")
	}
}

func TestNewStoreCorruptSnapshot(t *testing.T) {
	conn := stubOpen(t)
	conn.Put("state", map[string]any{"bucket": snapshot.BucketSessions, "payload": []byte("[{")})
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	var snapErr domain.SnapshotError
	if !errors.As(err, &snapErr) || store == nil {
		t.Fatalf("expected store with snapshot error, got %v", err)
	}
}

func TestPersistFailureSurfaces(t *testing.T) {
	conn := stubOpen(t)
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailCommit = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Tx) error {
		_, err := tx.CreateCategory(domain.Category{Name: "x"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	conn := stubOpen(t)
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err == nil {
		t.Fatalf("expected ping error")
	}
}
