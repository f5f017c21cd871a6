package sqlstub

import (
	"context"
	"testing"
)

func TestStubUpsertAndSelect(t *testing.T) {
	ctx := context.Background()
	db, conn := NewDB()
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	for _, payload := range []string{"one", "two"} {
		if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, "items", []byte(payload)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if rows := conn.Rows("state"); len(rows) != 1 {
		t.Fatalf("expected upsert to replace row, got %d rows", len(rows))
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES(?,?) ON DUPLICATE KEY UPDATE payload=VALUES(payload)", "items", []byte("three")); err != nil {
		t.Fatalf("mysql upsert: %v", err)
	}
	rows, err := db.QueryContext(ctx, "SELECT bucket, payload FROM state")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var n int
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if bucket != "items" || string(payload) != "three" {
			t.Fatalf("unexpected row %s=%s", bucket, payload)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestStubFailures(t *testing.T) {
	db, conn := NewDB()
	conn.FailPing = true
	if err := db.PingContext(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
}
