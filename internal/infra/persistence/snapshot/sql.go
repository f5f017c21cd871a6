package snapshot

import (
	"context"
	"database/sql"
	"fmt"

	"equiploan/pkg/domain"
)

// SelectStateSQL reads every bucket row; it is portable across the SQL backends.
const SelectStateSQL = `SELECT bucket, payload FROM state`

// LoadSQL reads all bucket rows from the state table. The boolean reports
// whether any row existed.
func LoadSQL(ctx context.Context, db *sql.DB, backend string) (domain.Snapshot, bool, error) {
	rows, err := db.QueryContext(ctx, SelectStateSQL)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	raw := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("scan state: %w", err)
		}
		raw[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("iterate state: %w", err)
	}
	if len(raw) == 0 {
		return domain.Snapshot{}, false, nil
	}
	s, err := Decode(backend, raw)
	if err != nil {
		return domain.Snapshot{}, true, err
	}
	return s, true, nil
}

// PersistSQL writes every bucket of s inside one database transaction using
// the backend's upsert statement, which takes (bucket, payload) arguments.
func PersistSQL(ctx context.Context, db *sql.DB, upsert string, s domain.Snapshot) error {
	encoded, err := Encode(s)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range Buckets {
		if _, err := tx.ExecContext(ctx, upsert, bucket, encoded[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
