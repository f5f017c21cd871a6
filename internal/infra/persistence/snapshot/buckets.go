// Package snapshot encodes the full store state into named JSON buckets for the
// SQL backends, which keep one row per bucket in a `state` table.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"

	"equiploan/pkg/domain"
)

// Bucket names in write order.
const (
	BucketVersion      = "version"
	BucketItems        = "items"
	BucketCategories   = "categories"
	BucketTransactions = "transactions"
	BucketMaintenance  = "maintenance"
	BucketAuditLogs    = "audit_logs"
	BucketSessions     = "sessions"
)

// Buckets lists every bucket a complete snapshot writes.
var Buckets = []string{
	BucketVersion,
	BucketItems,
	BucketCategories,
	BucketTransactions,
	BucketMaintenance,
	BucketAuditLogs,
	BucketSessions,
}

func targets(s *domain.Snapshot) map[string]any {
	return map[string]any{
		BucketItems:        &s.Items,
		BucketCategories:   &s.Categories,
		BucketTransactions: &s.Transactions,
		BucketMaintenance:  &s.Maintenance,
		BucketAuditLogs:    &s.AuditLogs,
		BucketSessions:     &s.Sessions,
	}
}

// Encode marshals each snapshot collection into its bucket payload.
func Encode(s domain.Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	out[BucketVersion] = []byte(strconv.Itoa(s.Version))
	for bucket, target := range targets(&s) {
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// Decode rebuilds a snapshot from raw bucket payloads. Unknown buckets are
// ignored. A payload that fails to decode yields a domain.SnapshotError.
func Decode(backend string, raw map[string][]byte) (domain.Snapshot, error) {
	var s domain.Snapshot
	if v, ok := raw[BucketVersion]; ok && len(v) > 0 {
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return domain.Snapshot{}, domain.SnapshotError{Backend: backend, Bucket: BucketVersion, Err: err}
		}
		s.Version = n
	}
	for bucket, target := range targets(&s) {
		payload, ok := raw[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return domain.Snapshot{}, domain.SnapshotError{Backend: backend, Bucket: bucket, Err: err}
		}
	}
	return s, nil
}

// Empty reports whether the snapshot holds no records at all.
func Empty(s domain.Snapshot) bool {
	return len(s.Items) == 0 && len(s.Categories) == 0 && len(s.Transactions) == 0 &&
		len(s.Maintenance) == 0 && len(s.AuditLogs) == 0 && len(s.Sessions) == 0
}
