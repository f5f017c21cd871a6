package domain

import (
	"context"
	"time"
)

// SnapshotVersion is the current durable snapshot format version.
const SnapshotVersion = 1

// Snapshot is the full-state record exchanged with durable stores. Each
// collection preserves insertion order; audit logs are newest first.
type Snapshot struct {
	Version      int              `json:"version"`
	Items        []Item           `json:"items"`
	Categories   []Category       `json:"categories"`
	Transactions []Transaction    `json:"transactions"`
	Maintenance  []MaintenanceLog `json:"maintenance"`
	AuditLogs    []AuditLog       `json:"audit_logs"`
	Sessions     []BorrowSession  `json:"sessions"`
}

// Tx exposes the mutations a persistence implementation must support within
// an atomic scope.
type Tx interface {
	View() View
	Now() time.Time
	CreateItem(Item) (Item, error)
	UpdateItem(id string, mutator func(*Item) error) (Item, error)
	DeleteItem(id string) error
	CreateCategory(Category) (Category, error)
	UpdateCategory(id string, mutator func(*Category) error) (Category, error)
	DeleteCategory(id string) error
	CreateTransaction(Transaction) (Transaction, error)
	UpdateTransaction(id string, mutator func(*Transaction) error) (Transaction, error)
	CreateSession(BorrowSession) (BorrowSession, error)
	UpdateSession(id string, mutator func(*BorrowSession) error) (BorrowSession, error)
	DeleteSession(id string) error
	CreateMaintenanceLog(MaintenanceLog) (MaintenanceLog, error)
	UpdateMaintenanceLog(id string, mutator func(*MaintenanceLog) error) (MaintenanceLog, error)
	AppendAudit(AuditLog) AuditLog
}

// View provides read-only access to store data for services and rules.
type View interface {
	ListItems() []Item
	FindItem(id string) (Item, bool)
	ListCategories() []Category
	FindCategory(id string) (Category, bool)
	ListTransactions() []Transaction
	FindTransaction(id string) (Transaction, bool)
	ListSessions() []BorrowSession
	FindSession(id string) (BorrowSession, bool)
	FindSessionByCode(code string) (BorrowSession, bool)
	ListMaintenanceLogs() []MaintenanceLog
	FindMaintenanceLog(id string) (MaintenanceLog, bool)
	ListAuditLogs() []AuditLog
}

// PersistentStore is the abstraction over durable backends used by the service layer.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Tx) error) (Result, error)
	View(ctx context.Context, fn func(View) error) error
	ExportState() Snapshot
	// ReplaceState swaps the whole state for snapshot and persists it.
	ReplaceState(ctx context.Context, snapshot Snapshot) error
	RulesEngine() *RulesEngine
}
