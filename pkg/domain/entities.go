// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by equiploan.
package domain

import (
	"slices"
	"time"
)

// EntityType identifies the type of record stored in the store.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityItem identifies a serialized equipment item.
	EntityItem EntityType = "item"
	// EntityCategory identifies an item category.
	EntityCategory EntityType = "category"
	// EntityTransaction identifies a per-item loan transaction.
	EntityTransaction EntityType = "transaction"
	// EntitySession identifies a multi-item borrow session.
	EntitySession EntityType = "session"
	// EntityMaintenance identifies a maintenance log.
	EntityMaintenance EntityType = "maintenance_log"
	// EntityAuditLog identifies an audit log entry.
	EntityAuditLog EntityType = "audit_log"
)

// ItemStatus is the custody status of an equipment item.
type ItemStatus string

// Canonical item statuses.
const (
	ItemAvailable   ItemStatus = "Available"
	ItemReserved    ItemStatus = "Reserved"
	ItemBorrowed    ItemStatus = "Borrowed"
	ItemMaintenance ItemStatus = "Maintenance"
	ItemLost        ItemStatus = "Lost"
	ItemArchived    ItemStatus = "Archived"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAvailable, ItemReserved, ItemBorrowed, ItemMaintenance, ItemLost, ItemArchived:
		return true
	}
	return false
}

// ItemCondition is the physical condition of an equipment item.
type ItemCondition string

// Canonical item conditions.
const (
	ConditionGood        ItemCondition = "Good"
	ConditionDamaged     ItemCondition = "Damaged"
	ConditionUnderRepair ItemCondition = "Under Repair"
)

// Valid reports whether c is a known item condition.
func (c ItemCondition) Valid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionUnderRepair:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a loan transaction.
type TransactionStatus string

// Canonical transaction statuses. Returned and Cancelled are terminal.
const (
	TransactionReserved  TransactionStatus = "Reserved"
	TransactionBorrowed  TransactionStatus = "Borrowed"
	TransactionReturned  TransactionStatus = "Returned"
	TransactionOverdue   TransactionStatus = "Overdue"
	TransactionCancelled TransactionStatus = "Cancelled"
)

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionReserved, TransactionBorrowed, TransactionReturned, TransactionOverdue, TransactionCancelled:
		return true
	}
	return false
}

// Open reports whether the status holds custody of the item (an open loan).
func (s TransactionStatus) Open() bool {
	return s == TransactionReserved || s == TransactionBorrowed || s == TransactionOverdue
}

// SessionStatus is the workflow state of a borrow session.
type SessionStatus string

// Borrow session workflow states. Active means every member item was released.
const (
	SessionPendingScanning SessionStatus = "PendingScanning"
	SessionPendingApproval SessionStatus = "PendingApproval"
	SessionApproved        SessionStatus = "Approved"
	SessionActive          SessionStatus = "Active"
	SessionRejected        SessionStatus = "Rejected"
	SessionCompleted       SessionStatus = "Completed"
	SessionCancelled       SessionStatus = "Cancelled"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPendingScanning, SessionPendingApproval, SessionApproved, SessionActive,
		SessionRejected, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionRejected
}

// MaintenanceStatus is the state of a maintenance log.
type MaintenanceStatus string

// Maintenance log states.
const (
	MaintenanceOngoing   MaintenanceStatus = "Ongoing"
	MaintenanceCompleted MaintenanceStatus = "Completed"
)

// Valid reports whether s is a known maintenance status.
func (s MaintenanceStatus) Valid() bool {
	return s == MaintenanceOngoing || s == MaintenanceCompleted
}

// AuditAction classifies audit log entries.
type AuditAction string

// Audit actions recorded by mutating operations.
const (
	AuditCreate      AuditAction = "CREATE"
	AuditUpdate      AuditAction = "UPDATE"
	AuditDelete      AuditAction = "DELETE"
	AuditArchive     AuditAction = "ARCHIVE"
	AuditReserve     AuditAction = "RESERVE"
	AuditBorrow      AuditAction = "BORROW"
	AuditReturn      AuditAction = "RETURN"
	AuditHandover    AuditAction = "HANDOVER"
	AuditScan        AuditAction = "SCAN"
	AuditSubmit      AuditAction = "SUBMIT"
	AuditApprove     AuditAction = "APPROVE"
	AuditReject      AuditAction = "REJECT"
	AuditRelease     AuditAction = "RELEASE"
	AuditCancel      AuditAction = "CANCEL"
	AuditComplete    AuditAction = "COMPLETE"
	AuditDamage      AuditAction = "DAMAGE"
	AuditMaintenance AuditAction = "MAINTENANCE"
	AuditResolve     AuditAction = "RESOLVE"
	AuditOverdue     AuditAction = "OVERDUE"
	AuditExport      AuditAction = "EXPORT"
)

// AuditLogCapacity bounds the number of retained audit entries.
const AuditLogCapacity = 100

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a serialized piece of equipment. CreatedAt is the intake date.
type Item struct {
	Base
	CategoryID   string        `json:"category_id"`
	Name         string        `json:"name"`
	SerialNumber string        `json:"serial_number"`
	QRCodeValue  string        `json:"qr_code_value"`
	Status       ItemStatus    `json:"status"`
	Condition    ItemCondition `json:"condition"`
	Location     string        `json:"location"`
	Notes        string        `json:"notes"`
}

// Category groups items for display and filtering.
type Category struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Borrower identifies the person holding custody of an item.
type Borrower struct {
	Name          string `json:"borrower_name"`
	IDNumber      string `json:"borrower_id_number"`
	ContactNumber string `json:"contact_number"`
}

// Transaction records one item's custody from reservation or release to return.
type Transaction struct {
	Base
	ItemID string `json:"item_id"`
	Borrower
	DateRequested      time.Time         `json:"date_requested"`
	DateBorrowed       *time.Time        `json:"date_borrowed,omitempty"`
	DueDate            time.Time         `json:"due_date"`
	DateReturned       *time.Time        `json:"date_returned,omitempty"`
	Status             TransactionStatus `json:"status"`
	ConditionOnRelease ItemCondition     `json:"condition_on_release"`
	ConditionOnReturn  *ItemCondition    `json:"condition_on_return,omitempty"`
	Remarks            string            `json:"remarks"`
	ReturnRemarks      string            `json:"return_remarks,omitempty"`
	ReferenceID        string            `json:"reference_id"`
	SessionID          string            `json:"session_id,omitempty"`
	SessionCode        string            `json:"session_code,omitempty"`
}

// BorrowSession is a single borrower's multi-item request tracked as one workflow unit.
type BorrowSession struct {
	Base
	SessionCode string `json:"session_code"`
	Borrower
	Department         string        `json:"department"`
	Purpose            string        `json:"purpose"`
	RequestedDate      time.Time     `json:"requested_date"`
	ExpectedReturnDate time.Time     `json:"expected_return_date"`
	DateReleased       *time.Time    `json:"date_released,omitempty"`
	DateCompleted      *time.Time    `json:"date_completed,omitempty"`
	Status             SessionStatus `json:"status"`
	ItemIDs            []string      `json:"item_ids"`
	ReleasedItemIDs    []string      `json:"released_item_ids,omitempty"`
	ReservedItemIDs    []string      `json:"reserved_item_ids,omitempty"`
	RejectionReason    string        `json:"rejection_reason,omitempty"`
}

// HasItem reports whether itemID is a member of the session.
func (s BorrowSession) HasItem(itemID string) bool {
	return slices.Contains(s.ItemIDs, itemID)
}

// IsReleased reports whether itemID was already handed to the borrower.
func (s BorrowSession) IsReleased(itemID string) bool {
	return slices.Contains(s.ReleasedItemIDs, itemID)
}

// FullyReleased reports whether every member item has been released.
func (s BorrowSession) FullyReleased() bool {
	if len(s.ItemIDs) == 0 || len(s.ReleasedItemIDs) != len(s.ItemIDs) {
		return false
	}
	for _, id := range s.ItemIDs {
		if !s.IsReleased(id) {
			return false
		}
	}
	return true
}

// MaintenanceLog tracks a repair of a damaged item.
type MaintenanceLog struct {
	Base
	ItemID           string            `json:"item_id"`
	IssueDescription string            `json:"issue_description"`
	ReportedDate     time.Time         `json:"reported_date"`
	ResolvedDate     *time.Time        `json:"resolved_date,omitempty"`
	Status           MaintenanceStatus `json:"status"`
	FinalCondition   *ItemCondition    `json:"final_condition,omitempty"`
}

// AuditLog is an append-only record of a mutating action.
type AuditLog struct {
	ID          string      `json:"id"`
	ActionType  AuditAction `json:"action_type"`
	ItemID      string      `json:"item_id,omitempty"`
	AdminUser   string      `json:"admin_user"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change journal.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
