package domain

import "fmt"

// NotFoundError is returned when an operation references an unknown record.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// InvalidStateError is returned when an operation is not allowed from the
// record's current state.
type InvalidStateError struct {
	Entity    EntityType
	ID        string
	State     string
	Operation string
	Reason    string
}

func (e InvalidStateError) Error() string {
	msg := fmt.Sprintf("cannot %s %s %q in state %s", e.Operation, e.Entity, e.ID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ReferenceError is returned when deleting a record that others still reference.
type ReferenceError struct {
	Entity       EntityType
	ID           string
	ReferencedBy EntityType
	Count        int
}

func (e ReferenceError) Error() string {
	return fmt.Sprintf("%s %q still referenced by %d %s record(s)", e.Entity, e.ID, e.Count, e.ReferencedBy)
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SnapshotError reports a durable snapshot that could not be decoded.
type SnapshotError struct {
	Backend string
	Bucket  string
	Err     error
}

func (e SnapshotError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("decode %s snapshot: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("decode %s snapshot bucket %s: %v", e.Backend, e.Bucket, e.Err)
}

func (e SnapshotError) Unwrap() error { return e.Err }
