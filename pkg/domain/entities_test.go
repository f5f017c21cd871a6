package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestEnumValidity(t *testing.T) {
	for _, s := range []ItemStatus{ItemAvailable, ItemReserved, ItemBorrowed, ItemMaintenance, ItemLost, ItemArchived} {
		if !s.Valid() {
			t.Fatalf("expected %s valid", s)
		}
	}
	if ItemStatus("Stolen").Valid() || ItemCondition("Broken").Valid() || TransactionStatus("Lent").Valid() ||
		SessionStatus("Draft").Valid() || MaintenanceStatus("Queued").Valid() {
		t.Fatalf("unknown values must be invalid")
	}
	if !ConditionUnderRepair.Valid() || !TransactionOverdue.Valid() || !SessionPendingScanning.Valid() || !MaintenanceCompleted.Valid() {
		t.Fatalf("expected canonical values valid")
	}
}

func TestTransactionStatusOpen(t *testing.T) {
	open := map[TransactionStatus]bool{
		TransactionReserved:  true,
		TransactionBorrowed:  true,
		TransactionOverdue:   true,
		TransactionReturned:  false,
		TransactionCancelled: false,
	}
	for status, want := range open {
		if status.Open() != want {
			t.Fatalf("%s.Open() = %v, want %v", status, status.Open(), want)
		}
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	for _, s := range []SessionStatus{SessionCompleted, SessionCancelled, SessionRejected} {
		if !s.Terminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
	for _, s := range []SessionStatus{SessionPendingScanning, SessionPendingApproval, SessionApproved, SessionActive} {
		if s.Terminal() {
			t.Fatalf("expected %s non-terminal", s)
		}
	}
}

func TestBorrowSessionMembership(t *testing.T) {
	sess := BorrowSession{ItemIDs: []string{"a", "b"}}
	if !sess.HasItem("a") || sess.HasItem("c") {
		t.Fatalf("HasItem mismatch")
	}
	if sess.FullyReleased() {
		t.Fatalf("nothing released yet")
	}
	sess.ReleasedItemIDs = []string{"b"}
	if !sess.IsReleased("b") || sess.IsReleased("a") || sess.FullyReleased() {
		t.Fatalf("partial release mismatch")
	}
	sess.ReleasedItemIDs = append(sess.ReleasedItemIDs, "a")
	if !sess.FullyReleased() {
		t.Fatalf("expected fully released")
	}
	if (BorrowSession{}).FullyReleased() {
		t.Fatalf("empty session is never fully released")
	}
	sess.ReleasedItemIDs = []string{"a", "x"}
	if sess.FullyReleased() {
		t.Fatalf("foreign release ids must not count")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{NotFoundError{Entity: EntityItem, ID: "i1"}, `item "i1" not found`},
		{InvalidStateError{Entity: EntitySession, ID: "s1", State: "Active", Operation: "approve"}, `cannot approve session "s1" in state Active`},
		{InvalidStateError{Entity: EntityItem, ID: "i1", State: "Borrowed", Operation: "lend", Reason: "item is not available"}, "item is not available"},
		{ReferenceError{Entity: EntityCategory, ID: "c1", ReferencedBy: EntityItem, Count: 2}, "referenced by 2 item"},
		{ValidationError{Field: "due_date", Message: "required"}, "invalid due_date: required"},
		{SnapshotError{Backend: "sqlite", Bucket: "items", Err: errors.New("eof")}, "bucket items"},
		{SnapshotError{Backend: "redis", Err: errors.New("eof")}, "decode redis snapshot: eof"},
	}
	for _, tc := range cases {
		if !strings.Contains(tc.err.Error(), tc.want) {
			t.Fatalf("%T: %q does not contain %q", tc.err, tc.err.Error(), tc.want)
		}
	}
	inner := errors.New("bad json")
	if !errors.Is(SnapshotError{Backend: "postgres", Err: inner}, inner) {
		t.Fatalf("SnapshotError must unwrap")
	}
}
