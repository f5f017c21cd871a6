package core

import (
	"context"
	"testing"

	"equiploan/pkg/domain"
)

func evaluate(t *testing.T, rule domain.Rule, store interface {
	View(context.Context, func(domain.View) error) error
}, changes []domain.Change) domain.Result {
	t.Helper()
	var res domain.Result
	err := store.View(context.Background(), func(v domain.View) error {
		var err error
		res, err = rule.Evaluate(context.Background(), v, changes)
		return err
	})
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	var names []string
	for _, rule := range NewDefaultRulesEngine().Rules() {
		names = append(names, rule.Name())
	}
	want := []string{"lifecycle_transition", "open_transaction_per_item", "item_loan_consistency", "session_membership", "scan_code_uniqueness"}
	if len(names) != len(want) {
		t.Fatalf("unexpected rules %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("rule %d: want %s got %s", i, want[i], names[i])
		}
	}
}

func TestLifecycleTransitionBlocksTerminalExit(t *testing.T) {
	store := newBareStore()
	before := domain.BorrowSession{Base: domain.Base{ID: "s1"}, Status: domain.SessionCompleted}
	after := before
	after.Status = domain.SessionActive

	res := evaluate(t, LifecycleTransitionRule(), store, []domain.Change{{
		Entity: domain.EntitySession, Action: domain.ActionUpdate, Before: before, After: after,
	}})
	if !res.HasBlocking() {
		t.Fatalf("expected violation when leaving terminal state")
	}

	returned := domain.Transaction{Base: domain.Base{ID: "t1"}, Status: domain.TransactionReturned}
	reopened := returned
	reopened.Status = domain.TransactionBorrowed
	res = evaluate(t, LifecycleTransitionRule(), store, []domain.Change{{
		Entity: domain.EntityTransaction, Before: &returned, After: &reopened,
	}})
	if !res.HasBlocking() {
		t.Fatalf("expected violation when reopening a returned transaction")
	}
}

func TestLifecycleTransitionInvalidState(t *testing.T) {
	store := newBareStore()
	res := evaluate(t, LifecycleTransitionRule(), store, []domain.Change{{
		Entity: domain.EntityItem,
		After:  domain.Item{Base: domain.Base{ID: "i1"}, Status: domain.ItemStatus("Teleported"), Condition: domain.ConditionGood},
	}})
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation for invalid item status, got %+v", res.Violations)
	}
	res = evaluate(t, LifecycleTransitionRule(), store, []domain.Change{{
		Entity: domain.EntityItem,
		After:  domain.Item{Base: domain.Base{ID: "i1"}, Status: domain.ItemAvailable, Condition: domain.ItemCondition("Mint")},
	}})
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation for invalid condition, got %+v", res.Violations)
	}
	res = evaluate(t, LifecycleTransitionRule(), store, []domain.Change{{
		Entity: domain.EntityCategory, After: domain.Category{Name: "ignored"},
	}})
	if len(res.Violations) != 0 {
		t.Fatalf("categories carry no lifecycle, got %+v", res.Violations)
	}
}

func TestOpenTransactionPerItemRule(t *testing.T) {
	store := newBareStore()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Tx) error {
		cat, err := tx.CreateCategory(domain.Category{Name: "Kit"})
		if err != nil {
			return err
		}
		item, err := tx.CreateItem(domain.Item{Base: domain.Base{ID: "i1"}, CategoryID: cat.ID, Name: "Cam", SerialNumber: "C1", Status: domain.ItemBorrowed, Condition: domain.ConditionGood})
		if err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			if _, err := tx.CreateTransaction(domain.Transaction{ItemID: item.ID, Status: domain.TransactionBorrowed}); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected second open transaction to be blocked")
	}
	var found bool
	if rv, ok := err.(domain.RuleViolationError); ok {
		for _, v := range rv.Result.Violations {
			if v.Rule == "open_transaction_per_item" && v.EntityID == "i1" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected open_transaction_per_item violation, got %v", err)
	}
}

func TestSessionMembershipRule(t *testing.T) {
	store := newBareStore()
	cases := map[string]domain.BorrowSession{
		"duplicate":        {ItemIDs: []string{"a", "a"}, Status: domain.SessionPendingScanning},
		"released outside": {ItemIDs: []string{"a"}, ReleasedItemIDs: []string{"b"}, Status: domain.SessionApproved},
		"reserved outside": {ItemIDs: []string{"a"}, ReservedItemIDs: []string{"b"}, Status: domain.SessionApproved},
		"active early":     {ItemIDs: []string{"a", "b"}, ReleasedItemIDs: []string{"a"}, Status: domain.SessionActive},
	}
	for name, sess := range cases {
		t.Run(name, func(t *testing.T) {
			res := evaluate(t, NewSessionMembershipRule(), store, []domain.Change{{Entity: domain.EntitySession, After: sess}})
			if !res.HasBlocking() {
				t.Fatalf("expected violation for %s", name)
			}
		})
	}
	ok := domain.BorrowSession{ItemIDs: []string{"a", "b"}, ReleasedItemIDs: []string{"b", "a"}, Status: domain.SessionActive}
	if res := evaluate(t, NewSessionMembershipRule(), store, []domain.Change{{Entity: domain.EntitySession, After: ok}}); res.HasBlocking() {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
}

func TestScanCodesCollapseDuplicates(t *testing.T) {
	if got := scanCodes(domain.Item{SerialNumber: "A", QRCodeValue: "A"}); len(got) != 1 {
		t.Fatalf("expected one code, got %v", got)
	}
	if got := scanCodes(domain.Item{SerialNumber: "A", QRCodeValue: "B"}); len(got) != 2 {
		t.Fatalf("expected two codes, got %v", got)
	}
	if got := scanCodes(domain.Item{}); got != nil {
		t.Fatalf("expected no codes, got %v", got)
	}
}

func TestScanCodeUniquenessAcrossSerialAndQR(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cat := mustCategory(t, svc, "Kit")
	if _, _, err := svc.CreateItem(ctx, domain.Item{CategoryID: cat.ID, Name: "A", SerialNumber: "SER-1", QRCodeValue: "QR-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, res, err := svc.CreateItem(ctx, domain.Item{CategoryID: cat.ID, Name: "B", SerialNumber: "QR-1"})
	if err == nil || !res.HasBlocking() {
		t.Fatalf("expected serial colliding with another item's QR value to be blocked")
	}
}

func TestNextItemState(t *testing.T) {
	base := domain.Item{Status: domain.ItemBorrowed, Condition: domain.ConditionGood}
	cases := []struct {
		event     ItemEvent
		condition domain.ItemCondition
		status    domain.ItemStatus
		cond      domain.ItemCondition
	}{
		{EventReserve, "", domain.ItemReserved, domain.ConditionGood},
		{EventBorrow, "", domain.ItemBorrowed, domain.ConditionGood},
		{EventReturn, domain.ConditionDamaged, domain.ItemAvailable, domain.ConditionDamaged},
		{EventReturn, "", domain.ItemAvailable, domain.ConditionGood},
		{EventDamageDetected, "", domain.ItemBorrowed, domain.ConditionDamaged},
		{EventMaintenanceOpened, "", domain.ItemMaintenance, domain.ConditionGood},
		{EventMaintenanceResolved, domain.ConditionUnderRepair, domain.ItemAvailable, domain.ConditionUnderRepair},
		{EventArchive, "", domain.ItemArchived, domain.ConditionGood},
		{EventRollback, "", domain.ItemAvailable, domain.ConditionGood},
	}
	for _, tc := range cases {
		status, cond, err := nextItemState(base, tc.event, tc.condition)
		if err != nil {
			t.Fatalf("%s: %v", tc.event, err)
		}
		if status != tc.status || cond != tc.cond {
			t.Fatalf("%s: got %s/%s want %s/%s", tc.event, status, cond, tc.status, tc.cond)
		}
	}
	if _, _, err := nextItemState(base, ItemEvent("teleport"), ""); err == nil {
		t.Fatalf("expected unknown event error")
	}
	if _, _, err := nextItemState(base, EventReturn, domain.ItemCondition("Mint")); err == nil {
		t.Fatalf("expected invalid condition error")
	}
}
