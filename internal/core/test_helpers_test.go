package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/pkg/domain"
)

var testNow = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: testNow}
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewInMemoryService(NewDefaultRulesEngine(), opts...), clock
}

func newSeededService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, _ := newTestService(t, opts...)
	if err := svc.ResetToSeed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc
}

func mustCategory(t *testing.T, svc *Service, name string) domain.Category {
	t.Helper()
	c, _, err := svc.CreateCategory(context.Background(), domain.Category{Name: name})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return c
}

func mustItem(t *testing.T, svc *Service, categoryID, name, serial string) domain.Item {
	t.Helper()
	item, _, err := svc.CreateItem(context.Background(), domain.Item{CategoryID: categoryID, Name: name, SerialNumber: serial})
	if err != nil {
		t.Fatalf("create item %s: %v", serial, err)
	}
	return item
}

func mustGetItem(t *testing.T, svc *Service, id string) domain.Item {
	t.Helper()
	item, err := svc.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item
}

func jane() domain.Borrower {
	return domain.Borrower{Name: "Jane Doe", IDNumber: "S1", ContactNumber: "0917-000-0000"}
}

// approvedSession creates a session holding items and walks it to Approved.
func approvedSession(t *testing.T, svc *Service, items ...domain.Item) domain.BorrowSession {
	t.Helper()
	ctx := context.Background()
	sess, _, err := svc.CreateSession(ctx, SessionRequest{
		Borrower:           jane(),
		Department:         "Engineering",
		Purpose:            "Field test",
		ExpectedReturnDate: testNow.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, item := range items {
		if _, _, err := svc.AddItemToSession(ctx, sess.ID, item.ID); err != nil {
			t.Fatalf("add %s: %v", item.ID, err)
		}
	}
	if _, _, err := svc.SubmitSessionForApproval(ctx, sess.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sess, _, err = svc.ApproveSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return sess
}

func sessionTransactions(t *testing.T, svc *Service, sessionID string) []domain.Transaction {
	t.Helper()
	txs, err := svc.ListTransactions(context.Background(), TransactionFilter{SessionID: sessionID})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return txs
}

func expectInvalidState(t *testing.T, err error) domain.InvalidStateError {
	t.Helper()
	var stateErr domain.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	return stateErr
}

func expectNotFound(t *testing.T, err error, entity domain.EntityType) {
	t.Helper()
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != entity {
		t.Fatalf("expected %s NotFoundError, got %v", entity, err)
	}
}

// assertLoanConsistency checks that no Available item is referenced by an open transaction.
func assertLoanConsistency(t *testing.T, svc *Service) {
	t.Helper()
	snap := svc.Snapshot()
	status := make(map[string]domain.ItemStatus, len(snap.Items))
	for _, item := range snap.Items {
		status[item.ID] = item.Status
	}
	open := make(map[string]int)
	for _, tx := range snap.Transactions {
		if !tx.Status.Open() {
			continue
		}
		open[tx.ItemID]++
		if status[tx.ItemID] == domain.ItemAvailable {
			t.Fatalf("item %s is Available with open transaction %s", tx.ItemID, tx.ID)
		}
	}
	for itemID, n := range open {
		if n > 1 {
			t.Fatalf("item %s has %d open transactions", itemID, n)
		}
	}
}

func newBareStore() *memory.Store {
	return memory.NewStore(NewDefaultRulesEngine(), memory.WithNowFunc(func() time.Time { return testNow }))
}
