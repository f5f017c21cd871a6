package core

import (
	"context"
	"strings"
	"time"

	"equiploan/pkg/domain"
)

// LoanTerms carries the request details of a standalone loan.
type LoanTerms struct {
	DateRequested time.Time
	DueDate       time.Time
	Remarks       string
	ReferenceID   string
}

// OpenTransaction reserves or lends an Available item outside any session.
func (s *Service) OpenTransaction(ctx context.Context, itemID string, borrower domain.Borrower, terms LoanTerms, reservation bool) (domain.Transaction, domain.Result, error) {
	if strings.TrimSpace(itemID) == "" {
		return domain.Transaction{}, domain.Result{}, domain.ValidationError{Field: "item_id", Message: "required"}
	}
	if strings.TrimSpace(borrower.Name) == "" {
		return domain.Transaction{}, domain.Result{}, domain.ValidationError{Field: "borrower_name", Message: "required"}
	}
	if terms.DueDate.IsZero() {
		return domain.Transaction{}, domain.Result{}, domain.ValidationError{Field: "due_date", Message: "required"}
	}
	defer s.locks.lock(itemKey(itemID))()

	var created domain.Transaction
	res, err := s.run(ctx, "open_transaction", func(tx domain.Tx) error {
		item, err := findItem(tx.View(), itemID)
		if err != nil {
			return err
		}
		if item.Status != domain.ItemAvailable {
			return domain.InvalidStateError{Entity: domain.EntityItem, ID: itemID, State: string(item.Status), Operation: "lend", Reason: "item is not available"}
		}
		status, event, action := domain.TransactionBorrowed, EventBorrow, domain.AuditBorrow
		if reservation {
			status, event, action = domain.TransactionReserved, EventReserve, domain.AuditReserve
		}
		requested := terms.DateRequested
		if requested.IsZero() {
			requested = tx.Now()
		}
		t := domain.Transaction{
			ItemID:             itemID,
			Borrower:           borrower,
			DateRequested:      requested,
			DueDate:            terms.DueDate,
			Status:             status,
			ConditionOnRelease: item.Condition,
			Remarks:            terms.Remarks,
			ReferenceID:        terms.ReferenceID,
		}
		if !reservation {
			now := tx.Now()
			t.DateBorrowed = &now
		}
		created, err = tx.CreateTransaction(t)
		if err != nil {
			return err
		}
		if _, err := applyItemEvent(tx, itemID, event, ""); err != nil {
			return err
		}
		s.audit(tx, action, itemID, "%s: %s for %s", status, item.Name, borrower.Name)
		return nil
	})
	return created, res, err
}

// CompleteTransaction records the return of an open loan. A session loan also
// triggers the session completion check.
func (s *Service) CompleteTransaction(ctx context.Context, id string, condition domain.ItemCondition, remarks string) (domain.Transaction, domain.Result, error) {
	defer s.locks.lock(s.loanKeys(ctx, id)...)()
	var completed domain.Transaction
	res, err := s.run(ctx, "complete_transaction", func(tx domain.Tx) error {
		var err error
		completed, err = s.completeTransaction(tx, id, condition, remarks)
		return err
	})
	return completed, res, err
}

// loanKeys returns the lock keys for a transaction, adding the session key for session loans.
func (s *Service) loanKeys(ctx context.Context, id string) []string {
	keys := []string{transactionKey(id)}
	_ = s.store.View(ctx, func(v domain.View) error {
		if t, ok := v.FindTransaction(id); ok && t.SessionID != "" {
			keys = append(keys, sessionKey(t.SessionID))
		}
		return nil
	})
	return keys
}

func (s *Service) completeTransaction(tx domain.Tx, id string, condition domain.ItemCondition, remarks string) (domain.Transaction, error) {
	if !condition.Valid() {
		return domain.Transaction{}, domain.ValidationError{Field: "condition_on_return", Message: "must be Good, Damaged or Under Repair"}
	}
	current, err := findTransaction(tx.View(), id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !current.Status.Open() {
		return domain.Transaction{}, domain.InvalidStateError{Entity: domain.EntityTransaction, ID: id, State: string(current.Status), Operation: "return"}
	}
	now := tx.Now()
	completed, err := tx.UpdateTransaction(id, func(t *domain.Transaction) error {
		t.Status = domain.TransactionReturned
		t.DateReturned = &now
		cond := condition
		t.ConditionOnReturn = &cond
		t.ReturnRemarks = remarks
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	item, err := applyItemEvent(tx, current.ItemID, EventReturn, condition)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.audit(tx, domain.AuditReturn, item.ID, "Returned item %s (%s) from %s in %s condition", item.Name, item.SerialNumber, current.Borrower.Name, condition)
	if completed.SessionID != "" {
		if _, _, err := s.checkSessionCompletion(tx, completed.SessionID); err != nil {
			return domain.Transaction{}, err
		}
	}
	return completed, nil
}

// UpdateTransaction overwrites the mutable fields of an open transaction.
// The only status change accepted is the Reserved to Borrowed handover.
func (s *Service) UpdateTransaction(ctx context.Context, update domain.Transaction) (domain.Transaction, domain.Result, error) {
	defer s.locks.lock(s.loanKeys(ctx, update.ID)...)()
	var updated domain.Transaction
	res, err := s.run(ctx, "update_transaction", func(tx domain.Tx) error {
		current, err := findTransaction(tx.View(), update.ID)
		if err != nil {
			return err
		}
		if !current.Status.Open() {
			return domain.InvalidStateError{Entity: domain.EntityTransaction, ID: current.ID, State: string(current.Status), Operation: "update", Reason: "closed transactions are immutable"}
		}
		handover := false
		if update.Status != "" && update.Status != current.Status {
			if current.Status != domain.TransactionReserved || update.Status != domain.TransactionBorrowed {
				return domain.InvalidStateError{Entity: domain.EntityTransaction, ID: current.ID, State: string(current.Status), Operation: "change status to " + string(update.Status)}
			}
			handover = true
		}
		updated, err = tx.UpdateTransaction(current.ID, func(t *domain.Transaction) error {
			if update.Borrower.Name != "" {
				t.Borrower = update.Borrower
			}
			if !update.DueDate.IsZero() {
				t.DueDate = update.DueDate
			}
			t.Remarks = update.Remarks
			if update.ReferenceID != "" {
				t.ReferenceID = update.ReferenceID
			}
			return nil
		})
		if err != nil {
			return err
		}
		if handover {
			updated, err = s.handOver(tx, updated)
			return err
		}
		s.audit(tx, domain.AuditUpdate, updated.ItemID, "Updated transaction %s for %s", updated.ID, updated.Borrower.Name)
		return nil
	})
	return updated, res, err
}

// HandOverReservation turns a Reserved transaction into a Borrowed one.
func (s *Service) HandOverReservation(ctx context.Context, id string) (domain.Transaction, domain.Result, error) {
	defer s.locks.lock(s.loanKeys(ctx, id)...)()
	var updated domain.Transaction
	res, err := s.run(ctx, "hand_over_reservation", func(tx domain.Tx) error {
		current, err := findTransaction(tx.View(), id)
		if err != nil {
			return err
		}
		if current.Status != domain.TransactionReserved {
			return domain.InvalidStateError{Entity: domain.EntityTransaction, ID: id, State: string(current.Status), Operation: "hand over"}
		}
		updated, err = s.handOver(tx, current)
		return err
	})
	return updated, res, err
}

func (s *Service) handOver(tx domain.Tx, current domain.Transaction) (domain.Transaction, error) {
	now := tx.Now()
	updated, err := tx.UpdateTransaction(current.ID, func(t *domain.Transaction) error {
		t.Status = domain.TransactionBorrowed
		t.DateBorrowed = &now
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	item, err := applyItemEvent(tx, current.ItemID, EventBorrow, "")
	if err != nil {
		return domain.Transaction{}, err
	}
	s.audit(tx, domain.AuditHandover, item.ID, "Handed over %s to %s", item.Name, current.Borrower.Name)
	return updated, nil
}

// CancelTransaction closes an open transaction and returns its item to Available.
func (s *Service) CancelTransaction(ctx context.Context, id string) (domain.Transaction, domain.Result, error) {
	defer s.locks.lock(s.loanKeys(ctx, id)...)()
	var cancelled domain.Transaction
	res, err := s.run(ctx, "cancel_transaction", func(tx domain.Tx) error {
		current, err := findTransaction(tx.View(), id)
		if err != nil {
			return err
		}
		cancelled, err = s.cancelTransaction(tx, current)
		if err != nil {
			return err
		}
		if cancelled.SessionID != "" {
			_, _, err = s.checkSessionCompletion(tx, cancelled.SessionID)
		}
		return err
	})
	return cancelled, res, err
}

func (s *Service) cancelTransaction(tx domain.Tx, current domain.Transaction) (domain.Transaction, error) {
	if !current.Status.Open() {
		return domain.Transaction{}, domain.InvalidStateError{Entity: domain.EntityTransaction, ID: current.ID, State: string(current.Status), Operation: "cancel"}
	}
	cancelled, err := tx.UpdateTransaction(current.ID, func(t *domain.Transaction) error {
		t.Status = domain.TransactionCancelled
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	item, err := applyItemEvent(tx, current.ItemID, EventRollback, "")
	if err != nil {
		return domain.Transaction{}, err
	}
	s.audit(tx, domain.AuditCancel, item.ID, "Cancelled transaction %s for %s", current.ID, item.Name)
	return cancelled, nil
}

// GetTransaction returns a transaction by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	var out domain.Transaction
	err := s.view(ctx, "get_transaction", func(v domain.View) error {
		var err error
		out, err = findTransaction(v, id)
		return err
	})
	return out, err
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	ItemID    string
	SessionID string
	Status    domain.TransactionStatus
	OpenOnly  bool
}

func (f TransactionFilter) match(t domain.Transaction) bool {
	switch {
	case f.ItemID != "" && t.ItemID != f.ItemID:
		return false
	case f.SessionID != "" && t.SessionID != f.SessionID:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.OpenOnly && !t.Status.Open():
		return false
	}
	return true
}

// ListTransactions returns transactions in insertion order.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.view(ctx, "list_transactions", func(v domain.View) error {
		for _, t := range v.ListTransactions() {
			if filter.match(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func openTransactionFor(v domain.View, itemID string) (domain.Transaction, bool) {
	for _, t := range v.ListTransactions() {
		if t.ItemID == itemID && t.Status.Open() {
			return t, true
		}
	}
	return domain.Transaction{}, false
}
