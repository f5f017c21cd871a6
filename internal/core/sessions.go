package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"equiploan/pkg/domain"
)

// SessionCodeAttempts bounds consecutive code collisions before CreateSession gives up.
const SessionCodeAttempts = 8

// ErrSessionCodeExhausted is returned when every generated session code collided.
var ErrSessionCodeExhausted = errors.New("session code space exhausted")

// SessionCodeGenerator produces candidate session codes.
type SessionCodeGenerator func() (string, error)

const sessionCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomSessionCode returns "BS-" followed by six uppercase base-36 characters.
func RandomSessionCode() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read session code entropy: %w", err)
	}
	out := make([]byte, 0, 9)
	out = append(out, "BS-"...)
	for _, b := range buf {
		out = append(out, sessionCodeAlphabet[int(b)%len(sessionCodeAlphabet)])
	}
	return string(out), nil
}

// SessionRequest is the borrower-supplied part of a new session.
type SessionRequest struct {
	Borrower           domain.Borrower
	Department         string
	Purpose            string
	RequestedDate      time.Time
	ExpectedReturnDate time.Time
}

func (r SessionRequest) validate() error {
	if strings.TrimSpace(r.Borrower.Name) == "" {
		return domain.ValidationError{Field: "borrower_name", Message: "required"}
	}
	if r.ExpectedReturnDate.IsZero() {
		return domain.ValidationError{Field: "expected_return_date", Message: "required"}
	}
	return nil
}

func sessionStateError(sess domain.BorrowSession, op string) error {
	return domain.InvalidStateError{Entity: domain.EntitySession, ID: sess.ID, State: string(sess.Status), Operation: op}
}

// CreateSession opens a PendingScanning session under a fresh unique code.
func (s *Service) CreateSession(ctx context.Context, req SessionRequest) (domain.BorrowSession, domain.Result, error) {
	if err := req.validate(); err != nil {
		return domain.BorrowSession{}, domain.Result{}, err
	}
	var created domain.BorrowSession
	res, err := s.run(ctx, "create_session", func(tx domain.Tx) error {
		code, err := s.uniqueSessionCode(tx.View())
		if err != nil {
			return err
		}
		requested := req.RequestedDate
		if requested.IsZero() {
			requested = tx.Now()
		}
		created, err = tx.CreateSession(domain.BorrowSession{
			SessionCode:        code,
			Borrower:           req.Borrower,
			Department:         req.Department,
			Purpose:            req.Purpose,
			RequestedDate:      requested,
			ExpectedReturnDate: req.ExpectedReturnDate,
			Status:             domain.SessionPendingScanning,
			ItemIDs:            []string{},
		})
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditCreate, "", "Created session %s for %s", created.SessionCode, created.Borrower.Name)
		return nil
	})
	return created, res, err
}

func (s *Service) uniqueSessionCode(v domain.View) (string, error) {
	for range SessionCodeAttempts {
		code, err := s.codes()
		if err != nil {
			return "", err
		}
		if _, taken := v.FindSessionByCode(code); !taken {
			return code, nil
		}
	}
	return "", ErrSessionCodeExhausted
}

// AddItemToSession appends an item to a PendingScanning session in scan order.
// Adding a member twice is a no-op.
func (s *Service) AddItemToSession(ctx context.Context, sessionID, itemID string) (domain.BorrowSession, domain.Result, error) {
	defer s.locks.lock(sessionKey(sessionID))()
	var updated domain.BorrowSession
	res, err := s.run(ctx, "add_item_to_session", func(tx domain.Tx) error {
		sess, err := findSession(tx.View(), sessionID)
		if err != nil {
			return err
		}
		item, err := findItem(tx.View(), itemID)
		if err != nil {
			return err
		}
		updated, err = s.addItem(tx, sess, item, domain.AuditUpdate, "Added item %s to session %s")
		return err
	})
	return updated, res, err
}

// ScanIntoSession resolves a scanned code and adds the matching Available item.
func (s *Service) ScanIntoSession(ctx context.Context, sessionID, code string) (domain.BorrowSession, domain.Result, error) {
	defer s.locks.lock(sessionKey(sessionID))()
	var updated domain.BorrowSession
	res, err := s.run(ctx, "scan_into_session", func(tx domain.Tx) error {
		sess, err := findSession(tx.View(), sessionID)
		if err != nil {
			return err
		}
		if sess.Status != domain.SessionPendingScanning {
			return sessionStateError(sess, "scan into")
		}
		item, err := resolveScan(tx.View(), code)
		if err != nil {
			return err
		}
		if !sess.HasItem(item.ID) && item.Status != domain.ItemAvailable {
			return domain.InvalidStateError{Entity: domain.EntityItem, ID: item.ID, State: string(item.Status), Operation: "scan", Reason: "item is not available"}
		}
		updated, err = s.addItem(tx, sess, item, domain.AuditScan, "Scanned item %s into session %s")
		return err
	})
	return updated, res, err
}

func (s *Service) addItem(tx domain.Tx, sess domain.BorrowSession, item domain.Item, action domain.AuditAction, format string) (domain.BorrowSession, error) {
	if sess.Status != domain.SessionPendingScanning {
		return domain.BorrowSession{}, sessionStateError(sess, "add item to")
	}
	if sess.HasItem(item.ID) {
		return sess, nil
	}
	updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
		bs.ItemIDs = append(bs.ItemIDs, item.ID)
		return nil
	})
	if err != nil {
		return domain.BorrowSession{}, err
	}
	s.audit(tx, action, item.ID, format, item.SerialNumber, sess.SessionCode)
	return updated, nil
}

// RemoveItemFromSession drops an item from a PendingScanning session. Removing a
// non-member is a no-op.
func (s *Service) RemoveItemFromSession(ctx context.Context, sessionID, itemID string) (domain.BorrowSession, domain.Result, error) {
	defer s.locks.lock(sessionKey(sessionID))()
	var updated domain.BorrowSession
	res, err := s.run(ctx, "remove_item_from_session", func(tx domain.Tx) error {
		sess, err := findSession(tx.View(), sessionID)
		if err != nil {
			return err
		}
		if sess.Status != domain.SessionPendingScanning {
			return sessionStateError(sess, "remove item from")
		}
		if !sess.HasItem(itemID) {
			updated = sess
			return nil
		}
		updated, err = tx.UpdateSession(sessionID, func(bs *domain.BorrowSession) error {
			bs.ItemIDs = slices.DeleteFunc(bs.ItemIDs, func(id string) bool { return id == itemID })
			return nil
		})
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditUpdate, itemID, "Removed item %s from session %s", itemID, sess.SessionCode)
		return nil
	})
	return updated, res, err
}

// SubmitSessionForApproval moves a session from PendingScanning to PendingApproval.
func (s *Service) SubmitSessionForApproval(ctx context.Context, sessionID string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "submit_session", sessionID, func(tx domain.Tx, sess domain.BorrowSession) (domain.BorrowSession, error) {
		if sess.Status != domain.SessionPendingScanning {
			return domain.BorrowSession{}, sessionStateError(sess, "submit")
		}
		updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
			bs.Status = domain.SessionPendingApproval
			return nil
		})
		if err != nil {
			return domain.BorrowSession{}, err
		}
		s.audit(tx, domain.AuditSubmit, "", "Submitted session %s with %d item(s)", sess.SessionCode, len(sess.ItemIDs))
		return updated, nil
	})
}

// ApproveSession approves a pending session and reserves every member item that is
// still Available. Items in any other status are skipped.
func (s *Service) ApproveSession(ctx context.Context, sessionID string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "approve_session", sessionID, func(tx domain.Tx, sess domain.BorrowSession) (domain.BorrowSession, error) {
		if sess.Status != domain.SessionPendingApproval {
			return domain.BorrowSession{}, sessionStateError(sess, "approve")
		}
		var reserved []string
		for _, itemID := range sess.ItemIDs {
			item, ok := tx.View().FindItem(itemID)
			if !ok || item.Status != domain.ItemAvailable {
				continue
			}
			if _, err := applyItemEvent(tx, itemID, EventReserve, ""); err != nil {
				return domain.BorrowSession{}, err
			}
			reserved = append(reserved, itemID)
		}
		updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
			bs.Status = domain.SessionApproved
			bs.ReservedItemIDs = reserved
			return nil
		})
		if err != nil {
			return domain.BorrowSession{}, err
		}
		s.audit(tx, domain.AuditApprove, "", "Approved session: %s", sess.SessionCode)
		return updated, nil
	})
}

// RejectSession rejects a pending session and records the reason. Items are untouched.
func (s *Service) RejectSession(ctx context.Context, sessionID, reason string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "reject_session", sessionID, func(tx domain.Tx, sess domain.BorrowSession) (domain.BorrowSession, error) {
		if sess.Status != domain.SessionPendingApproval {
			return domain.BorrowSession{}, sessionStateError(sess, "reject")
		}
		updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
			bs.Status = domain.SessionRejected
			bs.RejectionReason = reason
			return nil
		})
		if err != nil {
			return domain.BorrowSession{}, err
		}
		s.audit(tx, domain.AuditReject, "", "Rejected session: %s. Reason: %s", sess.SessionCode, reason)
		return updated, nil
	})
}

// ReleaseItemInSession hands one member item of an Approved session to the borrower.
// Releasing an already released item is a no-op.
func (s *Service) ReleaseItemInSession(ctx context.Context, sessionID, itemID string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "release_item", sessionID, func(tx domain.Tx, sess domain.BorrowSession) (domain.BorrowSession, error) {
		return s.releaseItem(tx, sess, itemID)
	})
}

// ReleaseSession releases every remaining member item in scan order.
func (s *Service) ReleaseSession(ctx context.Context, sessionID string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "release_session", sessionID, func(tx domain.Tx, sess domain.BorrowSession) (domain.BorrowSession, error) {
		if sess.Status != domain.SessionApproved && sess.Status != domain.SessionActive {
			return domain.BorrowSession{}, sessionStateError(sess, "release")
		}
		var err error
		for _, itemID := range slices.Clone(sess.ItemIDs) {
			sess, err = s.releaseItem(tx, sess, itemID)
			if err != nil {
				return domain.BorrowSession{}, err
			}
		}
		return sess, nil
	})
}

func (s *Service) releaseItem(tx domain.Tx, sess domain.BorrowSession, itemID string) (domain.BorrowSession, error) {
	if sess.IsReleased(itemID) {
		return sess, nil
	}
	if sess.Status != domain.SessionApproved {
		return domain.BorrowSession{}, sessionStateError(sess, "release item in")
	}
	if !sess.HasItem(itemID) {
		return domain.BorrowSession{}, domain.InvalidStateError{
			Entity: domain.EntitySession, ID: sess.ID, State: string(sess.Status),
			Operation: "release item in", Reason: fmt.Sprintf("item %s is not a member", itemID),
		}
	}
	item, err := findItem(tx.View(), itemID)
	if err != nil {
		return domain.BorrowSession{}, err
	}

	if open, ok := openTransactionFor(tx.View(), itemID); ok {
		if open.SessionID != sess.ID || open.Status != domain.TransactionReserved {
			return domain.BorrowSession{}, domain.InvalidStateError{
				Entity: domain.EntityItem, ID: itemID, State: string(item.Status),
				Operation: "release", Reason: fmt.Sprintf("open transaction %s holds the item", open.ID),
			}
		}
		if _, err := s.handOver(tx, open); err != nil {
			return domain.BorrowSession{}, err
		}
	} else {
		reservedHere := item.Status == domain.ItemReserved && slices.Contains(sess.ReservedItemIDs, itemID)
		if item.Status != domain.ItemAvailable && !reservedHere {
			return domain.BorrowSession{}, domain.InvalidStateError{
				Entity: domain.EntityItem, ID: itemID, State: string(item.Status),
				Operation: "release", Reason: "item is not available",
			}
		}
		now := tx.Now()
		_, err := tx.CreateTransaction(domain.Transaction{
			ItemID:             itemID,
			Borrower:           sess.Borrower,
			DateRequested:      sess.RequestedDate,
			DateBorrowed:       &now,
			DueDate:            sess.ExpectedReturnDate,
			Status:             domain.TransactionBorrowed,
			ConditionOnRelease: item.Condition,
			Remarks:            fmt.Sprintf("Session: %s | Purpose: %s", sess.SessionCode, sess.Purpose),
			ReferenceID:        sess.SessionCode,
			SessionID:          sess.ID,
			SessionCode:        sess.SessionCode,
		})
		if err != nil {
			return domain.BorrowSession{}, err
		}
		if _, err := applyItemEvent(tx, itemID, EventBorrow, ""); err != nil {
			return domain.BorrowSession{}, err
		}
	}

	updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
		bs.ReleasedItemIDs = append(bs.ReleasedItemIDs, itemID)
		if bs.FullyReleased() {
			now := tx.Now()
			bs.Status = domain.SessionActive
			bs.DateReleased = &now
		}
		return nil
	})
	if err != nil {
		return domain.BorrowSession{}, err
	}
	s.audit(tx, domain.AuditRelease, itemID, "Released item %s for session %s", item.SerialNumber, sess.SessionCode)
	return updated, nil
}

// CancelSession cancels a session that has not become Active. Released items have
// their session transactions cancelled and return to Available, as do items the
// session reserved on approval. Items the session never touched are left alone.
func (s *Service) CancelSession(ctx context.Context, sessionID string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "cancel_session", sessionID, func(tx domain.Tx, sess domain.BorrowSession) (domain.BorrowSession, error) {
		switch sess.Status {
		case domain.SessionPendingScanning, domain.SessionPendingApproval, domain.SessionApproved:
		default:
			return domain.BorrowSession{}, sessionStateError(sess, "cancel")
		}
		rolledBack := make(map[string]bool)
		for _, t := range tx.View().ListTransactions() {
			if t.SessionID != sess.ID || !t.Status.Open() {
				continue
			}
			if _, err := s.cancelTransaction(tx, t); err != nil {
				return domain.BorrowSession{}, err
			}
			rolledBack[t.ItemID] = true
		}
		for _, itemID := range sess.ReservedItemIDs {
			if rolledBack[itemID] {
				continue
			}
			item, ok := tx.View().FindItem(itemID)
			if !ok || item.Status != domain.ItemReserved {
				continue
			}
			if open, held := openTransactionFor(tx.View(), itemID); held && open.SessionID != sess.ID {
				continue
			}
			if _, err := applyItemEvent(tx, itemID, EventRollback, ""); err != nil {
				return domain.BorrowSession{}, err
			}
		}
		updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
			bs.Status = domain.SessionCancelled
			return nil
		})
		if err != nil {
			return domain.BorrowSession{}, err
		}
		s.audit(tx, domain.AuditCancel, "", "Cancelled session %s", sess.SessionCode)
		return updated, nil
	})
}

// DeleteSession removes a session record that reached a terminal state.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) (domain.Result, error) {
	defer s.locks.lock(sessionKey(sessionID))()
	return s.run(ctx, "delete_session", func(tx domain.Tx) error {
		sess, err := findSession(tx.View(), sessionID)
		if err != nil {
			return err
		}
		if !sess.Status.Terminal() {
			return sessionStateError(sess, "delete")
		}
		if err := tx.DeleteSession(sessionID); err != nil {
			return err
		}
		s.audit(tx, domain.AuditDelete, "", "Deleted session record %s", sess.SessionCode)
		return nil
	})
}

// CheckSessionCompletion completes an Active session once every member item has a
// closed session transaction and none remains open.
func (s *Service) CheckSessionCompletion(ctx context.Context, sessionID string) (domain.BorrowSession, domain.Result, error) {
	return s.transitionSession(ctx, "check_session_completion", sessionID, func(tx domain.Tx, _ domain.BorrowSession) (domain.BorrowSession, error) {
		sess, _, err := s.checkSessionCompletion(tx, sessionID)
		return sess, err
	})
}

func (s *Service) checkSessionCompletion(tx domain.Tx, sessionID string) (domain.BorrowSession, bool, error) {
	sess, err := findSession(tx.View(), sessionID)
	if err != nil {
		return domain.BorrowSession{}, false, err
	}
	if sess.Status != domain.SessionActive || !sessionSettled(tx.View(), sess) {
		return sess, false, nil
	}
	now := tx.Now()
	updated, err := tx.UpdateSession(sess.ID, func(bs *domain.BorrowSession) error {
		bs.Status = domain.SessionCompleted
		bs.DateCompleted = &now
		return nil
	})
	if err != nil {
		return domain.BorrowSession{}, false, err
	}
	s.audit(tx, domain.AuditComplete, "", "Completed session %s", sess.SessionCode)
	return updated, true, nil
}

// sessionSettled reports whether each member has a closed session transaction and none is open.
func sessionSettled(v domain.View, sess domain.BorrowSession) bool {
	closed := make(map[string]bool, len(sess.ItemIDs))
	for _, t := range v.ListTransactions() {
		if t.SessionID != sess.ID {
			continue
		}
		if t.Status.Open() {
			return false
		}
		closed[t.ItemID] = true
	}
	for _, itemID := range sess.ItemIDs {
		if !closed[itemID] {
			return false
		}
	}
	return len(sess.ItemIDs) > 0
}

// ReturnSessionItem completes the open session transaction of a member item.
func (s *Service) ReturnSessionItem(ctx context.Context, sessionID, itemID string, condition domain.ItemCondition, remarks string) (domain.Transaction, domain.Result, error) {
	defer s.locks.lock(sessionKey(sessionID))()
	var returned domain.Transaction
	res, err := s.run(ctx, "return_session_item", func(tx domain.Tx) error {
		sess, err := findSession(tx.View(), sessionID)
		if err != nil {
			return err
		}
		var open *domain.Transaction
		for _, t := range tx.View().ListTransactions() {
			if t.SessionID == sess.ID && t.ItemID == itemID && t.Status.Open() {
				open = &t
				break
			}
		}
		if open == nil {
			return domain.InvalidStateError{
				Entity: domain.EntitySession, ID: sess.ID, State: string(sess.Status),
				Operation: "return item in", Reason: fmt.Sprintf("item %s has no open session transaction", itemID),
			}
		}
		returned, err = s.completeTransaction(tx, open.ID, condition, remarks)
		return err
	})
	return returned, res, err
}

// transitionSession runs fn under the session lock inside one transaction.
func (s *Service) transitionSession(ctx context.Context, op, sessionID string, fn func(domain.Tx, domain.BorrowSession) (domain.BorrowSession, error)) (domain.BorrowSession, domain.Result, error) {
	defer s.locks.lock(sessionKey(sessionID))()
	var out domain.BorrowSession
	res, err := s.run(ctx, op, func(tx domain.Tx) error {
		sess, err := findSession(tx.View(), sessionID)
		if err != nil {
			return err
		}
		out, err = fn(tx, sess)
		return err
	})
	return out, res, err
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.BorrowSession, error) {
	var out domain.BorrowSession
	err := s.view(ctx, "get_session", func(v domain.View) error {
		var err error
		out, err = findSession(v, sessionID)
		return err
	})
	return out, err
}

// GetSessionByCode returns the session holding code.
func (s *Service) GetSessionByCode(ctx context.Context, code string) (domain.BorrowSession, error) {
	var out domain.BorrowSession
	err := s.view(ctx, "get_session_by_code", func(v domain.View) error {
		sess, ok := v.FindSessionByCode(strings.TrimSpace(code))
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySession, ID: code}
		}
		out = sess
		return nil
	})
	return out, err
}

// ListSessions returns sessions in creation order, optionally restricted to statuses.
func (s *Service) ListSessions(ctx context.Context, statuses ...domain.SessionStatus) ([]domain.BorrowSession, error) {
	var out []domain.BorrowSession
	err := s.view(ctx, "list_sessions", func(v domain.View) error {
		for _, sess := range v.ListSessions() {
			if len(statuses) == 0 || slices.Contains(statuses, sess.Status) {
				out = append(out, sess)
			}
		}
		return nil
	})
	return out, err
}

// OverdueSessions lists Active sessions whose expected return date has passed.
func (s *Service) OverdueSessions(ctx context.Context) ([]domain.BorrowSession, error) {
	now := s.now()
	var out []domain.BorrowSession
	err := s.view(ctx, "overdue_sessions", func(v domain.View) error {
		for _, sess := range v.ListSessions() {
			if sess.Status == domain.SessionActive && sess.ExpectedReturnDate.Before(now) {
				out = append(out, sess)
			}
		}
		return nil
	})
	return out, err
}
