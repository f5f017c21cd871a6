package core

import (
	"context"
	"time"

	"equiploan/pkg/domain"
)

// Dashboard summarises inventory and workflow state at a point in time.
type Dashboard struct {
	GeneratedAt         time.Time                 `json:"generated_at"`
	TotalItems          int                       `json:"total_items"`
	ItemsByStatus       map[domain.ItemStatus]int `json:"items_by_status"`
	OverdueTransactions int                       `json:"overdue_transactions"`
	PendingApprovals    int                       `json:"pending_approvals"`
	ActiveSessions      int                       `json:"active_sessions"`
	OverdueSessions     int                       `json:"overdue_sessions"`
	PendingDamage       int                       `json:"pending_damage"`
	OngoingMaintenance  int                       `json:"ongoing_maintenance"`
}

// Dashboard computes the headline counters shown on the admin overview.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.now()
	out := Dashboard{GeneratedAt: now, ItemsByStatus: make(map[domain.ItemStatus]int)}
	err := s.view(ctx, "dashboard", func(v domain.View) error {
		items := v.ListItems()
		out.TotalItems = len(items)
		for _, item := range items {
			out.ItemsByStatus[item.Status]++
		}
		for _, t := range v.ListTransactions() {
			if IsOverdue(t, now) {
				out.OverdueTransactions++
			}
		}
		for _, sess := range v.ListSessions() {
			switch sess.Status {
			case domain.SessionPendingApproval:
				out.PendingApprovals++
			case domain.SessionActive:
				out.ActiveSessions++
				if sess.ExpectedReturnDate.Before(now) {
					out.OverdueSessions++
				}
			}
		}
		out.PendingDamage = len(pendingDamage(v))
		for _, m := range v.ListMaintenanceLogs() {
			if m.Status == domain.MaintenanceOngoing {
				out.OngoingMaintenance++
			}
		}
		return nil
	})
	return out, err
}

// IsOverdue reports whether t is Overdue or Borrowed past its due date at now.
func IsOverdue(t domain.Transaction, now time.Time) bool {
	switch t.Status {
	case domain.TransactionOverdue:
		return true
	case domain.TransactionBorrowed:
		return t.DueDate.Before(now)
	}
	return false
}
