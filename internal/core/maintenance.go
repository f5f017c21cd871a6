package core

import (
	"context"
	"strings"

	"equiploan/pkg/domain"
)

// ReportIssue opens an Ongoing maintenance log for a Damaged item and moves it into Maintenance.
func (s *Service) ReportIssue(ctx context.Context, itemID, description string) (domain.MaintenanceLog, domain.Result, error) {
	if strings.TrimSpace(description) == "" {
		return domain.MaintenanceLog{}, domain.Result{}, domain.ValidationError{Field: "issue_description", Message: "required"}
	}
	defer s.locks.lock(itemKey(itemID))()
	var created domain.MaintenanceLog
	res, err := s.run(ctx, "report_issue", func(tx domain.Tx) error {
		item, err := findItem(tx.View(), itemID)
		if err != nil {
			return err
		}
		if err := maintainable(tx.View(), item); err != nil {
			return err
		}
		created, err = tx.CreateMaintenanceLog(domain.MaintenanceLog{
			ItemID:           itemID,
			IssueDescription: description,
			ReportedDate:     tx.Now(),
			Status:           domain.MaintenanceOngoing,
		})
		if err != nil {
			return err
		}
		if _, err := applyItemEvent(tx, itemID, EventMaintenanceOpened, ""); err != nil {
			return err
		}
		s.audit(tx, domain.AuditMaintenance, itemID, "Sent %s (%s) to maintenance: %s", item.Name, item.SerialNumber, description)
		return nil
	})
	return created, res, err
}

func maintainable(v domain.View, item domain.Item) error {
	reject := func(reason string) error {
		return domain.InvalidStateError{Entity: domain.EntityItem, ID: item.ID, State: string(item.Status), Operation: "report issue for", Reason: reason}
	}
	switch {
	case item.Status == domain.ItemMaintenance:
		return reject("item is already in maintenance")
	case item.Status == domain.ItemArchived:
		return reject("item is archived")
	case item.Condition != domain.ConditionDamaged:
		return reject("item condition is " + string(item.Condition))
	}
	if open, ok := openTransactionFor(v, item.ID); ok {
		return reject("open transaction " + open.ID + " holds the item")
	}
	return nil
}

// ResolveMaintenance completes an Ongoing log and returns the item to Available in finalCondition.
func (s *Service) ResolveMaintenance(ctx context.Context, logID string, finalCondition domain.ItemCondition) (domain.MaintenanceLog, domain.Result, error) {
	if !finalCondition.Valid() {
		return domain.MaintenanceLog{}, domain.Result{}, domain.ValidationError{Field: "final_condition", Message: "must be Good, Damaged or Under Repair"}
	}
	var resolved domain.MaintenanceLog
	res, err := s.run(ctx, "resolve_maintenance", func(tx domain.Tx) error {
		current, err := findMaintenanceLog(tx.View(), logID)
		if err != nil {
			return err
		}
		if current.Status != domain.MaintenanceOngoing {
			return domain.InvalidStateError{Entity: domain.EntityMaintenance, ID: logID, State: string(current.Status), Operation: "resolve"}
		}
		now := tx.Now()
		resolved, err = tx.UpdateMaintenanceLog(logID, func(m *domain.MaintenanceLog) error {
			m.Status = domain.MaintenanceCompleted
			m.ResolvedDate = &now
			cond := finalCondition
			m.FinalCondition = &cond
			return nil
		})
		if err != nil {
			return err
		}
		item, err := applyItemEvent(tx, current.ItemID, EventMaintenanceResolved, finalCondition)
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditResolve, item.ID, "Resolved maintenance for %s, condition %s", item.Name, finalCondition)
		return nil
	})
	return resolved, res, err
}

// MarkDamaged flags an item as Damaged without changing its custody status.
func (s *Service) MarkDamaged(ctx context.Context, itemID, note string) (domain.Item, domain.Result, error) {
	defer s.locks.lock(itemKey(itemID))()
	var updated domain.Item
	res, err := s.run(ctx, "mark_damaged", func(tx domain.Tx) error {
		var err error
		updated, err = applyItemEvent(tx, itemID, EventDamageDetected, "")
		if err != nil {
			return err
		}
		if note == "" {
			s.audit(tx, domain.AuditDamage, itemID, "Marked %s (%s) as damaged", updated.Name, updated.SerialNumber)
		} else {
			s.audit(tx, domain.AuditDamage, itemID, "Marked %s (%s) as damaged: %s", updated.Name, updated.SerialNumber, note)
		}
		return nil
	})
	return updated, res, err
}

// PendingDamage lists Damaged items that are neither in maintenance nor archived.
func (s *Service) PendingDamage(ctx context.Context) ([]domain.Item, error) {
	var out []domain.Item
	err := s.view(ctx, "pending_damage", func(v domain.View) error {
		out = pendingDamage(v)
		return nil
	})
	return out, err
}

func pendingDamage(v domain.View) []domain.Item {
	var out []domain.Item
	for _, item := range v.ListItems() {
		if item.Condition == domain.ConditionDamaged && item.Status != domain.ItemMaintenance && item.Status != domain.ItemArchived {
			out = append(out, item)
		}
	}
	return out
}

// ListMaintenanceLogs returns maintenance logs in insertion order, optionally for one item.
func (s *Service) ListMaintenanceLogs(ctx context.Context, itemID string) ([]domain.MaintenanceLog, error) {
	var out []domain.MaintenanceLog
	err := s.view(ctx, "list_maintenance_logs", func(v domain.View) error {
		for _, m := range v.ListMaintenanceLogs() {
			if itemID == "" || m.ItemID == itemID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}
