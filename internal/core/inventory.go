package core

import (
	"context"
	"strings"

	"equiploan/pkg/domain"
)

// ResolveScan finds the item whose serial number or QR value equals the trimmed
// code. A live item wins over an archived one that carried the same code.
func (s *Service) ResolveScan(ctx context.Context, code string) (domain.Item, error) {
	var item domain.Item
	err := s.view(ctx, "resolve_scan", func(v domain.View) error {
		var err error
		item, err = resolveScan(v, code)
		return err
	})
	return item, err
}

func resolveScan(v domain.View, code string) (domain.Item, error) {
	code = strings.TrimSpace(code)
	if code != "" {
		var archived *domain.Item
		for _, item := range v.ListItems() {
			if item.SerialNumber != code && item.QRCodeValue != code {
				continue
			}
			if item.Status != domain.ItemArchived {
				return item, nil
			}
			if archived == nil {
				archived = &item
			}
		}
		if archived != nil {
			return *archived, nil
		}
	}
	return domain.Item{}, domain.NotFoundError{Entity: domain.EntityItem, ID: code}
}

// CreateItem registers a new item. Status defaults to Available, condition to Good
// and the QR value to the serial number.
func (s *Service) CreateItem(ctx context.Context, item domain.Item) (domain.Item, domain.Result, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.SerialNumber = strings.TrimSpace(item.SerialNumber)
	if item.Name == "" {
		return domain.Item{}, domain.Result{}, domain.ValidationError{Field: "name", Message: "required"}
	}
	if item.SerialNumber == "" {
		return domain.Item{}, domain.Result{}, domain.ValidationError{Field: "serial_number", Message: "required"}
	}
	if item.Status == "" {
		item.Status = domain.ItemAvailable
	}
	if item.Condition == "" {
		item.Condition = domain.ConditionGood
	}
	if strings.TrimSpace(item.QRCodeValue) == "" {
		item.QRCodeValue = item.SerialNumber
	}
	var created domain.Item
	res, err := s.run(ctx, "create_item", func(tx domain.Tx) error {
		var err error
		created, err = tx.CreateItem(item)
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditCreate, created.ID, "Added item %s (%s)", created.Name, created.SerialNumber)
		return nil
	})
	return created, res, err
}

// UpdateItem applies an administrative edit. It is the only path besides the
// status engine that may set Item.Status; rules still guard loan consistency.
func (s *Service) UpdateItem(ctx context.Context, id string, mutator func(*domain.Item) error) (domain.Item, domain.Result, error) {
	defer s.locks.lock(itemKey(id))()
	var updated domain.Item
	res, err := s.run(ctx, "update_item", func(tx domain.Tx) error {
		var err error
		updated, err = tx.UpdateItem(id, mutator)
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditUpdate, id, "Updated item %s (%s)", updated.Name, updated.SerialNumber)
		return nil
	})
	return updated, res, err
}

// DeleteItem archives an item that carries loan or maintenance history and
// hard-deletes it otherwise. The returned flag reports whether it was archived.
// Items listed by a non-terminal session are refused on both paths.
func (s *Service) DeleteItem(ctx context.Context, id string) (bool, domain.Result, error) {
	defer s.locks.lock(itemKey(id))()
	var archived bool
	res, err := s.run(ctx, "delete_item", func(tx domain.Tx) error {
		archived = false
		v := tx.View()
		item, err := findItem(v, id)
		if err != nil {
			return err
		}
		if n := liveSessionsHolding(v, id); n > 0 {
			return domain.ReferenceError{Entity: domain.EntityItem, ID: id, ReferencedBy: domain.EntitySession, Count: n}
		}
		if !hasHistory(v, id) {
			if err := tx.DeleteItem(id); err != nil {
				return err
			}
			s.audit(tx, domain.AuditDelete, "", "Deleted item %s (%s)", item.Name, item.SerialNumber)
			return nil
		}
		if open, ok := openTransactionFor(v, id); ok {
			return domain.InvalidStateError{Entity: domain.EntityItem, ID: id, State: string(item.Status), Operation: "archive", Reason: "open transaction " + open.ID + " holds the item"}
		}
		if _, err := applyItemEvent(tx, id, EventArchive, ""); err != nil {
			return err
		}
		archived = true
		s.audit(tx, domain.AuditArchive, id, "Archived item %s (%s)", item.Name, item.SerialNumber)
		return nil
	})
	return archived, res, err
}

func liveSessionsHolding(v domain.View, itemID string) int {
	n := 0
	for _, sess := range v.ListSessions() {
		if !sess.Status.Terminal() && sess.HasItem(itemID) {
			n++
		}
	}
	return n
}

func hasHistory(v domain.View, itemID string) bool {
	for _, t := range v.ListTransactions() {
		if t.ItemID == itemID {
			return true
		}
	}
	for _, m := range v.ListMaintenanceLogs() {
		if m.ItemID == itemID {
			return true
		}
	}
	return false
}

// GetItem returns an item by id.
func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	var out domain.Item
	err := s.view(ctx, "get_item", func(v domain.View) error {
		var err error
		out, err = findItem(v, id)
		return err
	})
	return out, err
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	CategoryID string
	Status     domain.ItemStatus
	Query      string
}

func (f ItemFilter) match(item domain.Item) bool {
	if f.CategoryID != "" && item.CategoryID != f.CategoryID {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(item.Name), q) ||
			strings.Contains(strings.ToLower(item.SerialNumber), q) ||
			strings.Contains(strings.ToLower(item.Location), q)
	}
	return true
}

// ListItems returns items in insertion order.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]domain.Item, error) {
	var out []domain.Item
	err := s.view(ctx, "list_items", func(v domain.View) error {
		for _, item := range v.ListItems() {
			if filter.match(item) {
				out = append(out, item)
			}
		}
		return nil
	})
	return out, err
}

// CreateCategory persists a new category.
func (s *Service) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, domain.Result, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return domain.Category{}, domain.Result{}, domain.ValidationError{Field: "name", Message: "required"}
	}
	var created domain.Category
	res, err := s.run(ctx, "create_category", func(tx domain.Tx) error {
		var err error
		created, err = tx.CreateCategory(category)
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditCreate, "", "Added category %s", created.Name)
		return nil
	})
	return created, res, err
}

// UpdateCategory mutates a category.
func (s *Service) UpdateCategory(ctx context.Context, id string, mutator func(*domain.Category) error) (domain.Category, domain.Result, error) {
	var updated domain.Category
	res, err := s.run(ctx, "update_category", func(tx domain.Tx) error {
		var err error
		updated, err = tx.UpdateCategory(id, mutator)
		if err != nil {
			return err
		}
		s.audit(tx, domain.AuditUpdate, "", "Updated category %s", updated.Name)
		return nil
	})
	return updated, res, err
}

// DeleteCategory removes a category no item references.
func (s *Service) DeleteCategory(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, "delete_category", func(tx domain.Tx) error {
		category, ok := tx.View().FindCategory(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityCategory, ID: id}
		}
		if err := tx.DeleteCategory(id); err != nil {
			return err
		}
		s.audit(tx, domain.AuditDelete, "", "Deleted category %s", category.Name)
		return nil
	})
}

// ListCategories returns categories in insertion order.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := s.view(ctx, "list_categories", func(v domain.View) error {
		out = v.ListCategories()
		return nil
	})
	return out, err
}

// ListAuditLogs returns up to limit audit entries, newest first. limit <= 0 returns all.
func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := s.view(ctx, "list_audit_logs", func(v domain.View) error {
		out = v.ListAuditLogs()
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}
