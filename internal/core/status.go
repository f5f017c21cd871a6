package core

import (
	"fmt"

	"equiploan/pkg/domain"
)

// ItemEvent is a custody or condition event that moves an item's status.
type ItemEvent string

// Item events understood by the status engine.
const (
	EventReserve             ItemEvent = "reserve"
	EventBorrow              ItemEvent = "borrow"
	EventReturn              ItemEvent = "return"
	EventDamageDetected      ItemEvent = "damage-detected"
	EventMaintenanceOpened   ItemEvent = "maintenance-opened"
	EventMaintenanceResolved ItemEvent = "maintenance-resolved"
	EventArchive             ItemEvent = "archive"
	EventRollback            ItemEvent = "rollback"
)

// nextItemState computes the status and condition an item holds after event.
// condition is only consulted by return and maintenance-resolved; empty keeps the current one.
func nextItemState(item domain.Item, event ItemEvent, condition domain.ItemCondition) (domain.ItemStatus, domain.ItemCondition, error) {
	status, cond := item.Status, item.Condition
	if condition != "" && !condition.Valid() {
		return status, cond, domain.ValidationError{Field: "condition", Message: fmt.Sprintf("unknown condition %q", condition)}
	}
	switch event {
	case EventReserve:
		status = domain.ItemReserved
	case EventBorrow:
		status = domain.ItemBorrowed
	case EventReturn, EventMaintenanceResolved:
		status = domain.ItemAvailable
		if condition != "" {
			cond = condition
		}
	case EventDamageDetected:
		cond = domain.ConditionDamaged
	case EventMaintenanceOpened:
		status = domain.ItemMaintenance
	case EventArchive:
		status = domain.ItemArchived
	case EventRollback:
		status = domain.ItemAvailable
	default:
		return status, cond, fmt.Errorf("unknown item event %q", event)
	}
	return status, cond, nil
}

// applyItemEvent is the single writer of Item.Status outside administrative edits.
// The caller records the audit entry.
func applyItemEvent(tx domain.Tx, itemID string, event ItemEvent, condition domain.ItemCondition) (domain.Item, error) {
	item, err := findItem(tx.View(), itemID)
	if err != nil {
		return domain.Item{}, err
	}
	status, cond, err := nextItemState(item, event, condition)
	if err != nil {
		return domain.Item{}, err
	}
	return tx.UpdateItem(itemID, func(i *domain.Item) error {
		i.Status = status
		i.Condition = cond
		return nil
	})
}
