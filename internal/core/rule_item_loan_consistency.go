package core

import (
	"context"
	"fmt"

	"equiploan/pkg/domain"
)

// NewItemLoanConsistencyRule blocks commits that leave an item Available while an
// open transaction still references it.
func NewItemLoanConsistencyRule() domain.Rule {
	return itemLoanConsistencyRule{}
}

type itemLoanConsistencyRule struct{}

func (itemLoanConsistencyRule) Name() string { return "item_loan_consistency" }

func (itemLoanConsistencyRule) Evaluate(_ context.Context, view domain.View, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityItem:
			if item, ok := changeValue[domain.Item](change.After); ok {
				touched[item.ID] = struct{}{}
			}
		case domain.EntityTransaction:
			if t, ok := changeValue[domain.Transaction](change.After); ok {
				touched[t.ItemID] = struct{}{}
			}
		}
	}

	res := domain.Result{}
	for itemID := range touched {
		item, ok := view.FindItem(itemID)
		if !ok || item.Status != domain.ItemAvailable {
			continue
		}
		if open, held := openTransactionFor(view, itemID); held {
			res.Violations = append(res.Violations, blocking("item_loan_consistency", domain.EntityItem, itemID,
				fmt.Sprintf("item %s is Available while transaction %s is %s", itemID, open.ID, open.Status)))
		}
	}
	return res, nil
}
