package core

import (
	"context"
	"fmt"

	"equiploan/pkg/domain"
)

// NewOpenTransactionPerItemRule blocks a second open transaction on the same item.
func NewOpenTransactionPerItemRule() domain.Rule {
	return openTransactionPerItemRule{}
}

type openTransactionPerItemRule struct{}

func (openTransactionPerItemRule) Name() string { return "open_transaction_per_item" }

func (openTransactionPerItemRule) Evaluate(_ context.Context, view domain.View, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityTransaction {
			continue
		}
		if t, ok := changeValue[domain.Transaction](change.After); ok && t.Status.Open() {
			touched[t.ItemID] = struct{}{}
		}
	}
	if len(touched) == 0 {
		return domain.Result{}, nil
	}

	open := make(map[string][]string)
	for _, t := range view.ListTransactions() {
		if _, ok := touched[t.ItemID]; ok && t.Status.Open() {
			open[t.ItemID] = append(open[t.ItemID], t.ID)
		}
	}

	res := domain.Result{}
	for itemID, ids := range open {
		if len(ids) > 1 {
			res.Violations = append(res.Violations, blocking("open_transaction_per_item", domain.EntityItem, itemID,
				fmt.Sprintf("item %s has %d open transactions: %v", itemID, len(ids), ids)))
		}
	}
	return res, nil
}
