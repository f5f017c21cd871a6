package core

import (
	"context"
	"fmt"

	"equiploan/pkg/domain"
)

// LifecycleTransitionRule blocks unknown states and exits from terminal states.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	label     string
	terminal  map[string]struct{}
	valid     func(state string) bool
	extractor func(payload any) (id string, state string, ok bool)
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntitySession: {
		label: "session",
		terminal: toSet(
			string(domain.SessionCompleted),
			string(domain.SessionCancelled),
			string(domain.SessionRejected),
		),
		valid: func(state string) bool { return domain.SessionStatus(state).Valid() },
		extractor: func(payload any) (string, string, bool) {
			sess, ok := changeValue[domain.BorrowSession](payload)
			return sess.ID, string(sess.Status), ok
		},
	},
	domain.EntityTransaction: {
		label:    "transaction",
		terminal: toSet(string(domain.TransactionReturned), string(domain.TransactionCancelled)),
		valid:    func(state string) bool { return domain.TransactionStatus(state).Valid() },
		extractor: func(payload any) (string, string, bool) {
			t, ok := changeValue[domain.Transaction](payload)
			return t.ID, string(t.Status), ok
		},
	},
	domain.EntityMaintenance: {
		label:    "maintenance log",
		terminal: toSet(string(domain.MaintenanceCompleted)),
		valid:    func(state string) bool { return domain.MaintenanceStatus(state).Valid() },
		extractor: func(payload any) (string, string, bool) {
			m, ok := changeValue[domain.MaintenanceLog](payload)
			return m.ID, string(m.Status), ok
		},
	},
	domain.EntityItem: {
		label:    "item",
		terminal: toSet(),
		valid:    func(state string) bool { return domain.ItemStatus(state).Valid() },
		extractor: func(payload any) (string, string, bool) {
			item, ok := changeValue[domain.Item](payload)
			return item.ID, string(item.Status), ok
		},
	},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.View, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if !machine.valid(afterState) {
			res.Violations = append(res.Violations, blocking("lifecycle_transition", change.Entity, afterID,
				fmt.Sprintf("%s %s is set to invalid state %q", machine.label, afterID, afterState)))
			continue
		}
		if item, isItem := changeValue[domain.Item](change.After); isItem && !item.Condition.Valid() {
			res.Violations = append(res.Violations, blocking("lifecycle_transition", change.Entity, afterID,
				fmt.Sprintf("item %s has invalid condition %q", afterID, item.Condition)))
			continue
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if _, terminal := machine.terminal[beforeState]; !terminal {
			continue
		}
		if afterState != beforeState {
			res.Violations = append(res.Violations, blocking("lifecycle_transition", change.Entity, afterID,
				fmt.Sprintf("cannot move %s %s from terminal state %s to %s", machine.label, beforeID, beforeState, afterState)))
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
