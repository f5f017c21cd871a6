package core

import (
	"context"
	"fmt"

	"equiploan/pkg/domain"
)

// NewSessionMembershipRule guards the item lists of changed sessions.
func NewSessionMembershipRule() domain.Rule {
	return sessionMembershipRule{}
}

type sessionMembershipRule struct{}

func (sessionMembershipRule) Name() string { return "session_membership" }

func (sessionMembershipRule) Evaluate(_ context.Context, _ domain.View, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntitySession {
			continue
		}
		sess, ok := changeValue[domain.BorrowSession](change.After)
		if !ok {
			continue
		}
		for _, msg := range membershipProblems(sess) {
			res.Violations = append(res.Violations, blocking("session_membership", domain.EntitySession, sess.ID,
				fmt.Sprintf("session %s: %s", sess.SessionCode, msg)))
		}
	}
	return res, nil
}

func membershipProblems(sess domain.BorrowSession) []string {
	var problems []string
	seen := make(map[string]struct{}, len(sess.ItemIDs))
	for _, id := range sess.ItemIDs {
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("item %s listed twice", id))
		}
		seen[id] = struct{}{}
	}
	for _, id := range sess.ReleasedItemIDs {
		if _, ok := seen[id]; !ok {
			problems = append(problems, fmt.Sprintf("released item %s is not a member", id))
		}
	}
	for _, id := range sess.ReservedItemIDs {
		if _, ok := seen[id]; !ok {
			problems = append(problems, fmt.Sprintf("reserved item %s is not a member", id))
		}
	}
	if sess.Status == domain.SessionActive && !sess.FullyReleased() {
		problems = append(problems, "Active before every item was released")
	}
	return problems
}
