package core

import "equiploan/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(NewOpenTransactionPerItemRule())
	engine.Register(NewItemLoanConsistencyRule())
	engine.Register(NewSessionMembershipRule())
	engine.Register(NewScanCodeUniquenessRule())
	return engine
}

func blocking(rule string, entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
