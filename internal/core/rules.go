package core

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSentinelCategoryRule())
	engine.Register(NewCategoryReferenceRule())
	engine.Register(NewAllocationStatusRule())
	return engine
}
