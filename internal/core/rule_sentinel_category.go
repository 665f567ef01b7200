package core

import (
	"context"

	"keyledger/pkg/domain"
)

// NewSentinelCategoryRule returns the rule guaranteeing the uncategorized
// category is always present.
func NewSentinelCategoryRule() domain.Rule {
	return sentinelCategoryRule{}
}

type sentinelCategoryRule struct{}

func (sentinelCategoryRule) Name() string { return "sentinel_category" }

func (sentinelCategoryRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	if _, ok := view.FindCategory(domain.UncategorizedCategoryID); ok {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "sentinel_category",
		Severity: domain.SeverityBlock,
		Message:  "the uncategorized category must exist",
		Entity:   domain.EntityCategory,
		EntityID: domain.UncategorizedCategoryID,
	}}}, nil
}
