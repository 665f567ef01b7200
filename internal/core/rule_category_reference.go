package core

import (
	"context"
	"fmt"

	"keyledger/pkg/domain"
)

// NewCategoryReferenceRule returns the rule rejecting keys or inventory items
// that point at an unknown category.
func NewCategoryReferenceRule() domain.Rule {
	return categoryReferenceRule{}
}

type categoryReferenceRule struct{}

func (categoryReferenceRule) Name() string { return "category_reference" }

func (categoryReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	known := func(id string) bool {
		_, ok := view.FindCategory(id)
		return ok
	}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		switch after := change.After.(type) {
		case domain.ProductKey:
			if current, ok := view.FindProductKey(after.ID); ok && !known(current.CategoryID) {
				res.Violations = append(res.Violations, categoryViolation(domain.EntityProductKey, current.ID, current.CategoryID))
			}
		case domain.InventoryItem:
			if current, ok := view.FindInventoryItem(after.ID); ok && !known(current.CategoryID) {
				res.Violations = append(res.Violations, categoryViolation(domain.EntityInventoryItem, current.ID, current.CategoryID))
			}
		}
	}
	return res, nil
}

func categoryViolation(entity domain.EntityType, id, categoryID string) domain.Violation {
	return domain.Violation{
		Rule:     "category_reference",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("category %s does not exist", categoryID),
		Entity:   entity,
		EntityID: id,
	}
}
