package core

import (
	"context"
	"fmt"

	"keyledger/pkg/domain"
)

// NewAllocationStatusRule returns the rule coupling key status to allocations:
// a key is allocated exactly when one allocation references it.
func NewAllocationStatusRule() domain.Rule {
	return allocationStatusRule{}
}

type allocationStatusRule struct{}

func (allocationStatusRule) Name() string { return "allocation_status" }

func (allocationStatusRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	counts := make(map[string]int)
	for _, a := range view.ListAllocations() {
		counts[a.ProductKeyID]++
	}

	res := domain.Result{}
	for _, key := range view.ListProductKeys() {
		n := counts[key.ID]
		var msg string
		switch {
		case n > 1:
			msg = fmt.Sprintf("key %s has %d allocations", key.Key, n)
		case n == 1 && key.Status != domain.KeyStatusAllocated:
			msg = fmt.Sprintf("key %s is allocated but marked %s", key.Key, key.Status)
		case n == 0 && key.Status == domain.KeyStatusAllocated:
			msg = fmt.Sprintf("key %s is marked allocated without an allocation", key.Key)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "allocation_status",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityProductKey,
			EntityID: key.ID,
		})
	}
	for _, a := range view.ListAllocations() {
		if _, ok := view.FindCustomer(a.CustomerID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "allocation_status",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("allocation %s references unknown customer %s", a.ID, a.CustomerID),
				Entity:   domain.EntityAllocation,
				EntityID: a.ID,
			})
		}
	}
	return res, nil
}
