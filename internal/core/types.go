package core

import "keyledger/pkg/domain"

type (
	EntityType         = domain.EntityType
	KeyStatus          = domain.KeyStatus
	Severity           = domain.Severity
	ProductKey         = domain.ProductKey
	Category           = domain.Category
	Customer           = domain.Customer
	Allocation         = domain.Allocation
	InventoryItem      = domain.InventoryItem
	Purchase           = domain.Purchase
	Usage              = domain.Usage
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
	InvariantViolation = domain.InvariantViolation
	PersistenceError   = domain.PersistenceError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityProductKey    = domain.EntityProductKey
	EntityCategory      = domain.EntityCategory
	EntityCustomer      = domain.EntityCustomer
	EntityAllocation    = domain.EntityAllocation
	EntityInventoryItem = domain.EntityInventoryItem
	EntityPurchase      = domain.EntityPurchase
	EntityUsage         = domain.EntityUsage
)

const (
	KeyStatusAvailable = domain.KeyStatusAvailable
	KeyStatusAllocated = domain.KeyStatusAllocated
	KeyStatusExpired   = domain.KeyStatusExpired
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// UncategorizedCategoryID is the sentinel fallback category.
const UncategorizedCategoryID = domain.UncategorizedCategoryID

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
