// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by keyledger.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence slots.
const (
	// EntityProductKey identifies a license/product key record.
	EntityProductKey EntityType = "product_key"
	// EntityCategory identifies a category record.
	EntityCategory EntityType = "category"
	// EntityCustomer identifies a customer record.
	EntityCustomer EntityType = "customer"
	// EntityAllocation identifies the assignment of a key to a customer.
	EntityAllocation EntityType = "allocation"
	// EntityInventoryItem identifies a stocked inventory item.
	EntityInventoryItem EntityType = "inventory_item"
	EntityPurchase      EntityType = "purchase"
	EntityUsage         EntityType = "usage"
)

// UncategorizedCategoryID is the sentinel category every orphaned key or
// inventory item falls back to. It can never be deleted or renamed.
const UncategorizedCategoryID = "uncategorized"

// UncategorizedCategory returns the sentinel category record.
func UncategorizedCategory() Category {
	return Category{
		ID:          UncategorizedCategoryID,
		Name:        "Uncategorized",
		Description: StringPtr("Products without a specific category"),
		Color:       "#6B7280",
	}
}

// KeyStatus enumerates the lifecycle states of a product key.
type KeyStatus string

// Canonical product key statuses.
const (
	KeyStatusAvailable KeyStatus = "available"
	KeyStatusAllocated KeyStatus = "allocated"
	KeyStatusExpired   KeyStatus = "expired"
)

// Valid reports whether the status is one of the canonical values.
func (s KeyStatus) Valid() bool {
	switch s {
	case KeyStatusAvailable, KeyStatusAllocated, KeyStatusExpired:
		return true
	default:
		return false
	}
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// ProductKey is a license key tracked by the dashboard.
type ProductKey struct {
	ID            string     `json:"id"`
	Key           string     `json:"key"`
	CategoryID    string     `json:"categoryId"`
	SubcategoryID *string    `json:"subcategoryId,omitempty"`
	Status        KeyStatus  `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Category groups product keys and inventory items for display.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Color       string  `json:"color"`
}

// Customer receives allocated product keys.
type Customer struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone,omitempty"`
	Company *string `json:"company,omitempty"`
}

// Allocation records a product key assigned to a customer.
type Allocation struct {
	ID           string    `json:"id"`
	ProductKeyID string    `json:"productKeyId"`
	CustomerID   string    `json:"customerId"`
	AllocatedAt  time.Time `json:"allocatedAt"`
	Notes        *string   `json:"notes,omitempty"`
}

// InventoryItem is a stocked item whose level is adjusted by purchases and usages.
type InventoryItem struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Description   *string         `json:"description,omitempty"`
	CategoryID    string          `json:"categoryId"`
	SubcategoryID *string         `json:"subcategoryId,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockLevel    int             `json:"stockLevel"`
	ReorderPoint  int             `json:"reorderPoint"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NeedsReorder reports whether the stock level has reached the reorder point.
func (i InventoryItem) NeedsReorder() bool {
	return i.StockLevel <= i.ReorderPoint
}

// Purchase is an append-only stock increase for an inventory item.
type Purchase struct {
	ID              string          `json:"id"`
	InventoryItemID string          `json:"inventoryItemId"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Supplier        string          `json:"supplier"`
	PurchaseDate    time.Time       `json:"purchaseDate"`
	Notes           *string         `json:"notes,omitempty"`
}

// Total returns quantity * unit price.
func (p Purchase) Total() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// Usage is an append-only stock decrease for an inventory item.
type Usage struct {
	ID              string    `json:"id"`
	InventoryItemID string    `json:"inventoryItemId"`
	Quantity        int       `json:"quantity"`
	UsageDate       time.Time `json:"usageDate"`
	Notes           *string   `json:"notes,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// OptionalString normalizes absent, empty and whitespace-only values to nil.
func OptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// StringPtr returns a pointer to v, or nil when v is blank.
func StringPtr(v string) *string {
	return OptionalString(&v)
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// Normalize trims optional fields so absent and empty share one representation.
func (k ProductKey) Normalize() ProductKey {
	k.Key = strings.TrimSpace(k.Key)
	k.CategoryID = strings.TrimSpace(k.CategoryID)
	k.SubcategoryID = OptionalString(k.SubcategoryID)
	if k.ExpiresAt != nil && k.ExpiresAt.IsZero() {
		k.ExpiresAt = nil
	}
	return k
}

// Normalize trims optional fields.
func (c Category) Normalize() Category {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = OptionalString(c.Description)
	c.Color = strings.TrimSpace(c.Color)
	return c
}

// Normalize trims optional fields.
func (c Customer) Normalize() Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = OptionalString(c.Phone)
	c.Company = OptionalString(c.Company)
	return c
}

// Normalize trims optional fields.
func (a Allocation) Normalize() Allocation {
	a.Notes = OptionalString(a.Notes)
	return a
}

// Normalize trims optional fields.
func (i InventoryItem) Normalize() InventoryItem {
	i.Name = strings.TrimSpace(i.Name)
	i.SKU = strings.TrimSpace(i.SKU)
	i.CategoryID = strings.TrimSpace(i.CategoryID)
	i.Description = OptionalString(i.Description)
	i.SubcategoryID = OptionalString(i.SubcategoryID)
	i.Price = CanonicalDecimal(i.Price)
	return i
}

// CanonicalDecimal returns d in the form it takes after a JSON round trip,
// so 10.50 is held as 10.5 both in memory and on reload.
func CanonicalDecimal(d decimal.Decimal) decimal.Decimal {
	canonical, err := decimal.NewFromString(d.String())
	if err != nil {
		return d
	}
	return canonical
}
