package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Delete operations apply the referential
// cascades; they never leave dangling references behind.
type Transaction interface {
	Snapshot() TransactionView
	CreateProductKey(ProductKey) (ProductKey, error)
	UpdateProductKey(id string, mutator func(*ProductKey) error) (ProductKey, error)
	// DeleteProductKey removes the key and every allocation referencing it.
	DeleteProductKey(id string) error
	CreateCategory(Category) (Category, error)
	UpdateCategory(id string, mutator func(*Category) error) (Category, error)
	// DeleteCategory removes the category and reassigns keys and inventory
	// items to the sentinel category.
	DeleteCategory(id string) error
	CreateCustomer(Customer) (Customer, error)
	UpdateCustomer(id string, mutator func(*Customer) error) (Customer, error)
	// DeleteCustomer releases every key allocated to the customer, then removes
	// the customer.
	DeleteCustomer(id string) error
	// CreateAllocation appends the allocation and marks the key allocated.
	CreateAllocation(Allocation) (Allocation, error)
	// ReleaseProductKey removes allocations for the key and marks it available.
	ReleaseProductKey(productKeyID string) error
	CreateInventoryItem(InventoryItem) (InventoryItem, error)
	UpdateInventoryItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error)
	// DeleteInventoryItem removes the item along with its purchases and usages.
	DeleteInventoryItem(id string) error
	// CreatePurchase appends the purchase and raises the item's stock level.
	CreatePurchase(Purchase) (Purchase, error)
	// CreateUsage appends the usage and lowers the item's stock level.
	CreateUsage(Usage) (Usage, error)
	FindProductKey(id string) (ProductKey, bool)
	FindCategory(id string) (Category, bool)
	FindCustomer(id string) (Customer, bool)
	FindInventoryItem(id string) (InventoryItem, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	AllocationsForKey(productKeyID string) []Allocation
	AllocationsForCustomer(customerID string) []Allocation
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
}

// SlotStore is the opaque key/value blob collaborator that snapshots are
// mirrored into. Each top-level collection lives in its own named slot.
type SlotStore interface {
	// Read returns the slot payload. The boolean is false when the slot has
	// never been written.
	Read(ctx context.Context, slot string) ([]byte, bool, error)
	// Write replaces the slot payload.
	Write(ctx context.Context, slot string, payload []byte) error
}

// SlotPayload pairs a slot name with its serialized collection.
type SlotPayload struct {
	Slot    string
	Payload []byte
}

// SlotBatchWriter is implemented by backends that can replace several slots
// in one atomic write.
type SlotBatchWriter interface {
	WriteSlots(ctx context.Context, payloads []SlotPayload) error
}
