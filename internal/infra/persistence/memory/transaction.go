package memory

import (
	"fmt"
	"time"

	"keyledger/pkg/domain"
)

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) newID() string {
	return tx.store.idFn()
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) view() transactionView {
	return transactionView{state: &tx.state}
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProductKey exposes product key lookup within the transaction scope.
func (tx *transaction) FindProductKey(id string) (ProductKey, bool) {
	return tx.view().FindProductKey(id)
}

// FindCategory exposes category lookup within the transaction scope.
func (tx *transaction) FindCategory(id string) (Category, bool) {
	return tx.view().FindCategory(id)
}

// FindCustomer exposes customer lookup within the transaction scope.
func (tx *transaction) FindCustomer(id string) (Customer, bool) {
	return tx.view().FindCustomer(id)
}

// FindInventoryItem exposes inventory lookup within the transaction scope.
func (tx *transaction) FindInventoryItem(id string) (InventoryItem, bool) {
	return tx.view().FindInventoryItem(id)
}

func (tx *transaction) productKeyIndex(id string) int {
	return indexOf(tx.state.productKeys, func(k ProductKey) bool { return k.ID == id })
}

func (tx *transaction) categoryIndex(id string) int {
	return indexOf(tx.state.categories, func(c Category) bool { return c.ID == id })
}

func (tx *transaction) customerIndex(id string) int {
	return indexOf(tx.state.customers, func(c Customer) bool { return c.ID == id })
}

func (tx *transaction) inventoryIndex(id string) int {
	return indexOf(tx.state.inventory, func(i InventoryItem) bool { return i.ID == id })
}

// setKeyStatus rewrites the status of an existing key and records the update.
func (tx *transaction) setKeyStatus(idx int, status domain.KeyStatus) {
	current := tx.state.productKeys[idx]
	if current.Status == status {
		return
	}
	before := cloneProductKey(current)
	current.Status = status
	tx.state.productKeys[idx] = current
	tx.recordChange(Change{Entity: domain.EntityProductKey, Action: domain.ActionUpdate, Before: before, After: cloneProductKey(current)})
}

// CreateProductKey stores a new product key. Blank category ids fall back to
// the sentinel category and a blank status defaults to available.
func (tx *transaction) CreateProductKey(k ProductKey) (ProductKey, error) {
	k = k.Normalize()
	if k.ID == "" {
		k.ID = tx.newID()
	}
	if tx.productKeyIndex(k.ID) >= 0 {
		return ProductKey{}, fmt.Errorf("product key %q already exists", k.ID)
	}
	if k.CategoryID == "" {
		k.CategoryID = domain.UncategorizedCategoryID
	}
	if k.Status == "" {
		k.Status = domain.KeyStatusAvailable
	}
	if !k.Status.Valid() {
		return ProductKey{}, domain.InvariantViolation{Rule: "key_status", Entity: domain.EntityProductKey, ID: k.ID, Message: fmt.Sprintf("unknown status %q", k.Status)}
	}
	k.CreatedAt = tx.now
	tx.state.productKeys = append(tx.state.productKeys, cloneProductKey(k))
	tx.recordChange(Change{Entity: domain.EntityProductKey, Action: domain.ActionCreate, After: cloneProductKey(k)})
	return cloneProductKey(k), nil
}

// UpdateProductKey mutates a product key using the provided mutator function.
// The id and creation timestamp are never changed.
func (tx *transaction) UpdateProductKey(id string, mutator func(*ProductKey) error) (ProductKey, error) {
	idx := tx.productKeyIndex(id)
	if idx < 0 {
		return ProductKey{}, domain.ErrNotFound{Entity: domain.EntityProductKey, ID: id}
	}
	current := cloneProductKey(tx.state.productKeys[idx])
	before := cloneProductKey(current)
	if err := mutator(&current); err != nil {
		return ProductKey{}, err
	}
	current = current.Normalize()
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if current.CategoryID == "" {
		current.CategoryID = domain.UncategorizedCategoryID
	}
	if current.Status == "" {
		current.Status = before.Status
	}
	if !current.Status.Valid() {
		return ProductKey{}, domain.InvariantViolation{Rule: "key_status", Entity: domain.EntityProductKey, ID: id, Message: fmt.Sprintf("unknown status %q", current.Status)}
	}
	tx.state.productKeys[idx] = cloneProductKey(current)
	tx.recordChange(Change{Entity: domain.EntityProductKey, Action: domain.ActionUpdate, Before: before, After: cloneProductKey(current)})
	return cloneProductKey(current), nil
}

// DeleteProductKey removes a product key and every allocation referencing it.
func (tx *transaction) DeleteProductKey(id string) error {
	idx := tx.productKeyIndex(id)
	if idx < 0 {
		return domain.ErrNotFound{Entity: domain.EntityProductKey, ID: id}
	}
	current := tx.state.productKeys[idx]
	kept, removed := partition(tx.state.allocations, func(a Allocation) bool { return a.ProductKeyID == id })
	tx.state.allocations = kept
	for _, a := range removed {
		tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionDelete, Before: cloneAllocation(a)})
	}
	tx.state.productKeys = append(tx.state.productKeys[:idx:idx], tx.state.productKeys[idx+1:]...)
	tx.recordChange(Change{Entity: domain.EntityProductKey, Action: domain.ActionDelete, Before: cloneProductKey(current)})
	return nil
}

// CreateCategory stores a new category.
func (tx *transaction) CreateCategory(c Category) (Category, error) {
	c = c.Normalize()
	if c.ID == "" {
		c.ID = tx.newID()
	}
	if tx.categoryIndex(c.ID) >= 0 {
		return Category{}, fmt.Errorf("category %q already exists", c.ID)
	}
	tx.state.categories = append(tx.state.categories, cloneCategory(c))
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionCreate, After: cloneCategory(c)})
	return cloneCategory(c), nil
}

// UpdateCategory mutates an existing category. The sentinel category keeps its name.
func (tx *transaction) UpdateCategory(id string, mutator func(*Category) error) (Category, error) {
	idx := tx.categoryIndex(id)
	if idx < 0 {
		return Category{}, domain.ErrNotFound{Entity: domain.EntityCategory, ID: id}
	}
	current := cloneCategory(tx.state.categories[idx])
	before := cloneCategory(current)
	if err := mutator(&current); err != nil {
		return Category{}, err
	}
	current = current.Normalize()
	current.ID = id
	if id == domain.UncategorizedCategoryID && current.Name != before.Name {
		return Category{}, domain.InvariantViolation{
			Rule:    "sentinel_category",
			Entity:  domain.EntityCategory,
			ID:      id,
			Message: "the uncategorized category cannot be renamed",
		}
	}
	tx.state.categories[idx] = cloneCategory(current)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionUpdate, Before: before, After: cloneCategory(current)})
	return cloneCategory(current), nil
}

// DeleteCategory removes a category and reassigns its keys and inventory items
// to the sentinel category.
func (tx *transaction) DeleteCategory(id string) error {
	if id == domain.UncategorizedCategoryID {
		return domain.InvariantViolation{
			Rule:    "sentinel_category",
			Entity:  domain.EntityCategory,
			ID:      id,
			Message: "the uncategorized category cannot be deleted",
		}
	}
	idx := tx.categoryIndex(id)
	if idx < 0 {
		return domain.ErrNotFound{Entity: domain.EntityCategory, ID: id}
	}
	current := tx.state.categories[idx]
	for i, k := range tx.state.productKeys {
		if k.CategoryID != id {
			continue
		}
		before := cloneProductKey(k)
		k.CategoryID = domain.UncategorizedCategoryID
		tx.state.productKeys[i] = k
		tx.recordChange(Change{Entity: domain.EntityProductKey, Action: domain.ActionUpdate, Before: before, After: cloneProductKey(k)})
	}
	for i, item := range tx.state.inventory {
		if item.CategoryID != id {
			continue
		}
		before := cloneInventoryItem(item)
		item.CategoryID = domain.UncategorizedCategoryID
		item.UpdatedAt = tx.now
		tx.state.inventory[i] = item
		tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionUpdate, Before: before, After: cloneInventoryItem(item)})
	}
	tx.state.categories = append(tx.state.categories[:idx:idx], tx.state.categories[idx+1:]...)
	tx.recordChange(Change{Entity: domain.EntityCategory, Action: domain.ActionDelete, Before: cloneCategory(current)})
	return nil
}

// CreateCustomer stores a new customer.
func (tx *transaction) CreateCustomer(c Customer) (Customer, error) {
	c = c.Normalize()
	if c.ID == "" {
		c.ID = tx.newID()
	}
	if tx.customerIndex(c.ID) >= 0 {
		return Customer{}, fmt.Errorf("customer %q already exists", c.ID)
	}
	tx.state.customers = append(tx.state.customers, cloneCustomer(c))
	tx.recordChange(Change{Entity: domain.EntityCustomer, Action: domain.ActionCreate, After: cloneCustomer(c)})
	return cloneCustomer(c), nil
}

// UpdateCustomer mutates an existing customer.
func (tx *transaction) UpdateCustomer(id string, mutator func(*Customer) error) (Customer, error) {
	idx := tx.customerIndex(id)
	if idx < 0 {
		return Customer{}, domain.ErrNotFound{Entity: domain.EntityCustomer, ID: id}
	}
	current := cloneCustomer(tx.state.customers[idx])
	before := cloneCustomer(current)
	if err := mutator(&current); err != nil {
		return Customer{}, err
	}
	current = current.Normalize()
	current.ID = id
	tx.state.customers[idx] = cloneCustomer(current)
	tx.recordChange(Change{Entity: domain.EntityCustomer, Action: domain.ActionUpdate, Before: before, After: cloneCustomer(current)})
	return cloneCustomer(current), nil
}

// DeleteCustomer releases every key held by the customer, drops their
// allocations, then removes the customer.
func (tx *transaction) DeleteCustomer(id string) error {
	idx := tx.customerIndex(id)
	if idx < 0 {
		return domain.ErrNotFound{Entity: domain.EntityCustomer, ID: id}
	}
	current := tx.state.customers[idx]
	kept, removed := partition(tx.state.allocations, func(a Allocation) bool { return a.CustomerID == id })
	tx.state.allocations = kept
	for _, a := range removed {
		tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionDelete, Before: cloneAllocation(a)})
		if len(tx.view().AllocationsForKey(a.ProductKeyID)) > 0 {
			continue
		}
		if keyIdx := tx.productKeyIndex(a.ProductKeyID); keyIdx >= 0 {
			tx.setKeyStatus(keyIdx, domain.KeyStatusAvailable)
		}
	}
	tx.state.customers = append(tx.state.customers[:idx:idx], tx.state.customers[idx+1:]...)
	tx.recordChange(Change{Entity: domain.EntityCustomer, Action: domain.ActionDelete, Before: cloneCustomer(current)})
	return nil
}

// CreateAllocation assigns a product key to a customer and marks the key allocated.
func (tx *transaction) CreateAllocation(a Allocation) (Allocation, error) {
	a = a.Normalize()
	keyIdx := tx.productKeyIndex(a.ProductKeyID)
	if keyIdx < 0 {
		return Allocation{}, domain.ErrNotFound{Entity: domain.EntityProductKey, ID: a.ProductKeyID}
	}
	if tx.customerIndex(a.CustomerID) < 0 {
		return Allocation{}, domain.ErrNotFound{Entity: domain.EntityCustomer, ID: a.CustomerID}
	}
	if existing := tx.view().AllocationsForKey(a.ProductKeyID); len(existing) > 0 {
		return Allocation{}, domain.InvariantViolation{
			Rule:    "allocation_unique",
			Entity:  domain.EntityProductKey,
			ID:      a.ProductKeyID,
			Message: fmt.Sprintf("key is already allocated to customer %s", existing[0].CustomerID),
		}
	}
	if a.ID == "" {
		a.ID = tx.newID()
	}
	a.AllocatedAt = tx.now
	tx.state.allocations = append(tx.state.allocations, cloneAllocation(a))
	tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionCreate, After: cloneAllocation(a)})
	tx.setKeyStatus(keyIdx, domain.KeyStatusAllocated)
	return cloneAllocation(a), nil
}

// ReleaseProductKey removes allocations for the key and marks it available.
// Releasing an unknown key is a no-op.
func (tx *transaction) ReleaseProductKey(productKeyID string) error {
	kept, removed := partition(tx.state.allocations, func(a Allocation) bool { return a.ProductKeyID == productKeyID })
	tx.state.allocations = kept
	for _, a := range removed {
		tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionDelete, Before: cloneAllocation(a)})
	}
	if keyIdx := tx.productKeyIndex(productKeyID); keyIdx >= 0 {
		tx.setKeyStatus(keyIdx, domain.KeyStatusAvailable)
	}
	return nil
}

func stockViolation(id, message string) domain.InvariantViolation {
	return domain.InvariantViolation{Rule: "stock_level", Entity: domain.EntityInventoryItem, ID: id, Message: message}
}

// CreateInventoryItem stores a new inventory item.
func (tx *transaction) CreateInventoryItem(item InventoryItem) (InventoryItem, error) {
	item = item.Normalize()
	if item.ID == "" {
		item.ID = tx.newID()
	}
	if tx.inventoryIndex(item.ID) >= 0 {
		return InventoryItem{}, fmt.Errorf("inventory item %q already exists", item.ID)
	}
	if item.CategoryID == "" {
		item.CategoryID = domain.UncategorizedCategoryID
	}
	if item.StockLevel < 0 || item.ReorderPoint < 0 {
		return InventoryItem{}, stockViolation(item.ID, "stock level and reorder point must not be negative")
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	tx.state.inventory = append(tx.state.inventory, cloneInventoryItem(item))
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionCreate, After: cloneInventoryItem(item)})
	return cloneInventoryItem(item), nil
}

// UpdateInventoryItem mutates an existing inventory item.
func (tx *transaction) UpdateInventoryItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error) {
	idx := tx.inventoryIndex(id)
	if idx < 0 {
		return InventoryItem{}, domain.ErrNotFound{Entity: domain.EntityInventoryItem, ID: id}
	}
	current := cloneInventoryItem(tx.state.inventory[idx])
	before := cloneInventoryItem(current)
	if err := mutator(&current); err != nil {
		return InventoryItem{}, err
	}
	current = current.Normalize()
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if current.CategoryID == "" {
		current.CategoryID = domain.UncategorizedCategoryID
	}
	if current.StockLevel < 0 || current.ReorderPoint < 0 {
		return InventoryItem{}, stockViolation(id, "stock level and reorder point must not be negative")
	}
	tx.state.inventory[idx] = cloneInventoryItem(current)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionUpdate, Before: before, After: cloneInventoryItem(current)})
	return cloneInventoryItem(current), nil
}

// DeleteInventoryItem removes an inventory item together with its purchases and usages.
func (tx *transaction) DeleteInventoryItem(id string) error {
	idx := tx.inventoryIndex(id)
	if idx < 0 {
		return domain.ErrNotFound{Entity: domain.EntityInventoryItem, ID: id}
	}
	current := tx.state.inventory[idx]
	keptPurchases, removedPurchases := partition(tx.state.purchases, func(p Purchase) bool { return p.InventoryItemID == id })
	tx.state.purchases = keptPurchases
	for _, p := range removedPurchases {
		tx.recordChange(Change{Entity: domain.EntityPurchase, Action: domain.ActionDelete, Before: clonePurchase(p)})
	}
	keptUsages, removedUsages := partition(tx.state.usages, func(u Usage) bool { return u.InventoryItemID == id })
	tx.state.usages = keptUsages
	for _, u := range removedUsages {
		tx.recordChange(Change{Entity: domain.EntityUsage, Action: domain.ActionDelete, Before: cloneUsage(u)})
	}
	tx.state.inventory = append(tx.state.inventory[:idx:idx], tx.state.inventory[idx+1:]...)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionDelete, Before: cloneInventoryItem(current)})
	return nil
}

// adjustStock applies delta to the item's stock level, refusing to go negative.
func (tx *transaction) adjustStock(idx int, delta int) error {
	current := tx.state.inventory[idx]
	if current.StockLevel+delta < 0 {
		return stockViolation(current.ID, fmt.Sprintf("usage of %d exceeds stock level %d", -delta, current.StockLevel))
	}
	before := cloneInventoryItem(current)
	current.StockLevel += delta
	current.UpdatedAt = tx.now
	tx.state.inventory[idx] = current
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionUpdate, Before: before, After: cloneInventoryItem(current)})
	return nil
}

func positiveQuantity(entity domain.EntityType, itemID string, quantity int) error {
	if quantity > 0 {
		return nil
	}
	return domain.InvariantViolation{
		Rule:    "positive_quantity",
		Entity:  entity,
		ID:      itemID,
		Message: fmt.Sprintf("quantity must be greater than zero, got %d", quantity),
	}
}

// CreatePurchase appends a purchase and raises the item's stock level.
func (tx *transaction) CreatePurchase(p Purchase) (Purchase, error) {
	if err := positiveQuantity(domain.EntityPurchase, p.InventoryItemID, p.Quantity); err != nil {
		return Purchase{}, err
	}
	idx := tx.inventoryIndex(p.InventoryItemID)
	if idx < 0 {
		return Purchase{}, domain.ErrNotFound{Entity: domain.EntityInventoryItem, ID: p.InventoryItemID}
	}
	p.Notes = domain.OptionalString(p.Notes)
	p.UnitPrice = domain.CanonicalDecimal(p.UnitPrice)
	if p.ID == "" {
		p.ID = tx.newID()
	}
	if p.PurchaseDate.IsZero() {
		p.PurchaseDate = tx.now
	}
	if err := tx.adjustStock(idx, p.Quantity); err != nil {
		return Purchase{}, err
	}
	tx.state.purchases = append(tx.state.purchases, clonePurchase(p))
	tx.recordChange(Change{Entity: domain.EntityPurchase, Action: domain.ActionCreate, After: clonePurchase(p)})
	return clonePurchase(p), nil
}

// CreateUsage appends a usage and lowers the item's stock level.
func (tx *transaction) CreateUsage(u Usage) (Usage, error) {
	if err := positiveQuantity(domain.EntityUsage, u.InventoryItemID, u.Quantity); err != nil {
		return Usage{}, err
	}
	idx := tx.inventoryIndex(u.InventoryItemID)
	if idx < 0 {
		return Usage{}, domain.ErrNotFound{Entity: domain.EntityInventoryItem, ID: u.InventoryItemID}
	}
	u.Notes = domain.OptionalString(u.Notes)
	if u.ID == "" {
		u.ID = tx.newID()
	}
	if u.UsageDate.IsZero() {
		u.UsageDate = tx.now
	}
	if err := tx.adjustStock(idx, -u.Quantity); err != nil {
		return Usage{}, err
	}
	tx.state.usages = append(tx.state.usages, cloneUsage(u))
	tx.recordChange(Change{Entity: domain.EntityUsage, Action: domain.ActionCreate, After: cloneUsage(u)})
	return cloneUsage(u), nil
}
