package memory

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListProductKeys returns all product keys within the snapshot.
func (v transactionView) ListProductKeys() []ProductKey {
	return cloneSlice(v.state.productKeys, cloneProductKey)
}

// ListCategories returns all categories within the snapshot.
func (v transactionView) ListCategories() []Category {
	return cloneSlice(v.state.categories, cloneCategory)
}

// ListCustomers returns all customers within the snapshot.
func (v transactionView) ListCustomers() []Customer {
	return cloneSlice(v.state.customers, cloneCustomer)
}

// ListAllocations returns all allocations within the snapshot.
func (v transactionView) ListAllocations() []Allocation {
	return cloneSlice(v.state.allocations, cloneAllocation)
}

func (v transactionView) ListInventoryItems() []InventoryItem {
	return cloneSlice(v.state.inventory, cloneInventoryItem)
}

func (v transactionView) ListPurchases() []Purchase {
	return cloneSlice(v.state.purchases, clonePurchase)
}

func (v transactionView) ListUsages() []Usage {
	return cloneSlice(v.state.usages, cloneUsage)
}

// FindProductKey returns the product key with the given id.
func (v transactionView) FindProductKey(id string) (ProductKey, bool) {
	idx := indexOf(v.state.productKeys, func(k ProductKey) bool { return k.ID == id })
	if idx < 0 {
		return ProductKey{}, false
	}
	return cloneProductKey(v.state.productKeys[idx]), true
}

// FindCategory returns the category with the given id.
func (v transactionView) FindCategory(id string) (Category, bool) {
	idx := indexOf(v.state.categories, func(c Category) bool { return c.ID == id })
	if idx < 0 {
		return Category{}, false
	}
	return cloneCategory(v.state.categories[idx]), true
}

// FindCustomer returns the customer with the given id.
func (v transactionView) FindCustomer(id string) (Customer, bool) {
	idx := indexOf(v.state.customers, func(c Customer) bool { return c.ID == id })
	if idx < 0 {
		return Customer{}, false
	}
	return cloneCustomer(v.state.customers[idx]), true
}

// FindInventoryItem returns the inventory item with the given id.
func (v transactionView) FindInventoryItem(id string) (InventoryItem, bool) {
	idx := indexOf(v.state.inventory, func(i InventoryItem) bool { return i.ID == id })
	if idx < 0 {
		return InventoryItem{}, false
	}
	return cloneInventoryItem(v.state.inventory[idx]), true
}

// AllocationsForKey lists allocations referencing the product key.
func (v transactionView) AllocationsForKey(productKeyID string) []Allocation {
	var out []Allocation
	for _, a := range v.state.allocations {
		if a.ProductKeyID == productKeyID {
			out = append(out, cloneAllocation(a))
		}
	}
	return out
}

// AllocationsForCustomer lists allocations held by the customer.
func (v transactionView) AllocationsForCustomer(customerID string) []Allocation {
	var out []Allocation
	for _, a := range v.state.allocations {
		if a.CustomerID == customerID {
			out = append(out, cloneAllocation(a))
		}
	}
	return out
}
