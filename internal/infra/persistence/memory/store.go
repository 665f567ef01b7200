// Package memory provides an in-memory implementation of the keyledger
// persistence store used directly in tests and wrapped by the slot-mirrored
// backends.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyledger/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// ProductKey aliases domain.ProductKey for in-memory persistence operations.
	ProductKey = domain.ProductKey
	// Category aliases domain.Category.
	Category = domain.Category
	// Customer aliases domain.Customer.
	Customer = domain.Customer
	// Allocation aliases domain.Allocation.
	Allocation = domain.Allocation
	// InventoryItem aliases domain.InventoryItem.
	InventoryItem = domain.InventoryItem
	Purchase      = domain.Purchase
	Usage         = domain.Usage
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// memoryState keeps every collection as a slice so insertion order survives
// snapshots and reloads.
type memoryState struct {
	productKeys []ProductKey
	categories  []Category
	customers   []Customer
	allocations []Allocation
	inventory   []InventoryItem
	purchases   []Purchase
	usages      []Usage
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	ProductKeys    []ProductKey    `json:"productKeys"`
	Categories     []Category      `json:"categories"`
	Customers      []Customer      `json:"customers"`
	Allocations    []Allocation    `json:"allocations"`
	InventoryItems []InventoryItem `json:"inventoryItems"`
	Purchases      []Purchase      `json:"purchases"`
	Usages         []Usage         `json:"usages"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		ProductKeys:    cloneSlice(state.productKeys, cloneProductKey),
		Categories:     cloneSlice(state.categories, cloneCategory),
		Customers:      cloneSlice(state.customers, cloneCustomer),
		Allocations:    cloneSlice(state.allocations, cloneAllocation),
		InventoryItems: cloneSlice(state.inventory, cloneInventoryItem),
		Purchases:      cloneSlice(state.purchases, clonePurchase),
		Usages:         cloneSlice(state.usages, cloneUsage),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{
		productKeys: cloneSlice(s.ProductKeys, cloneProductKey),
		categories:  cloneSlice(s.Categories, cloneCategory),
		customers:   cloneSlice(s.Customers, cloneCustomer),
		allocations: cloneSlice(s.Allocations, cloneAllocation),
		inventory:   cloneSlice(s.InventoryItems, cloneInventoryItem),
		purchases:   cloneSlice(s.Purchases, clonePurchase),
		usages:      cloneSlice(s.Usages, cloneUsage),
	}
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func cloneSlice[T any](items []T, cloneFn func(T) T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, cloneFn(item))
	}
	return out
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}

// partition splits items into the ones to keep and the ones matched for removal.
func partition[T any](items []T, remove func(T) bool) (kept, removed []T) {
	kept = make([]T, 0, len(items))
	for _, item := range items {
		if remove(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	return kept, removed
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneProductKey(k ProductKey) ProductKey {
	k.SubcategoryID = cloneStringPtr(k.SubcategoryID)
	k.ExpiresAt = cloneTimePtr(k.ExpiresAt)
	return k
}

func cloneCategory(c Category) Category {
	c.Description = cloneStringPtr(c.Description)
	return c
}

func cloneCustomer(c Customer) Customer {
	c.Phone = cloneStringPtr(c.Phone)
	c.Company = cloneStringPtr(c.Company)
	return c
}

func cloneAllocation(a Allocation) Allocation {
	a.Notes = cloneStringPtr(a.Notes)
	return a
}

func cloneInventoryItem(i InventoryItem) InventoryItem {
	i.Description = cloneStringPtr(i.Description)
	i.SubcategoryID = cloneStringPtr(i.SubcategoryID)
	return i
}

func clonePurchase(p Purchase) Purchase {
	p.Notes = cloneStringPtr(p.Notes)
	return p
}

func cloneUsage(u Usage) Usage {
	u.Notes = cloneStringPtr(u.Notes)
	return u
}

// Store provides an in-memory transactional store for the keyledger domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		engine: engine,
		nowFn:  defaultNow,
		idFn:   uuid.NewString,
	}
}

// defaultNow matches the millisecond precision of the persisted ISO-8601 form,
// so a reload reproduces timestamps exactly.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider. A nil fn restores the default clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = defaultNow
	}
	s.nowFn = fn
}

// SetIDFunc replaces the identifier generator. A nil fn restores random UUIDs.
func (s *Store) SetIDFunc(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = uuid.NewString
	}
	s.idFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn succeeds and no blocking rule
// violation is reported.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// Read helpers ---------------------------------------------------------------

// ListProductKeys returns all product keys from committed state in insertion order.
func (s *Store) ListProductKeys() []ProductKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.productKeys, cloneProductKey)
}

// ListCategories returns all categories from committed state.
func (s *Store) ListCategories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.categories, cloneCategory)
}

// ListCustomers returns all customers from committed state.
func (s *Store) ListCustomers() []Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.customers, cloneCustomer)
}

// ListAllocations returns all allocations from committed state.
func (s *Store) ListAllocations() []Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.allocations, cloneAllocation)
}

// ListInventoryItems returns all inventory items from committed state.
func (s *Store) ListInventoryItems() []InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.inventory, cloneInventoryItem)
}

// ListPurchases returns all purchases from committed state.
func (s *Store) ListPurchases() []Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.purchases, clonePurchase)
}

// ListUsages returns all usages from committed state.
func (s *Store) ListUsages() []Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.state.usages, cloneUsage)
}

// GetProductKey retrieves a product key by ID from committed state.
func (s *Store) GetProductKey(id string) (ProductKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProductKey(id)
}

// GetCategory retrieves a category by ID.
func (s *Store) GetCategory(id string) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindCategory(id)
}

// GetCustomer retrieves a customer by ID.
func (s *Store) GetCustomer(id string) (Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindCustomer(id)
}

// GetInventoryItem retrieves an inventory item by ID.
func (s *Store) GetInventoryItem(id string) (InventoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindInventoryItem(id)
}
