package core

import (
	"context"
	"errors"
	"time"

	"keyledger/internal/infra/persistence/memory"
	"keyledger/pkg/domain"
)

// Logger captures the logging surface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for dashboard windows and, for in-memory
// services, record timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer installs a span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// Service exposes the transactional keyledger operations. Every mutation runs
// in one store transaction; mirrored stores persist the full snapshot after it
// commits.
type Service struct {
	store   PersistentStore
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		store:   store,
		logger:  cfg.logger,
		clock:   cfg.clock,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store holding
// only the uncategorized category. A nil engine falls back to the default rules.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	store := memory.NewStore(engine)
	store.ImportState(EmptySeed(time.Time{}))
	svc := NewService(store, opts...)
	if _, ok := svc.clock.(systemClock); !ok {
		clock := svc.clock
		store.SetNowFunc(func() time.Time { return clock.Now().UTC().Truncate(time.Millisecond) })
	}
	return svc
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// RulesEngine exposes the engine evaluated on every commit.
func (s *Service) RulesEngine() *RulesEngine { return s.store.RulesEngine() }

func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	switch {
	case err == nil:
		s.logger.Debug("operation committed", "op", op, "violations", len(res.Violations))
	case domain.IsPersistenceError(err):
		s.logger.Error("snapshot write failed; in-memory state kept", "op", op, "error", err)
	case domain.IsNotFound(err), domain.IsInvariantViolation(err):
		s.logger.Warn("operation rejected", "op", op, "error", err)
	default:
		s.logger.Error("operation failed", "op", op, "error", err)
	}
	return res, err
}

// committed drops a record built inside a transaction that was rolled back.
// A persistence failure keeps the record since the change is live in memory.
func committed[T any](record T, err error) T {
	if err != nil && !domain.IsPersistenceError(err) {
		var zero T
		return zero
	}
	return record
}

// AddProductKey stores a new key. The id and createdAt are assigned by the store.
func (s *Service) AddProductKey(ctx context.Context, key ProductKey) (ProductKey, Result, error) {
	var created ProductKey
	res, err := s.run(ctx, "add_product_key", func(tx Transaction) error {
		key.ID = ""
		var err error
		created, err = tx.CreateProductKey(key)
		return err
	})
	return committed(created, err), res, err
}

// UpdateProductKey replaces the key with matching id, keeping createdAt.
func (s *Service) UpdateProductKey(ctx context.Context, key ProductKey) (ProductKey, Result, error) {
	var updated ProductKey
	res, err := s.run(ctx, "update_product_key", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProductKey(key.ID, func(current *ProductKey) error {
			*current = key
			return nil
		})
		return err
	})
	return committed(updated, err), res, err
}

// DeleteProductKey removes the key and its allocations. Unknown ids are a no-op.
func (s *Service) DeleteProductKey(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_product_key", func(tx Transaction) error {
		if _, ok := tx.FindProductKey(id); !ok {
			return nil
		}
		return tx.DeleteProductKey(id)
	})
}

// AddCategory stores a new category.
func (s *Service) AddCategory(ctx context.Context, category Category) (Category, Result, error) {
	var created Category
	res, err := s.run(ctx, "add_category", func(tx Transaction) error {
		category.ID = ""
		var err error
		created, err = tx.CreateCategory(category)
		return err
	})
	return committed(created, err), res, err
}

// UpdateCategory replaces the category with matching id.
func (s *Service) UpdateCategory(ctx context.Context, category Category) (Category, Result, error) {
	var updated Category
	res, err := s.run(ctx, "update_category", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCategory(category.ID, func(current *Category) error {
			*current = category
			return nil
		})
		return err
	})
	return committed(updated, err), res, err
}

// DeleteCategory removes a category, moving its keys and inventory items to
// the uncategorized sentinel.
func (s *Service) DeleteCategory(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_category", func(tx Transaction) error {
		if _, ok := tx.FindCategory(id); !ok && id != UncategorizedCategoryID {
			return nil
		}
		return tx.DeleteCategory(id)
	})
}

// AddCustomer stores a new customer.
func (s *Service) AddCustomer(ctx context.Context, customer Customer) (Customer, Result, error) {
	var created Customer
	res, err := s.run(ctx, "add_customer", func(tx Transaction) error {
		customer.ID = ""
		var err error
		created, err = tx.CreateCustomer(customer)
		return err
	})
	return committed(created, err), res, err
}

// UpdateCustomer replaces the customer with matching id.
func (s *Service) UpdateCustomer(ctx context.Context, customer Customer) (Customer, Result, error) {
	var updated Customer
	res, err := s.run(ctx, "update_customer", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCustomer(customer.ID, func(current *Customer) error {
			*current = customer
			return nil
		})
		return err
	})
	return committed(updated, err), res, err
}

// DeleteCustomer releases the customer's keys and removes the customer.
func (s *Service) DeleteCustomer(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_customer", func(tx Transaction) error {
		if _, ok := tx.FindCustomer(id); !ok {
			return nil
		}
		return tx.DeleteCustomer(id)
	})
}

// AllocationRequest asks for a key to be assigned to a customer.
type AllocationRequest struct {
	ProductKeyID string  `json:"productKeyId"`
	CustomerID   string  `json:"customerId"`
	Notes        *string `json:"notes,omitempty"`
}

// AllocateKey assigns a key to a customer and marks it allocated.
func (s *Service) AllocateKey(ctx context.Context, req AllocationRequest) (Allocation, Result, error) {
	var created Allocation
	res, err := s.run(ctx, "allocate_key", func(tx Transaction) error {
		var err error
		created, err = tx.CreateAllocation(Allocation{
			ProductKeyID: req.ProductKeyID,
			CustomerID:   req.CustomerID,
			Notes:        req.Notes,
		})
		return err
	})
	return committed(created, err), res, err
}

// DeallocateKey removes the key's allocations and marks it available.
func (s *Service) DeallocateKey(ctx context.Context, productKeyID string) (Result, error) {
	return s.run(ctx, "deallocate_key", func(tx Transaction) error {
		return tx.ReleaseProductKey(productKeyID)
	})
}

// AddInventoryItem stores a new inventory item.
func (s *Service) AddInventoryItem(ctx context.Context, item InventoryItem) (InventoryItem, Result, error) {
	var created InventoryItem
	res, err := s.run(ctx, "add_inventory_item", func(tx Transaction) error {
		item.ID = ""
		var err error
		created, err = tx.CreateInventoryItem(item)
		return err
	})
	return committed(created, err), res, err
}

// UpdateInventoryItem replaces the item with matching id.
func (s *Service) UpdateInventoryItem(ctx context.Context, item InventoryItem) (InventoryItem, Result, error) {
	var updated InventoryItem
	res, err := s.run(ctx, "update_inventory_item", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateInventoryItem(item.ID, func(current *InventoryItem) error {
			*current = item
			return nil
		})
		return err
	})
	return committed(updated, err), res, err
}

// DeleteInventoryItem removes the item with its purchases and usages.
func (s *Service) DeleteInventoryItem(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_inventory_item", func(tx Transaction) error {
		if _, ok := tx.FindInventoryItem(id); !ok {
			return nil
		}
		return tx.DeleteInventoryItem(id)
	})
}

// RecordPurchase appends a purchase and raises the stock level.
func (s *Service) RecordPurchase(ctx context.Context, purchase Purchase) (Purchase, Result, error) {
	var created Purchase
	res, err := s.run(ctx, "record_purchase", func(tx Transaction) error {
		purchase.ID = ""
		var err error
		created, err = tx.CreatePurchase(purchase)
		return err
	})
	return committed(created, err), res, err
}

// RecordUsage appends a usage and lowers the stock level.
func (s *Service) RecordUsage(ctx context.Context, usage Usage) (Usage, Result, error) {
	var created Usage
	res, err := s.run(ctx, "record_usage", func(tx Transaction) error {
		usage.ID = ""
		var err error
		created, err = tx.CreateUsage(usage)
		return err
	})
	return committed(created, err), res, err
}

// Reads ----------------------------------------------------------------------

func readView[T any](ctx context.Context, s *Service, fn func(TransactionView) T) (T, error) {
	var out T
	err := s.store.View(ctx, func(view TransactionView) error {
		out = fn(view)
		return nil
	})
	return out, err
}

// ListProductKeys returns every key in insertion order.
func (s *Service) ListProductKeys(ctx context.Context) ([]ProductKey, error) {
	return readView(ctx, s, TransactionView.ListProductKeys)
}

// ListCategories returns every category in insertion order.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return readView(ctx, s, TransactionView.ListCategories)
}

// ListCustomers returns every customer in insertion order.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return readView(ctx, s, TransactionView.ListCustomers)
}

// ListAllocations returns every allocation in insertion order.
func (s *Service) ListAllocations(ctx context.Context) ([]Allocation, error) {
	return readView(ctx, s, TransactionView.ListAllocations)
}

// ListInventoryItems returns every inventory item in insertion order.
func (s *Service) ListInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	return readView(ctx, s, TransactionView.ListInventoryItems)
}

// ListPurchases returns every purchase in insertion order.
func (s *Service) ListPurchases(ctx context.Context) ([]Purchase, error) {
	return readView(ctx, s, TransactionView.ListPurchases)
}

// ListUsages returns every usage in insertion order.
func (s *Service) ListUsages(ctx context.Context) ([]Usage, error) {
	return readView(ctx, s, TransactionView.ListUsages)
}

func getByID[T any](ctx context.Context, s *Service, entity EntityType, id string, find func(TransactionView, string) (T, bool)) (T, error) {
	var (
		out T
		ok  bool
	)
	err := s.store.View(ctx, func(view TransactionView) error {
		out, ok = find(view, id)
		return nil
	})
	if err != nil {
		return out, err
	}
	if !ok {
		return out, ErrNotFound{Entity: entity, ID: id}
	}
	return out, nil
}

// GetProductKey returns the key with id or ErrNotFound.
func (s *Service) GetProductKey(ctx context.Context, id string) (ProductKey, error) {
	return getByID(ctx, s, EntityProductKey, id, TransactionView.FindProductKey)
}

// GetCategory returns the category with id or ErrNotFound.
func (s *Service) GetCategory(ctx context.Context, id string) (Category, error) {
	return getByID(ctx, s, EntityCategory, id, TransactionView.FindCategory)
}

// GetCustomer returns the customer with id or ErrNotFound.
func (s *Service) GetCustomer(ctx context.Context, id string) (Customer, error) {
	return getByID(ctx, s, EntityCustomer, id, TransactionView.FindCustomer)
}

// GetInventoryItem returns the item with id or ErrNotFound.
func (s *Service) GetInventoryItem(ctx context.Context, id string) (InventoryItem, error) {
	return getByID(ctx, s, EntityInventoryItem, id, TransactionView.FindInventoryItem)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return domain.IsNotFound(err) }

// IsInvariantViolation reports whether err wraps an InvariantViolation,
// including blocking rule violations.
func IsInvariantViolation(err error) bool { return domain.IsInvariantViolation(err) }

// IsPersistenceError reports whether err wraps a PersistenceError.
func IsPersistenceError(err error) bool { return domain.IsPersistenceError(err) }

// IsRuleViolation reports whether err is a blocking rules engine result.
func IsRuleViolation(err error) bool {
	var target RuleViolationError
	return errors.As(err, &target)
}
