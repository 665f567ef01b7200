package slots

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"keyledger/internal/infra/persistence/memory"
	"keyledger/pkg/domain"
)

func testSeed(now time.Time) memory.Snapshot {
	return memory.Snapshot{
		Categories: []domain.Category{{ID: domain.UncategorizedCategoryID, Name: "Uncategorized", Color: "#6B7280"}},
		Customers:  []domain.Customer{{ID: "c1", Name: "Ada", Email: "ada@example.com"}},
		ProductKeys: []domain.ProductKey{{
			ID: "k1", Key: "AAAAA", CategoryID: domain.UncategorizedCategoryID,
			Status: domain.KeyStatusAvailable, CreatedAt: now, ExpiresAt: domain.TimePtr(now.AddDate(0, 0, 30)),
		}},
	}
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 123000000, time.UTC)
}

func TestOpenSeedsAndPersistsWhenEmpty(t *testing.T) {
	backend := NewMapBackend()
	store, err := Open(context.Background(), backend, nil, WithSeed(testSeed), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !store.Seeded() {
		t.Fatalf("expected seed to be installed")
	}
	for _, slot := range AllSlots() {
		if _, ok, _ := backend.Read(context.Background(), slot); !ok {
			t.Fatalf("expected slot %s persisted after seeding", slot)
		}
	}
	payload, _, _ := backend.Read(context.Background(), SlotInventoryItems)
	if string(payload) != "[]" {
		t.Fatalf("expected empty inventory slot, got %s", payload)
	}
	payload, _, _ = backend.Read(context.Background(), SlotProductKeys)
	if !bytes.Contains(payload, []byte(`"createdAt":"2025-03-04T05:06:07.123Z"`)) {
		t.Fatalf("expected ISO-8601 timestamp, got %s", payload)
	}
}

func TestOpenAdoptsCompleteSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := NewMapBackend()
	first, err := Open(ctx, backend, nil, WithSeed(testSeed), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateCategory(domain.Category{Name: "Beta", Color: "#000"})
		return err
	}); err != nil {
		t.Fatalf("create category: %v", err)
	}

	second, err := Open(ctx, backend, nil, WithSeed(testSeed))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second.Seeded() {
		t.Fatalf("expected persisted snapshot to be adopted")
	}
	if len(second.ListCategories()) != 2 {
		t.Fatalf("expected both categories restored, got %+v", second.ListCategories())
	}
}

func TestOpenPartialSnapshotFallsBackToSeed(t *testing.T) {
	ctx := context.Background()
	backend := NewMapBackend()
	if err := backend.Write(ctx, SlotCategories, []byte(`[{"id":"x","name":"Only","color":"#fff"}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := backend.Write(ctx, SlotCustomers, []byte(`[]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(ctx, backend, nil, WithSeed(testSeed), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !store.Seeded() {
		t.Fatalf("partial snapshot must be treated as absent")
	}
	cats := store.ListCategories()
	if len(cats) != 1 || cats[0].ID != domain.UncategorizedCategoryID {
		t.Fatalf("expected seed categories only, got %+v", cats)
	}
}

func TestOpenRestoresMissingSentinel(t *testing.T) {
	ctx := context.Background()
	for _, body := range []string{`null`, `[]`} {
		backend := NewMapBackend()
		for _, slot := range CoreSlots {
			if err := backend.Write(ctx, slot, []byte(body)); err != nil {
				t.Fatalf("write %s: %v", slot, err)
			}
		}
		store, err := Open(ctx, backend, sentinelEngine(), WithSeed(testSeed), WithClock(fixedClock))
		if err != nil {
			t.Fatalf("%s: open: %v", body, err)
		}
		if store.Seeded() {
			t.Fatalf("%s: present slots must be adopted, not reseeded", body)
		}
		cats := store.ListCategories()
		if len(cats) != 1 || cats[0].ID != domain.UncategorizedCategoryID || cats[0].Name != "Uncategorized" {
			t.Fatalf("%s: expected sentinel restored, got %+v", body, cats)
		}
		payload, _, _ := backend.Read(ctx, SlotCategories)
		if !bytes.Contains(payload, []byte(`"id":"uncategorized"`)) {
			t.Fatalf("%s: expected restored sentinel persisted, got %s", body, payload)
		}
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateCategory(domain.Category{Name: "Beta", Color: "#000"})
			return err
		}); err != nil {
			t.Fatalf("%s: store must accept writes after repair: %v", body, err)
		}
	}
}

func TestOpenInstallsSentinelWithEmptySeed(t *testing.T) {
	store, err := Open(context.Background(), NewMapBackend(), sentinelEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cats := store.ListCategories()
	if len(cats) != 1 || cats[0].ID != domain.UncategorizedCategoryID {
		t.Fatalf("expected sentinel in default seed, got %+v", cats)
	}
}

func TestOpenSentinelRepairWriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MapBackend: NewMapBackend(), failSlot: SlotCategories}
	for _, slot := range CoreSlots {
		_ = backend.MapBackend.Write(ctx, slot, []byte(`[]`))
	}
	if _, err := Open(ctx, backend, nil); err == nil {
		t.Fatalf("expected repair write failure to surface")
	}
}

// sentinelRule blocks any commit that leaves the uncategorized category out.
type sentinelRule struct{}

func (sentinelRule) Name() string { return "sentinel_category" }

func (sentinelRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	if _, ok := view.FindCategory(domain.UncategorizedCategoryID); ok {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "sentinel_category", Severity: domain.SeverityBlock, Message: "missing"}}}, nil
}

func sentinelEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(sentinelRule{})
	return engine
}

func TestOpenRejectsMalformedSlot(t *testing.T) {
	ctx := context.Background()
	backend := NewMapBackend()
	for _, slot := range CoreSlots {
		_ = backend.Write(ctx, slot, []byte(`[]`))
	}
	_ = backend.Write(ctx, SlotProductKeys, []byte(`{not json`))
	if _, err := Open(ctx, backend, nil, WithSeed(testSeed)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRoundTripIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := NewMapBackend()
	store, err := Open(ctx, backend, nil, WithSeed(testSeed), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		item, err := tx.CreateInventoryItem(domain.InventoryItem{Name: "Dock", SKU: "D-1", Price: decimal.RequireFromString("129.95")})
		if err != nil {
			return err
		}
		_, err = tx.CreatePurchase(domain.Purchase{InventoryItemID: item.ID, Quantity: 2, UnitPrice: decimal.RequireFromString("100.10"), Supplier: "Acme"})
		return err
	}); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	before := map[string][]byte{}
	for _, slot := range AllSlots() {
		before[slot], _, _ = backend.Read(ctx, slot)
	}

	reloaded, err := Open(ctx, backend, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := reloaded.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for _, slot := range AllSlots() {
		after, _, _ := backend.Read(ctx, slot)
		if !bytes.Equal(before[slot], after) {
			t.Fatalf("slot %s changed across save/load:\n%s\n%s", slot, before[slot], after)
		}
	}
	items := reloaded.ListInventoryItems()
	if len(items) != 1 || !items[0].Price.Equal(decimal.RequireFromString("129.95")) || items[0].StockLevel != 2 {
		t.Fatalf("unexpected inventory after reload: %+v", items)
	}
}

func TestReloadedDecimalsMatchInMemory(t *testing.T) {
	ctx := context.Background()
	backend := NewMapBackend()
	store, err := Open(ctx, backend, nil, WithSeed(testSeed), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		item, err := tx.CreateInventoryItem(domain.InventoryItem{Name: "Hub", SKU: "H-1", Price: decimal.RequireFromString("10.50")})
		if err != nil {
			return err
		}
		_, err = tx.CreatePurchase(domain.Purchase{InventoryItemID: item.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("7.00"), Supplier: "Acme"})
		return err
	}); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	reloaded, err := Open(ctx, backend, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, want := reloaded.ListInventoryItems(), store.ListInventoryItems(); !reflect.DeepEqual(got, want) {
		t.Fatalf("inventory differs after reload:\n%#v\n%#v", got, want)
	}
	if got, want := reloaded.ListPurchases(), store.ListPurchases(); !reflect.DeepEqual(got, want) {
		t.Fatalf("purchases differ after reload:\n%#v\n%#v", got, want)
	}
}

type failingBackend struct {
	*MapBackend
	failSlot string
}

func (f *failingBackend) Write(ctx context.Context, slot string, payload []byte) error {
	if slot == f.failSlot {
		return errors.New("disk full")
	}
	return f.MapBackend.Write(ctx, slot, payload)
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MapBackend: NewMapBackend()}
	store, err := Open(ctx, backend, nil, WithSeed(testSeed), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	backend.failSlot = SlotCustomers
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateCustomer(domain.Customer{Name: "Grace", Email: "grace@example.com"})
		return err
	})
	var perr domain.PersistenceError
	if !errors.As(err, &perr) || perr.Slot != SlotCustomers {
		t.Fatalf("expected persistence error for customers slot, got %v", err)
	}
	if len(store.ListCustomers()) != 2 {
		t.Fatalf("in-memory mutation must stand after write failure")
	}
	payload, _, _ := backend.Read(ctx, SlotAllocations)
	if payload == nil {
		t.Fatalf("remaining slots should still be written")
	}
}

func TestOpenRequiresBackend(t *testing.T) {
	if _, err := Open(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestEncodeSlotUnknown(t *testing.T) {
	if _, err := EncodeSlot(memory.Snapshot{}, "bogus"); err == nil {
		t.Fatalf("expected unknown slot error")
	}
}
