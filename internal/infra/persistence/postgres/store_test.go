package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"keyledger/internal/infra/persistence/postgres/testutil"
	"keyledger/internal/infra/persistence/slots"
	"keyledger/pkg/domain"
)

func TestNewStoreEnsuresSlotTable(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() != db {
		t.Fatalf("expected stub handle")
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS LEDGER_SLOTS") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected ledger_slots DDL, got execs: %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsSlots(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	ctx := context.Background()
	backend, err := NewStore(ctx, "ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store, err := slots.Open(ctx, backend, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("slots.Open: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateCustomer(domain.Customer{Name: "Ada", Email: "ada@example.com"})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	payload, ok := conn.Rows[slots.SlotCustomers]
	if !ok || !strings.Contains(string(payload), `"email":"ada@example.com"`) {
		t.Fatalf("expected customer slot persisted, got %s", payload)
	}
	for _, slot := range slots.AllSlots() {
		if _, ok := conn.Rows[slot]; !ok {
			t.Fatalf("expected slot %s persisted", slot)
		}
	}

	reloaded, err := slots.Open(ctx, backend, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.ListCustomers()) != 1 {
		t.Fatalf("expected customer restored from stub rows")
	}
}

func TestWriteSlotsRollsBackOnFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	ctx := context.Background()
	store, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailSlot = "customers"
	err = store.WriteSlots(ctx, []domain.SlotPayload{
		{Slot: "categories", Payload: []byte(`[]`)},
		{Slot: "customers", Payload: []byte(`[]`)},
	})
	if err == nil || !strings.Contains(err.Error(), "upsert customers") {
		t.Fatalf("expected upsert failure, got %v", err)
	}
	if _, ok := conn.Rows["categories"]; ok {
		t.Fatalf("expected earlier upserts rolled back")
	}

	conn.FailSlot = ""
	conn.FailCommit = true
	if err := store.Write(ctx, "categories", []byte(`[]`)); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if err := store.Write(ctx, "categories", []byte(`[]`)); err == nil {
		t.Fatalf("expected begin failure")
	}
}

func TestReadErrors(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok, err := store.Read(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("expected missing slot, got ok=%v err=%v", ok, err)
	}
	conn.FailQuery = true
	if _, _, err := store.Read(context.Background(), "categories"); err == nil {
		t.Fatalf("expected query failure")
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("boom")
	})
	defer restore()
	if _, err := NewStore(context.Background(), "dsn"); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStorePingError(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "dsn"); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestLiveDatabaseRoundTrip(t *testing.T) {
	dsn := os.Getenv("KEYLEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skipf("KEYLEDGER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Write(ctx, "keyledger_test_slot", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload, ok, err := store.Read(ctx, "keyledger_test_slot")
	if err != nil || !ok || !strings.Contains(string(payload), `"id"`) {
		t.Fatalf("read back: ok=%v err=%v payload=%s", ok, err, payload)
	}
}
