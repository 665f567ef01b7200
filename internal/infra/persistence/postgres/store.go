// Package postgres provides a PostgreSQL slot backend. Slots are rows of a
// JSONB key/value table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"keyledger/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.SlotStore       = (*Store)(nil)
	_ domain.SlotBatchWriter = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/keyledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists slots to Postgres.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed slot store using the provided DSN (falls back to defaultDSN)
// and ensures the ledger_slots table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSlotTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSlotTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS ledger_slots (
		slot TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure ledger_slots table: %w", err)
	}
	return nil
}

// Read returns the payload stored for slot.
func (s *Store) Read(ctx context.Context, slot string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM ledger_slots WHERE slot = $1`, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", slot, err)
	}
	return payload, true, nil
}

// Write upserts a single slot.
func (s *Store) Write(ctx context.Context, slot string, payload []byte) error {
	return s.WriteSlots(ctx, []domain.SlotPayload{{Slot: slot, Payload: payload}})
}

// WriteSlots upserts every payload inside one database transaction.
func (s *Store) WriteSlots(ctx context.Context, payloads []domain.SlotPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, p := range payloads {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_slots(slot,payload) VALUES($1,$2) ON CONFLICT(slot) DO UPDATE SET payload=EXCLUDED.payload, updated_at=now()`, p.Slot, p.Payload); err != nil {
			return fmt.Errorf("upsert %s: %w", p.Slot, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
