// Package sqlite provides an embedded SQLite slot backend. Every slot is a row
// in a single key/value table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"keyledger/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ domain.SlotStore       = (*Store)(nil)
	_ domain.SlotBatchWriter = (*Store)(nil)
)

const defaultPath = "keyledger.db"

// Store persists slots to a single SQLite table as JSON blobs.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the database at path and ensures the ledger_slots table exists.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ledger_slots (
		slot TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger_slots table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Read returns the payload stored for slot.
func (s *Store) Read(ctx context.Context, slot string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM ledger_slots WHERE slot = ?`, slot).Scan(&payload)
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
func (s *Store) WriteSlots(ctx context.Context, payloads []domain.SlotPayload) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, p := range payloads {
		if _, err = tx.ExecContext(ctx, `INSERT INTO ledger_slots(slot,payload) VALUES(?,?) ON CONFLICT(slot) DO UPDATE SET payload=excluded.payload, updated_at=CURRENT_TIMESTAMP`, p.Slot, p.Payload); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", p.Slot, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
