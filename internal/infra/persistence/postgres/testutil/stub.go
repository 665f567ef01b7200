// Package testutil fakes the ledger_slots table behind database/sql so the
// postgres backend can be tested without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// SlotTable is a fake connection. Rows holds committed slot payloads; upserts
// issued inside a transaction stay staged until Commit.
type SlotTable struct {
	mu     sync.Mutex
	Execs  []string
	Rows   map[string][]byte
	staged map[string][]byte

	FailPing   bool
	FailBegin  bool
	FailQuery  bool
	FailCommit bool
	FailSlot   string // upserts of this slot fail
}

// NewStubDB registers a fresh driver name and returns a pool bound to it.
func NewStubDB() (*sql.DB, *SlotTable) {
	table := &SlotTable{Rows: make(map[string][]byte)}
	name := fmt.Sprintf("ledgerstub%d", driverSeq.Add(1))
	sql.Register(name, connector{table})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, table
}

type connector struct{ table *SlotTable }

func (c connector) Open(string) (driver.Conn, error) { return c.table, nil }

var errNoPrepare = errors.New("stub: prepared statements not supported")

func (t *SlotTable) Prepare(string) (driver.Stmt, error) { return nil, errNoPrepare }
func (t *SlotTable) Close() error                        { return nil }

func (t *SlotTable) Begin() (driver.Tx, error) {
	return t.BeginTx(context.Background(), driver.TxOptions{})
}

func (t *SlotTable) Ping(context.Context) error {
	if t.FailPing {
		return errors.New("stub: ping refused")
	}
	return nil
}

func (t *SlotTable) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if t.FailBegin {
		return nil, errors.New("stub: begin refused")
	}
	t.mu.Lock()
	t.staged = make(map[string][]byte)
	t.mu.Unlock()
	return slotTx{t}, nil
}

// ExecContext records every statement and applies ledger_slots upserts.
func (t *SlotTable) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Execs = append(t.Execs, query)
	if !isUpsert(query) {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("stub: upsert wants slot and payload, got %d args", len(args))
	}
	slot, _ := args[0].Value.(string)
	if slot == t.FailSlot {
		return nil, fmt.Errorf("stub: upsert %s refused", slot)
	}
	payload, _ := args[1].Value.([]byte)
	dst := t.Rows
	if t.staged != nil {
		dst = t.staged
	}
	dst[slot] = append([]byte(nil), payload...)
	return driver.RowsAffected(1), nil
}

func isUpsert(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO LEDGER_SLOTS")
}

// QueryContext answers single-slot selects from committed rows.
func (t *SlotTable) QueryContext(_ context.Context, _ string, args []driver.NamedValue) (driver.Rows, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailQuery {
		return nil, errors.New("stub: query refused")
	}
	out := &payloadRows{}
	if len(args) == 1 {
		slot, _ := args[0].Value.(string)
		if payload, ok := t.Rows[slot]; ok {
			out.payloads = append(out.payloads, append([]byte(nil), payload...))
		}
	}
	return out, nil
}

type slotTx struct{ table *SlotTable }

func (tx slotTx) Commit() error {
	t := tx.table
	t.mu.Lock()
	defer t.mu.Unlock()
	staged := t.staged
	t.staged = nil
	if t.FailCommit {
		return errors.New("stub: commit refused")
	}
	for slot, payload := range staged {
		t.Rows[slot] = payload
	}
	return nil
}

func (tx slotTx) Rollback() error {
	tx.table.mu.Lock()
	defer tx.table.mu.Unlock()
	tx.table.staged = nil
	return nil
}

type payloadRows struct {
	payloads [][]byte
	next     int
}

func (r *payloadRows) Columns() []string { return []string{"payload"} }
func (r *payloadRows) Close() error      { return nil }

func (r *payloadRows) Next(dest []driver.Value) error {
	if r.next >= len(r.payloads) {
		return io.EOF
	}
	dest[0] = r.payloads[r.next]
	r.next++
	return nil
}
