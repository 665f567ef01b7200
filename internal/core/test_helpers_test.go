package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"keyledger/internal/infra/persistence/slots"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(prefix string) bool {
	for _, call := range c.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// toggleBackend wraps a map backend whose writes can be made to fail.
type toggleBackend struct {
	*slots.MapBackend
	fail atomic.Bool
}

func (b *toggleBackend) Write(ctx context.Context, slot string, payload []byte) error {
	if b.fail.Load() {
		return errors.New("disk full")
	}
	return b.MapBackend.Write(ctx, slot, payload)
}

type fixture struct {
	svc     *Service
	store   *slots.Store
	backend *toggleBackend
}

// newSeededService opens a mirrored store seeded with DemoSeed at testNow.
func newSeededService(t *testing.T, opts ...ServiceOption) fixture {
	t.Helper()
	backend := &toggleBackend{MapBackend: slots.NewMapBackend()}
	store, err := slots.Open(context.Background(), backend, NewDefaultRulesEngine(),
		slots.WithSeed(DemoSeed),
		slots.WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	opts = append([]ServiceOption{WithClock(stubClock{t: testNow})}, opts...)
	return fixture{svc: NewService(store, opts...), store: store, backend: backend}
}

func mustAllocations(t *testing.T, svc *Service, keyID string) []Allocation {
	t.Helper()
	all, err := svc.ListAllocations(context.Background())
	if err != nil {
		t.Fatalf("list allocations: %v", err)
	}
	var out []Allocation
	for _, a := range all {
		if a.ProductKeyID == keyID {
			out = append(out, a)
		}
	}
	return out
}

func mustKey(t *testing.T, svc *Service, id string) ProductKey {
	t.Helper()
	k, err := svc.GetProductKey(context.Background(), id)
	if err != nil {
		t.Fatalf("get key %s: %v", id, err)
	}
	return k
}
