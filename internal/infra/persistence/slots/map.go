package slots

import (
	"context"
	"sync"

	"keyledger/pkg/domain"
)

var _ domain.SlotStore = (*MapBackend)(nil)

// MapBackend is a process-local slot backend for tests and ephemeral runs.
type MapBackend struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMapBackend returns an empty backend.
func NewMapBackend() *MapBackend {
	return &MapBackend{slots: make(map[string][]byte)}
}

// Read returns a copy of the slot payload.
func (m *MapBackend) Read(_ context.Context, slot string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.slots[slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Write replaces the slot payload.
func (m *MapBackend) Write(_ context.Context, slot string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = append([]byte(nil), payload...)
	return nil
}

// Delete removes a slot. Used to simulate partial snapshots.
func (m *MapBackend) Delete(slot string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
}
