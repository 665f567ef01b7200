// Package slots mirrors the in-memory store into a key/value slot backend.
// Each top-level collection is stored as a JSON array in its own named slot.
package slots

import (
	"context"
	"encoding/json"
	"fmt"

	"keyledger/internal/infra/persistence/memory"
	"keyledger/pkg/domain"
)

// Slot names. The four core slots form one snapshot and are loaded all or nothing.
const (
	SlotProductKeys    = "productKeys"
	SlotCategories     = "categories"
	SlotCustomers      = "customers"
	SlotAllocations    = "allocations"
	SlotInventoryItems = "inventoryItems"
	SlotPurchases      = "purchases"
	SlotUsages         = "usages"
)

// CoreSlots lists the slots that must all be present for a snapshot to be adopted.
var CoreSlots = []string{SlotProductKeys, SlotCategories, SlotCustomers, SlotAllocations}

// OptionalSlots default to empty collections when absent.
var OptionalSlots = []string{SlotInventoryItems, SlotPurchases, SlotUsages}

// AllSlots returns every slot name in write order.
func AllSlots() []string {
	out := make([]string, 0, len(CoreSlots)+len(OptionalSlots))
	out = append(out, CoreSlots...)
	return append(out, OptionalSlots...)
}

func slotTarget(snapshot *memory.Snapshot, slot string) any {
	switch slot {
	case SlotProductKeys:
		return &snapshot.ProductKeys
	case SlotCategories:
		return &snapshot.Categories
	case SlotCustomers:
		return &snapshot.Customers
	case SlotAllocations:
		return &snapshot.Allocations
	case SlotInventoryItems:
		return &snapshot.InventoryItems
	case SlotPurchases:
		return &snapshot.Purchases
	case SlotUsages:
		return &snapshot.Usages
	default:
		return nil
	}
}

// EncodeSlot serializes one collection of the snapshot. Nil collections encode as [].
func EncodeSlot(snapshot memory.Snapshot, slot string) ([]byte, error) {
	var value any
	switch slot {
	case SlotProductKeys:
		value = nonNil(snapshot.ProductKeys)
	case SlotCategories:
		value = nonNil(snapshot.Categories)
	case SlotCustomers:
		value = nonNil(snapshot.Customers)
	case SlotAllocations:
		value = nonNil(snapshot.Allocations)
	case SlotInventoryItems:
		value = nonNil(snapshot.InventoryItems)
	case SlotPurchases:
		value = nonNil(snapshot.Purchases)
	case SlotUsages:
		value = nonNil(snapshot.Usages)
	default:
		return nil, fmt.Errorf("unknown slot %q", slot)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", slot, err)
	}
	return data, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// Load reads every slot from backend. complete is false when any core slot is
// missing, in which case the returned snapshot must be discarded.
func Load(ctx context.Context, backend domain.SlotStore) (snapshot memory.Snapshot, complete bool, err error) {
	for _, slot := range CoreSlots {
		payload, ok, err := backend.Read(ctx, slot)
		if err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("read %s: %w", slot, err)
		}
		if !ok {
			return memory.Snapshot{}, false, nil
		}
		if err := json.Unmarshal(payload, slotTarget(&snapshot, slot)); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("decode %s: %w", slot, err)
		}
	}
	for _, slot := range OptionalSlots {
		payload, ok, err := backend.Read(ctx, slot)
		if err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("read %s: %w", slot, err)
		}
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, slotTarget(&snapshot, slot)); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("decode %s: %w", slot, err)
		}
	}
	return snapshot, true, nil
}

// Save writes every slot of snapshot to backend. Backends implementing
// domain.SlotBatchWriter receive all slots in one call. Otherwise writing
// continues past a failed slot and the first failure is returned as a
// domain.PersistenceError.
func Save(ctx context.Context, backend domain.SlotStore, snapshot memory.Snapshot) error {
	if batch, ok := backend.(domain.SlotBatchWriter); ok {
		payloads := make([]domain.SlotPayload, 0, len(CoreSlots)+len(OptionalSlots))
		for _, slot := range AllSlots() {
			data, err := EncodeSlot(snapshot, slot)
			if err != nil {
				return domain.PersistenceError{Slot: slot, Err: err}
			}
			payloads = append(payloads, domain.SlotPayload{Slot: slot, Payload: data})
		}
		if err := batch.WriteSlots(ctx, payloads); err != nil {
			return domain.PersistenceError{Err: err}
		}
		return nil
	}
	var first error
	for _, slot := range AllSlots() {
		data, err := EncodeSlot(snapshot, slot)
		if err == nil {
			err = backend.Write(ctx, slot, data)
		}
		if err != nil && first == nil {
			first = domain.PersistenceError{Slot: slot, Err: err}
		}
	}
	return first
}
