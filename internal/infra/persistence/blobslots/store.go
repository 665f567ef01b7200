// Package blobslots stores slots as JSON objects in a blob store, one object
// per slot under a shared key prefix.
package blobslots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"keyledger/internal/blob"
	"keyledger/pkg/domain"
)

var _ domain.SlotStore = (*Store)(nil)

// DefaultPrefix namespaces slot objects inside the bucket or directory.
const DefaultPrefix = "keyledger/"

// Store adapts a blob.Store to domain.SlotStore.
type Store struct {
	blobs  blob.Store
	prefix string
}

// New wraps blobs. An empty prefix falls back to DefaultPrefix.
func New(blobs blob.Store, prefix string) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blobslots: blob store is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{blobs: blobs, prefix: prefix}, nil
}

// Key returns the object key backing slot.
func (s *Store) Key(slot string) string { return s.prefix + slot + ".json" }

// Read returns the object body. Missing objects report ok=false.
func (s *Store) Read(ctx context.Context, slot string) ([]byte, bool, error) {
	_, rc, err := s.blobs.Get(ctx, s.Key(slot))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", slot, err)
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", slot, err)
	}
	return payload, true, nil
}

// Write replaces the object for slot. The store rewrites every slot after each
// commit, so objects whose ETag already matches payload are left untouched.
func (s *Store) Write(ctx context.Context, slot string, payload []byte) error {
	key := s.Key(slot)
	if info, err := s.blobs.Head(ctx, key); err == nil && info.ETag == blob.ContentETag(payload) {
		return nil
	} else if err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("head %s: %w", slot, err)
	}
	_, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"slot": slot},
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", slot, err)
	}
	return nil
}

// Driver reports the underlying blob driver.
func (s *Store) Driver() blob.Driver { return s.blobs.Driver() }
