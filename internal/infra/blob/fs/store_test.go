package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"keyledger/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "state/categories.json", bytes.NewReader([]byte(`[]`)), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"slot": "categories"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "state/categories.json" || info.Size != 2 {
		t.Fatalf("unexpected info %+v", info)
	}
	h, err := store.Head(ctx, "state/categories.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	g, rc, err := store.Get(ctx, "state/categories.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `[]` || g.ETag != h.ETag || g.Metadata["slot"] != "categories" {
		t.Fatalf("unexpected get artifacts %+v", g)
	}
	list, err := store.List(ctx, "state/")
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	url, err := store.PresignURL(ctx, "state/categories.json", core.SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "http://local.blob/") {
		t.Fatalf("presign url: %v %s", err, url)
	}
	if _, err := store.PresignURL(ctx, "state/categories.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	if ok, err := store.Delete(ctx, "state/categories.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "state/categories.json"); err != nil || ok {
		t.Fatalf("second delete should be false")
	}
}

func TestStorePutCreateOnlyAndOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	first, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("one")), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("two")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	second, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("three")), core.PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if second.ETag == first.ETag || second.Size != 5 {
		t.Fatalf("expected replaced content, got %+v", second)
	}
	_, rc, err := store.Get(ctx, "k.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	b, _ := io.ReadAll(rc)
	if string(b) != "three" {
		t.Fatalf("expected overwritten payload, got %q", b)
	}
}

func TestStoreMissingKeyWrapsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, _, err := store.Get(ctx, "nope.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
	if _, err := store.Head(ctx, "nope.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
}

func TestStorePathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"../escape.txt", "/abs.txt", "  "} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, errInvalidKey) {
			t.Fatalf("expected rejection for %q, got %v", key, err)
		}
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStorePutCopyError(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "bad.bin", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
	if _, err := store.Head(context.Background(), "bad.bin"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("failed put must not leave a blob behind, got %v", err)
	}
}

func TestStoreCorruptMeta(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "c.json", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, sidePath, _ := store.paths("c.json")
	if err := os.WriteFile(sidePath, []byte("{"), 0o644); err != nil {
		t.Fatalf("corrupt meta: %v", err)
	}
	if _, _, err := store.Get(ctx, "c.json"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestSidecarMarshalError(t *testing.T) {
	orig := jsonMarshal
	jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("marshal") }
	t.Cleanup(func() { jsonMarshal = orig })
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "m.json", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestStoreETagMatchesContentAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store, err := New(t.TempDir(), WithClock(func() time.Time { return tick }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := store.Put(ctx, "keyledger/productKeys.json", bytes.NewReader([]byte(`[{"id":"1"}]`)), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag != core.ContentETag([]byte(`[{"id":"1"}]`)) {
		t.Fatalf("etag %s does not fingerprint the body", info.ETag)
	}
	tick = tick.Add(time.Hour)
	if _, err := store.Put(ctx, "keyledger/productKeys.json", bytes.NewReader([]byte(`[]`)), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, sidePath, _ := store.paths("keyledger/productKeys.json")
	meta, err := loadSidecar(sidePath)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if !meta.CreatedAt.Equal(tick.Add(-time.Hour)) || !meta.UpdatedAt.Equal(tick) {
		t.Fatalf("unexpected sidecar timestamps %+v", meta)
	}
	if store.Root() == "" {
		t.Fatalf("expected root")
	}
}
