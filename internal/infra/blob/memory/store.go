// Package memory keeps blobs in a map. It backs the memory blob driver and
// the slot persistence tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"keyledger/internal/blob/core"
)

type object struct {
	info core.Info
	body []byte
}

func (o object) describe() core.Info {
	info := o.info
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}

// Store is a core.Store over process memory.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
	puts    int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the LastModified source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{objects: make(map[string]object), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Puts reports how many writes have been accepted.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Put buffers r and stores it under key.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.objects[key]; taken && !opts.Overwrite {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
	}
	obj := object{
		info: core.Info{
			Key:          key,
			Size:         int64(len(body)),
			ContentType:  opts.ContentType,
			ETag:         core.ContentETag(body),
			Metadata:     core.CloneMetadata(opts.Metadata),
			LastModified: s.now().UTC(),
		},
		body: body,
	}
	s.objects[key] = obj
	s.puts++
	return obj.describe(), nil
}

func (s *Store) lookup(key string) (object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return object{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return obj, nil
}

// Get returns a private copy of the body.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return obj.describe(), io.NopCloser(bytes.NewReader(bytes.Clone(obj.body))), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return obj.describe(), nil
}

// Delete reports whether key was present.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns objects under prefix ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	out := make([]core.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.describe())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not available without a network endpoint.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}
