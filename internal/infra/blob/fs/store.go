// Package fs stores blobs as files below a root directory, each with a
// JSON sidecar carrying content type, metadata and the content ETag.
package fs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"keyledger/internal/blob/core"
)

// DefaultRoot is used when New receives an empty root.
const DefaultRoot = "./blobdata"

// Store is a core.Store over a directory. Bodies land through a temp file and
// rename so a reader sees either the old or the new slot document.
type Store struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamps written to sidecars.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates root when missing.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	s := &Store{root: root, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the directory blobs are written under.
func (s *Store) Root() string { return s.root }

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

var errInvalidKey = errors.New("invalid blob key")

// sanitizeKey keeps key relative to the root.
func sanitizeKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", fmt.Errorf("%w: empty", errInvalidKey)
	case strings.HasPrefix(key, "/"):
		return "", fmt.Errorf("%w: %q is absolute", errInvalidKey, key)
	case strings.Contains(key, ".."):
		return "", fmt.Errorf("%w: %q leaves the root", errInvalidKey, key)
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Store) paths(key string) (dataPath, sidePath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	sidePath = dataPath + ".meta"
	return
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func missing(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return err
}

// Put streams r to disk, hashing it on the way. CreatedAt survives overwrites.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, sidePath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	meta := sidecar{ContentType: opts.ContentType, Metadata: core.CloneMetadata(opts.Metadata), CreatedAt: now, UpdatedAt: now}
	if _, err := os.Stat(dataPath); err == nil {
		if !opts.Overwrite {
			return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
		}
		if prev, err := loadSidecar(sidePath); err == nil {
			meta.CreatedAt = prev.CreatedAt
		}
	}
	meta.Size, meta.ETag, err = replaceFile(dataPath, r)
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := saveSidecar(sidePath, meta); err != nil {
		return core.Info{}, fmt.Errorf("write sidecar %s: %w", key, err)
	}
	return s.info(key, meta), nil
}

// replaceFile copies r into a temp file next to path and renames it over path.
func replaceFile(path string, r io.Reader) (size int64, etag string, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	sum := core.NewETagHash()
	size, err = io.Copy(io.MultiWriter(tmp, sum), r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(sum.Sum(nil)), nil
}

// Get opens the blob for reading.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, sidePath, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return core.Info{}, nil, missing(key, err)
	}
	meta, err := loadSidecar(sidePath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return s.info(key, meta), file, nil
}

// Head returns metadata from the sidecar.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, sidePath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := loadSidecar(sidePath)
	if err != nil {
		return core.Info{}, missing(key, err)
	}
	return s.info(key, meta), nil
}

// Delete removes the blob and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, sidePath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(dataPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(sidePath)
	return true, nil
}

// List walks the root for sidecars whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".meta") {
			return nil
		}
		meta, err := loadSidecar(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, ".meta"))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, s.info(key, meta))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL hands out an unauthenticated local URL. Only GET is supported.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && strings.ToUpper(opts.Method) != "GET" {
		return "", core.ErrUnsupported
	}
	return s.localURL(key), nil
}

func (s *Store) info(key string, meta sidecar) core.Info {
	return core.Info{Key: key, Size: meta.Size, ContentType: meta.ContentType, ETag: meta.ETag, Metadata: core.CloneMetadata(meta.Metadata), LastModified: meta.UpdatedAt, URL: s.localURL(key)}
}

func (s *Store) localURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "local.blob", Path: "/" + key}).String()
}

func saveSidecar(path string, meta sidecar) error {
	b, err := jsonMarshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func loadSidecar(path string) (sidecar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := jsonUnmarshal(b, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode sidecar %s: %w", path, err)
	}
	return meta, nil
}

var (
	jsonMarshal   = func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
	jsonUnmarshal = func(b []byte, v any) error { return json.Unmarshal(b, v) }
)
