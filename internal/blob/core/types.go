// Package core holds the blob contract shared by every driver under
// internal/infra/blob. Callers outside the blob tree go through
// keyledger/internal/blob instead.
package core

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"time"
)

// Driver names a blob backend. Values double as KEYLEDGER_BLOB_DRIVER settings.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // directory on local disk
	DriverS3         Driver = "s3"     // S3 or MinIO bucket
	DriverMemory     Driver = "memory" // process memory
)

// PutOptions tunes a single Put.
type PutOptions struct {
	ContentType string
	// Metadata is stored next to the object and returned by Head and Get.
	Metadata  map[string]string
	Overwrite bool
}

// SignedURLOptions tunes PresignURL. Only GET is honoured by every driver.
type SignedURLOptions struct {
	Method  string
	Expiry  time.Duration
	Headers map[string]string
}

// Info is what a driver knows about one stored object.
//
// ETag is the lowercase hex MD5 of the body for every driver, so callers can
// compare it against ContentETag of a local payload.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the object-store surface the slot persistence layer writes through.
// Put refuses to replace an existing key unless PutOptions.Overwrite is set.
// Get and Head wrap ErrNotFound for missing keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	ErrUnsupported = errors.New("blobstore: unsupported operation")
	ErrNotFound    = errors.New("blobstore: not found")
	ErrExists      = errors.New("blobstore: already exists")
)

// NewETagHash returns the running hash drivers feed while streaming a body.
func NewETagHash() hash.Hash { return md5.New() } //nolint:gosec

// ContentETag fingerprints payload the same way drivers fill Info.ETag.
func ContentETag(payload []byte) string {
	sum := md5.Sum(payload) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// CloneMetadata copies user metadata so drivers never share maps with callers.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
