// Package blob is the only entry point into the blob drivers. Persistence
// code depends on Store here and never on internal/infra/blob directly.
package blob

import (
	"keyledger/internal/blob/core"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// ContentETag fingerprints payload the way every driver fills Info.ETag.
func ContentETag(payload []byte) string { return core.ContentETag(payload) }
