package blob

import (
	"context"
	"fmt"
	"os"

	"keyledger/internal/infra/blob/fs"
	memorystore "keyledger/internal/infra/blob/memory"
	infraS3 "keyledger/internal/infra/blob/s3"
)

// S3Config configures NewS3.
type S3Config = infraS3.Config

// NewFilesystem stores blobs below root. An empty root means ./blobdata.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory keeps blobs in process memory.
func NewMemory() Store { return memorystore.New() }

func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// OpenS3FromEnv reads the KEYLEDGER_BLOB_S3_* variables.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	return infraS3.OpenFromEnv(ctx)
}

// NewMockS3ForTests returns an S3 store wired to an in-process fake endpoint.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

// Open builds the driver named by KEYLEDGER_BLOB_DRIVER (fs, s3 or memory;
// fs when unset). The fs driver roots itself at KEYLEDGER_BLOB_FS_ROOT.
func Open(ctx context.Context) (Store, error) {
	name := Driver(os.Getenv("KEYLEDGER_BLOB_DRIVER"))
	switch name {
	case "", DriverFilesystem:
		return NewFilesystem(os.Getenv("KEYLEDGER_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown blob driver %q", name)
}
