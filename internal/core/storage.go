package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"keyledger/internal/blob"
	"keyledger/internal/infra/persistence/blobslots"
	"keyledger/internal/infra/persistence/postgres"
	"keyledger/internal/infra/persistence/slots"
	"keyledger/internal/infra/persistence/sqlite"
	"keyledger/pkg/domain"
)

// StorageDriver identifies a concrete slot backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBlob     StorageDriver = "blob"     // blob store (fs, s3, memory) selected by KEYLEDGER_BLOB_DRIVER
)

// OpenSlotBackend selects a slot backend using environment variables.
// Defaults to sqlite when unset. The returned close func is never nil.
//
//	KEYLEDGER_STORAGE_DRIVER: memory|sqlite|postgres|blob (default sqlite)
//	KEYLEDGER_SQLITE_PATH: path to sqlite file (default ./keyledger.db)
//	KEYLEDGER_POSTGRES_DSN: postgres DSN when driver=postgres
//	KEYLEDGER_BLOB_PREFIX: object key prefix when driver=blob
func OpenSlotBackend(ctx context.Context) (domain.SlotStore, func() error, error) {
	noop := func() error { return nil }
	driver := os.Getenv("KEYLEDGER_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return slots.NewMapBackend(), noop, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv("KEYLEDGER_SQLITE_PATH"))
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, os.Getenv("KEYLEDGER_POSTGRES_DSN"))
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case StorageBlob:
		blobs, err := blob.Open(ctx)
		if err != nil {
			return nil, noop, err
		}
		store, err := blobslots.New(blobs, os.Getenv("KEYLEDGER_BLOB_PREFIX"))
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenPersistentStore opens the configured backend and hydrates a mirrored
// store from it, installing DemoSeed when no complete snapshot exists.
func OpenPersistentStore(ctx context.Context, engine *RulesEngine, opts ...slots.Option) (*slots.Store, func() error, error) {
	backend, closeFn, err := OpenSlotBackend(ctx)
	if err != nil {
		return nil, closeFn, err
	}
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	all := append([]slots.Option{slots.WithSeed(DemoSeed)}, opts...)
	store, err := slots.Open(ctx, backend, engine, all...)
	if err != nil {
		_ = closeFn()
		return nil, func() error { return nil }, err
	}
	return store, closeFn, nil
}

// OpenService wires a Service over the environment-selected store.
func OpenService(ctx context.Context, opts ...ServiceOption) (*Service, func() error, error) {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	var storeOpts []slots.Option
	if _, ok := cfg.clock.(systemClock); !ok {
		clock := cfg.clock
		storeOpts = append(storeOpts, slots.WithClock(func() time.Time { return clock.Now().UTC().Truncate(time.Millisecond) }))
	}
	store, closeFn, err := OpenPersistentStore(ctx, nil, storeOpts...)
	if err != nil {
		return nil, closeFn, err
	}
	if store.Seeded() {
		cfg.logger.Info("installed demo seed", "driver", driverName())
	}
	return NewService(store, opts...), closeFn, nil
}

func driverName() string {
	if d := os.Getenv("KEYLEDGER_STORAGE_DRIVER"); d != "" {
		return d
	}
	return string(StorageSQLite)
}
