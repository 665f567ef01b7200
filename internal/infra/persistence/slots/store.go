package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"keyledger/internal/infra/persistence/memory"
	"keyledger/pkg/domain"
)

// Compile-time contract assertion ensuring the mirrored store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// SeedFunc builds the snapshot installed when no complete snapshot is persisted.
type SeedFunc func(now time.Time) memory.Snapshot

// Option customises Open.
type Option func(*options)

type options struct {
	seed  SeedFunc
	nowFn func() time.Time
	idFn  func() string
}

// WithSeed sets the fallback dataset. Without it an empty snapshot is installed.
func WithSeed(seed SeedFunc) Option {
	return func(o *options) { o.seed = seed }
}

// WithClock overrides the store clock before the seed is built.
func WithClock(fn func() time.Time) Option {
	return func(o *options) { o.nowFn = fn }
}

// WithIDFunc overrides identifier generation.
func WithIDFunc(fn func() string) Option {
	return func(o *options) { o.idFn = fn }
}

// Store wraps memory.Store and writes every slot to the backend after each
// committed transaction.
type Store struct {
	*memory.Store
	backend domain.SlotStore
	mu      sync.Mutex
	seeded  bool
}

// Open hydrates a store from backend. A complete snapshot is adopted verbatim;
// otherwise the seed is installed and persisted immediately.
func Open(ctx context.Context, backend domain.SlotStore, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("slots: backend is required")
	}
	cfg := options{seed: func(time.Time) memory.Snapshot { return memory.Snapshot{} }}
	for _, opt := range opts {
		opt(&cfg)
	}
	mem := memory.NewStore(engine)
	if cfg.nowFn != nil {
		mem.SetNowFunc(cfg.nowFn)
	}
	if cfg.idFn != nil {
		mem.SetIDFunc(cfg.idFn)
	}
	snapshot, complete, err := Load(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	s := &Store{Store: mem, backend: backend}
	if complete {
		repaired := ensureSentinel(&snapshot)
		mem.ImportState(snapshot)
		if repaired {
			if err := s.Flush(ctx); err != nil {
				return nil, fmt.Errorf("persist sentinel category: %w", err)
			}
		}
		return s, nil
	}
	seed := cfg.seed(mem.NowFunc()())
	ensureSentinel(&seed)
	mem.ImportState(seed)
	s.seeded = true
	if err := s.Flush(ctx); err != nil {
		return nil, fmt.Errorf("persist seed: %w", err)
	}
	return s, nil
}

// ensureSentinel appends the uncategorized category when snapshot lacks it.
func ensureSentinel(snapshot *memory.Snapshot) bool {
	for _, c := range snapshot.Categories {
		if c.ID == domain.UncategorizedCategoryID {
			return false
		}
	}
	snapshot.Categories = append(snapshot.Categories, domain.UncategorizedCategory())
	return true
}

// Seeded reports whether Open installed the seed instead of a persisted snapshot.
func (s *Store) Seeded() bool { return s.seeded }

// Backend exposes the slot backend for integration hooks.
func (s *Store) Backend() domain.SlotStore { return s.backend }

// Flush writes the committed state to every slot.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Save(ctx, s.backend, s.ExportState())
}

// RunInTransaction applies fn within a transaction, then snapshots every slot if
// it committed. A failed write surfaces as domain.PersistenceError while the
// committed in-memory state is kept.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.Flush(ctx); err != nil {
		return res, err
	}
	return res, nil
}
