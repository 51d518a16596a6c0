// Package storage ties the backend and arena layers together into a single
// handle (the top-level type callers embed their application around) and
// maintains the process-wide default-storage registry (§6.3).
//
// © 2025 merkstore authors. MIT License.
package storage

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/backend"
	"github.com/voskan/merkstore/pkg/storedb"
)

// DefaultCacheSize is used by Default() when auto-initializing an
// in-memory store; callers wanting a different size should build their own
// Storage and call SetDefault.
const DefaultCacheSize = 4096

// Storage is the top-level handle: a concrete DB, the backend built over
// it, and the arena built over the backend. DBT is the concrete DB type
// (e.g. *storedb.MemDB, *storedb.BadgerDB, or a storedb.Namespace[T] test
// wrapper); it exists purely so the default-storage registry can key on it.
type Storage[DBT storedb.DB] struct {
	db      DBT
	backend *backend.Backend
	arena   *arena.Arena
}

// Option configures a Storage at construction time.
type Option[DBT storedb.DB] func(*storageConfig)

type storageConfig struct {
	backendOpts []backend.Option
	arenaOpts   []arena.Option
}

// WithBackendOptions passes opts through to backend.New.
func WithBackendOptions[DBT storedb.DB](opts ...backend.Option) Option[DBT] {
	return func(c *storageConfig) { c.backendOpts = append(c.backendOpts, opts...) }
}

// WithArenaOptions passes opts through to arena.New.
func WithArenaOptions[DBT storedb.DB](opts ...arena.Option) Option[DBT] {
	return func(c *storageConfig) { c.arenaOpts = append(c.arenaOpts, opts...) }
}

// New builds a Storage over db with the given backend cache size.
func New[DBT storedb.DB](db DBT, cacheSize int, opts ...Option[DBT]) *Storage[DBT] {
	cfg := &storageConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	b := backend.New(db, cacheSize, cfg.backendOpts...)
	return &Storage[DBT]{db: db, backend: b, arena: arena.New(b, cfg.arenaOpts...)}
}

// DB returns the underlying concrete database.
func (s *Storage[DBT]) DB() DBT { return s.db }

// Backend returns the storage backend.
func (s *Storage[DBT]) Backend() *backend.Backend { return s.backend }

// Arena returns the arena built over this storage's backend.
func (s *Storage[DBT]) Arena() *arena.Arena { return s.arena }

var (
	registryMu sync.Mutex
	registry   = map[reflect.Type]any{}
)

// TryDefault returns the registered default Storage for DBT, if any, with
// no initialization attempted.
func TryDefault[DBT storedb.DB]() (*Storage[DBT], bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	v, ok := registry[reflect.TypeFor[DBT]()]
	if !ok {
		return nil, false
	}
	return v.(*Storage[DBT]), true
}

// Default returns the registered default Storage for DBT, initializing one
// on demand if DBT is *storedb.MemDB (the only DB type this library knows
// how to construct with no further information). For any other DBT, an
// absent default is a caller error: install one with SetDefault first.
func Default[DBT storedb.DB]() *Storage[DBT] {
	if s, ok := TryDefault[DBT](); ok {
		return s
	}

	var zero DBT
	if _, isMemDB := any(zero).(*storedb.MemDB); isMemDB {
		s := New[DBT](any(storedb.NewMemDB()).(DBT), DefaultCacheSize)
		return SetDefault[DBT](s)
	}

	panic(fmt.Sprintf("storage: no default storage registered for %s; call storage.SetDefault first", reflect.TypeFor[DBT]()))
}

// SetDefault installs s as the default Storage for DBT, at most once:
// concurrent competing installs are tolerated, and the caller always gets
// back whichever Storage actually won (its own, or another goroutine's).
func SetDefault[DBT storedb.DB](s *Storage[DBT]) *Storage[DBT] {
	registryMu.Lock()
	defer registryMu.Unlock()
	t := reflect.TypeFor[DBT]()
	if existing, ok := registry[t]; ok {
		return existing.(*Storage[DBT])
	}
	registry[t] = s
	return s
}
