// Package backend implements the Storage Backend component (§4.2): the
// layer that intermediates between the in-memory arena and the persistent
// DB. It keeps an unbounded write cache of pending mutations (LRU-ordered
// for eviction-to-disk purposes), a bounded LRU read cache of clean
// objects, tracks reference-count and root-count deltas in memory so that
// short-lived structures never touch the DB at all, and performs batched
// flushes and mark-and-sweep GC.
//
// This is a direct, structure-preserving port of the original Rust
// StorageBackend (see storage/src/backend.rs in the design material): the
// same six-state cache-value machine, the same delta algebra, and the same
// flush/GC algorithms, expressed with Go maps plus an explicit LRU list
// (internal/lru) in place of the Rust Cache<K,V> abstraction.
//
// © 2025 merkstore authors. MIT License.
package backend

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voskan/merkstore/internal/lru"
	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/log"
	"github.com/voskan/merkstore/pkg/metrics"
	"github.com/voskan/merkstore/pkg/storedb"
)

// Stats mirrors the original StorageBackendStats: cheap counters useful for
// performance tuning.
type Stats struct {
	GetCacheHits   uint64
	GetCacheMisses uint64

	// Generation identifies the current write-cache epoch: a fresh id is
	// minted every time the write cache is flushed. It is debug/inspection
	// bookkeeping only (cmd/merkstore-inspect reports it) — never part of
	// any content hash or persisted state.
	Generation uuid.UUID
}

// Backend is the storage backend described in §4.2. It is not safe for
// concurrent use on its own; callers (the arena) serialize access per the
// documented lock order in §3.4/§5.
type Backend struct {
	db        storedb.DB
	cacheSize int // 0 = unbounded read cache

	readCache map[hash.Hash]cacheValue
	readLRU   *lru.List[hash.Hash]

	writeCache map[hash.Hash]cacheValue
	writeLRU   *lru.List[hash.Hash]

	liveInserts map[hash.Hash]struct{}

	stats Stats

	metrics metrics.Sink
	log     *zap.Logger
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithMetrics attaches a metrics sink (pkg/metrics). Defaults to a no-op
// sink.
func WithMetrics(s metrics.Sink) Option {
	return func(b *Backend) {
		if s != nil {
			b.metrics = s
		}
	}
}

// WithLogger attaches a zap logger. Defaults to a no-op logger; the backend
// only ever logs rare events (flush, gc), never per-object operations.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// New constructs a Backend over db. cacheSize bounds the number of objects
// kept in the read cache (0 means unbounded); the write cache is always
// unbounded and is brought down to cacheSize only by an explicit
// FlushCacheEvictionsToDB call.
func New(db storedb.DB, cacheSize int, opts ...Option) *Backend {
	b := &Backend{
		db:          db,
		cacheSize:   cacheSize,
		readCache:   make(map[hash.Hash]cacheValue),
		readLRU:     lru.New[hash.Hash](),
		writeCache:  make(map[hash.Hash]cacheValue),
		writeLRU:    lru.New[hash.Hash](),
		liveInserts: make(map[hash.Hash]struct{}),
		metrics:     metrics.Noop(),
		log:         log.Nop(),
	}
	b.stats.Generation = uuid.New()
	for _, o := range opts {
		o(b)
	}
	return b
}

// Stats returns a copy of the backend's run-time counters.
func (b *Backend) Stats() Stats { return b.stats }

func (b *Backend) peek(h hash.Hash) (cacheValue, bool) {
	if v, ok := b.writeCache[h]; ok {
		return v, true
	}
	if v, ok := b.readCache[h]; ok {
		return v, true
	}
	return cacheValue{}, false
}

func (b *Backend) removeFromMemory(h hash.Hash) cacheValue {
	if v, ok := b.writeCache[h]; ok {
		delete(b.writeCache, h)
		b.writeLRU.Remove(h)
		return v
	}
	if v, ok := b.readCache[h]; ok {
		delete(b.readCache, h)
		b.readLRU.Remove(h)
		b.metrics.SetReadCacheEntries(len(b.readCache))
		return v
	}
	panic("backend: key must be in memory")
}

func (b *Backend) promote(h hash.Hash) {
	if b.writeLRU.Has(h) {
		b.writeLRU.MoveToFront(h)
		return
	}
	if b.readLRU.Has(h) {
		b.readLRU.MoveToFront(h)
	}
}

// cacheInsertNewKey adds v under h, choosing the write cache (if v is
// pending) or the read cache (otherwise). Panics if h is already in
// memory — every call site is expected to have just removed or never held
// h. Inserting into the read cache may evict its current LRU tail if the
// bound is exceeded.
func (b *Backend) cacheInsertNewKey(h hash.Hash, v cacheValue) {
	if _, ok := b.peek(h); ok {
		panic("backend: key must not already be in memory")
	}
	if v.isPending() {
		b.writeCache[h] = v
		b.writeLRU.PushFront(h)
		return
	}
	b.readCache[h] = v
	b.readLRU.PushFront(h)
	b.metrics.SetReadCacheEntries(len(b.readCache))
	if b.cacheSize > 0 && len(b.readCache) > b.cacheSize {
		evictHash, _ := b.readLRU.PopBack()
		delete(b.readCache, evictHash)
		b.metrics.IncEviction()
		b.metrics.SetReadCacheEntries(len(b.readCache))
	}
}

// Get returns the object for h, trying memory first and falling back to
// the DB. A hit moves h to the front of whichever cache holds it.
func (b *Backend) Get(h hash.Hash) (*storedb.Object, bool) {
	if _, ok := b.peek(h); ok {
		b.stats.GetCacheHits++
		b.metrics.IncCacheHit()
		v := b.removeFromMemory(h)
		if v.kind == stateUpdate {
			v.kind = stateReadAndUpdate
		}
		b.cacheInsertNewKey(h, v)
		got, _ := b.peek(h)
		return got.obj, true
	}

	b.stats.GetCacheMisses++
	b.metrics.IncCacheMiss()
	obj, found, err := b.db.GetNode(h)
	if err != nil {
		panic(fmt.Errorf("backend: db.GetNode: %w", err))
	}
	if !found {
		return nil, false
	}
	b.cacheInsertNewKey(h, cacheValue{kind: stateRead, obj: obj})
	return obj, true
}

// GetRootCount returns the root count for h, combining the DB's stored
// count with any pending in-memory root delta.
func (b *Backend) GetRootCount(h hash.Hash) uint32 {
	dbCount, err := b.db.GetRootCount(h)
	if err != nil {
		panic(fmt.Errorf("backend: db.GetRootCount: %w", err))
	}
	memDelta := int32(0)
	if v, ok := b.peek(h); ok {
		memDelta = v.delta.root
	}
	total := int64(dbCount) + int64(memDelta)
	if total < 0 {
		panic("backend: root count must be non-negative")
	}
	return uint32(total)
}

// GetRoots returns every key with a positive root count, combining the DB's
// stored roots map with pending in-memory deltas from the write cache.
func (b *Backend) GetRoots() map[hash.Hash]uint32 {
	roots, err := b.db.GetRoots()
	if err != nil {
		panic(fmt.Errorf("backend: db.GetRoots: %w", err))
	}
	for h := range b.writeCache {
		count := b.GetRootCount(h)
		if count > 0 {
			roots[h] = count
		} else {
			delete(roots, h)
		}
	}
	return roots
}

// Cache registers a freshly allocated (or freshly loaded) node in memory.
// Precondition: h is not currently a live insert (violating this is an
// arena bug and panics, per §4.2's "cache" contract). indirectChildren is
// the subset of the node's child references that are themselves Indirect
// (i.e. the hashes whose ref counts must be bumped) — Inline children carry
// no separate backend identity and are not counted.
func (b *Backend) Cache(h hash.Hash, data []byte, children []storedb.Child, indirectChildren []hash.Hash) {
	if _, ok := b.liveInserts[h]; ok {
		panic("backend: a key can't be cached more than once without being uncached")
	}
	b.liveInserts[h] = struct{}{}

	if _, ok := b.peek(h); ok {
		v := b.removeFromMemory(h)
		switch v.kind {
		case stateUpdate:
			v.kind = stateReadAndUpdate
		case stateCreateAndDelete:
			v.kind = stateCreateAndUpdate
		}
		b.cacheInsertNewKey(h, v)
		return
	}

	if obj, found, err := b.db.GetNode(h); err == nil && found {
		b.cacheInsertNewKey(h, cacheValue{kind: stateRead, obj: obj})
		return
	} else if err != nil {
		panic(fmt.Errorf("backend: db.GetNode: %w", err))
	}

	b.updateCounts(indirectChildren, delta{ref: 1})
	obj := &storedb.Object{Data: data, Children: children, RefCount: 0}
	b.cacheInsertNewKey(h, cacheValue{kind: stateCreate, obj: obj})
}

// Uncache signals that the caller no longer holds the live-insert token
// acquired by the matching Cache call. Panics if h was not a live insert.
func (b *Backend) Uncache(h hash.Hash) {
	if _, ok := b.liveInserts[h]; !ok {
		panic("backend: a key can't be uncached more times than it was cached")
	}
	delete(b.liveInserts, h)

	v, ok := b.peek(h)
	if !ok {
		return
	}
	switch v.kind {
	case stateCreate:
		if v.obj.RefCount != 0 {
			panic("backend: CacheValue Create must have zero ref_count")
		}
		b.removeFromMemory(h)
		b.updateCounts(indirectHashes(v.obj.Children), delta{ref: -1})
	case stateCreateAndUpdate:
		v.kind = stateCreateAndDelete
		b.writeCache[h] = v
	}
}

// Persist marks h as a GC root, incrementing its root count. The same key
// may be persisted multiple times; it must be unpersisted the same number
// of times before it stops acting as a root.
func (b *Backend) Persist(h hash.Hash) { b.updateCounts([]hash.Hash{h}, delta{root: 1}) }

// Unpersist decrements h's root count.
func (b *Backend) Unpersist(h hash.Hash) { b.updateCounts([]hash.Hash{h}, delta{root: -1}) }

// PreFetch performs a breadth-first load of the DAG rooted at h into the
// read cache, up to maxDepth levels (maxDepth < 0 means unbounded) and up
// to the read-cache capacity. If truncate is true, descent stops at nodes
// already in memory.
func (b *Backend) PreFetch(h hash.Hash, maxDepth int, truncate bool) {
	hashes, err := b.db.BFSGetNodes(h, maxDepth, truncate, func(k hash.Hash) bool {
		_, ok := b.peek(k)
		return ok
	})
	if err != nil {
		panic(fmt.Errorf("backend: db.BFSGetNodes: %w", err))
	}
	if b.cacheSize > 0 && len(hashes) > b.cacheSize {
		hashes = hashes[:b.cacheSize]
	}
	objs, err := b.db.BatchGetNodes(hashes)
	if err != nil {
		panic(fmt.Errorf("backend: db.BatchGetNodes: %w", err))
	}
	// Insert in reverse traversal order so the root ends up most recently
	// used and lru-age increases with depth, matching the original's
	// rationale.
	for i := len(hashes) - 1; i >= 0; i-- {
		k := hashes[i]
		if _, ok := b.peek(k); ok {
			continue
		}
		obj, ok := objs[k]
		if !ok {
			continue
		}
		b.cacheInsertNewKey(k, cacheValue{kind: stateRead, obj: obj})
	}
}

// updateCounts applies delta to every key in keys, walking each key's
// current cache-value through the §4.2 state-transition table, recursing
// into a key's own children when an unreferenced Create-family object is
// fully dropped as a result.
func (b *Backend) updateCounts(keys []hash.Hash, d delta) {
	for _, h := range keys {
		v, inMemory := b.peek(h)
		if !inMemory {
			obj, found, err := b.db.GetNode(h)
			if err != nil {
				panic(fmt.Errorf("backend: db.GetNode: %w", err))
			}
			if !found {
				panic("backend: can't update unknown object")
			}
			obj = applyDelta(obj, d)
			b.cacheInsertNewKey(h, cacheValue{kind: stateUpdate, obj: obj, delta: d})
			continue
		}

		wasPending := v.isPending()
		var (
			replace      *cacheValue
			remove       bool
			removeChild  []hash.Hash
		)

		switch v.kind {
		case stateRead:
			obj := applyDelta(v.obj, d)
			replace = &cacheValue{kind: stateReadAndUpdate, obj: obj, delta: d}

		case stateUpdate:
			obj := applyDelta(v.obj, d)
			if sum, nonZero := d.combine(v.delta); nonZero {
				replace = &cacheValue{kind: stateUpdate, obj: obj, delta: sum}
			} else {
				remove = true
			}

		case stateReadAndUpdate:
			obj := applyDelta(v.obj, d)
			if sum, nonZero := d.combine(v.delta); nonZero {
				replace = &cacheValue{kind: stateReadAndUpdate, obj: obj, delta: sum}
			} else {
				replace = &cacheValue{kind: stateRead, obj: obj}
			}

		case stateCreate:
			obj := applyDelta(v.obj, d)
			replace = &cacheValue{kind: stateCreateAndUpdate, obj: obj, delta: d}

		case stateCreateAndUpdate:
			obj := applyDelta(v.obj, d)
			if sum, nonZero := d.combine(v.delta); nonZero {
				replace = &cacheValue{kind: stateCreateAndUpdate, obj: obj, delta: sum}
			} else {
				replace = &cacheValue{kind: stateCreate, obj: obj}
			}

		case stateCreateAndDelete:
			obj := applyDelta(v.obj, d)
			if sum, nonZero := d.combine(v.delta); nonZero {
				replace = &cacheValue{kind: stateCreateAndDelete, obj: obj, delta: sum}
			} else {
				remove = true
				removeChild = indirectHashes(obj.Children)
			}
		}

		switch {
		case replace != nil:
			b.removeFromMemory(h)
			b.cacheInsertNewKey(h, *replace)
			if wasPending == replace.isPending() {
				b.promote(h)
			}
		case remove:
			b.removeFromMemory(h)
			if removeChild != nil {
				b.updateCounts(removeChild, delta{ref: -1})
			}
		}
	}
}

func indirectHashes(children []storedb.Child) []hash.Hash {
	var out []hash.Hash
	for _, c := range children {
		if c.Kind == storedb.ChildIndirect {
			out = append(out, c.Hash)
		}
	}
	return out
}

// flushToDB applies the DB-level effect of every entry in writes (which
// must already have been removed from memory), re-caching each object as a
// Read value, then issuing one atomic batch update.
func (b *Backend) flushToDB(writes map[hash.Hash]cacheValue) {
	var updates []storedb.Update
	for h, v := range writes {
		if v.kind == stateRead {
			panic("backend: unexpected Read value in flush set")
		}
		b.cacheInsertNewKey(h, cacheValue{kind: stateRead, obj: v.obj})

		switch v.kind {
		case stateUpdate, stateReadAndUpdate:
			if v.delta.ref != 0 {
				updates = append(updates, storedb.Update{Kind: storedb.UpdateInsert, Hash: h, Object: v.obj})
			}
			if v.delta.root != 0 {
				dbCount, err := b.db.GetRootCount(h)
				if err != nil {
					panic(fmt.Errorf("backend: db.GetRootCount: %w", err))
				}
				next := int64(dbCount) + int64(v.delta.root)
				if next < 0 {
					panic("backend: root count can't be negative")
				}
				updates = append(updates, storedb.Update{Kind: storedb.UpdateSetRootCount, Hash: h, RootCount: uint32(next)})
			}
		case stateCreateAndUpdate, stateCreateAndDelete:
			updates = append(updates, storedb.Update{Kind: storedb.UpdateInsert, Hash: h, Object: v.obj})
			if v.delta.root != 0 {
				if v.delta.root < 0 {
					panic("backend: root count can't be negative")
				}
				updates = append(updates, storedb.Update{Kind: storedb.UpdateSetRootCount, Hash: h, RootCount: uint32(v.delta.root)})
			}
		case stateCreate:
			updates = append(updates, storedb.Update{Kind: storedb.UpdateInsert, Hash: h, Object: v.obj})
		}
	}
	if err := b.db.BatchUpdate(updates); err != nil {
		panic(fmt.Errorf("backend: db.BatchUpdate: %w", err))
	}
	b.metrics.IncFlush()
	b.log.Debug("backend: flushed write-cache entries", zap.Int("entries", len(writes)), zap.Int("updates", len(updates)))
	b.stats.Generation = uuid.New()
}

// FlushCacheEvictionsToDB drains the write cache's LRU tail until its size
// is at most cacheSize, writing each drained entry's mutations to the DB.
// No-op if cacheSize is 0 (unbounded).
func (b *Backend) FlushCacheEvictionsToDB() {
	if b.cacheSize == 0 {
		return
	}
	evictions := make(map[hash.Hash]cacheValue)
	for b.writeLRU.Len() > b.cacheSize {
		h, _ := b.writeLRU.PopBack()
		v := b.writeCache[h]
		delete(b.writeCache, h)
		evictions[h] = v
	}
	b.flushToDB(evictions)
}

// FlushAllChangesToDB pushes every pending write-cache entry to the DB.
func (b *Backend) FlushAllChangesToDB() {
	writes := b.writeCache
	b.writeCache = make(map[hash.Hash]cacheValue)
	b.writeLRU = lru.New[hash.Hash]()
	b.flushToDB(writes)
}

// WriteCacheLen returns the number of entries currently pending flush.
func (b *Backend) WriteCacheLen() int { return len(b.writeCache) }

// GC performs mark-and-sweep collection: it starts from the set of keys
// with ref_count == 0 and root_count == 0 (excluding live inserts and
// roots), then iteratively walks their children, deleting unreachable
// objects from memory and the DB and decrementing the ref counts of their
// children in turn.
func (b *Backend) GC() {
	dbUnreachable, err := b.db.GetUnreachableKeys()
	if err != nil {
		panic(fmt.Errorf("backend: db.GetUnreachableKeys: %w", err))
	}

	var memUnreachable []hash.Hash
	for h, v := range b.writeCache {
		if v.obj.RefCount == 0 {
			memUnreachable = append(memUnreachable, h)
		}
	}

	rootKeys := make(map[hash.Hash]struct{})
	for h := range b.GetRoots() {
		rootKeys[h] = struct{}{}
	}
	for h := range b.liveInserts {
		rootKeys[h] = struct{}{}
	}

	var candidates []hash.Hash
	for _, h := range dbUnreachable {
		if _, root := rootKeys[h]; !root {
			candidates = append(candidates, h)
		}
	}
	for _, h := range memUnreachable {
		if _, root := rootKeys[h]; !root {
			candidates = append(candidates, h)
		}
	}

	var toDelete []hash.Hash
	for len(candidates) > 0 {
		h := candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		b.PreFetch(h, 1, false)
		v, ok := b.peek(h)
		if !ok {
			continue
		}
		node := v.obj

		children := indirectHashes(node.Children)
		b.updateCounts(children, delta{ref: -1})
		for _, c := range children {
			if _, root := rootKeys[c]; root {
				continue
			}
			obj, ok := b.Get(c)
			if ok && obj.RefCount == 0 {
				candidates = append(candidates, c)
			}
		}
		toDelete = append(toDelete, h)
	}

	var batch []storedb.Update
	for _, h := range toDelete {
		delete(b.writeCache, h)
		b.writeLRU.Remove(h)
		delete(b.readCache, h)
		b.readLRU.Remove(h)
		batch = append(batch, storedb.Update{Kind: storedb.UpdateDelete, Hash: h})
	}
	if len(batch) > 0 {
		if err := b.db.BatchUpdate(batch); err != nil {
			panic(fmt.Errorf("backend: db.BatchUpdate: %w", err))
		}
	}
	b.metrics.IncGCSweep(len(toDelete))
	b.log.Debug("backend: gc sweep", zap.Int("collected", len(toDelete)))
}
