package arena

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/voskan/merkstore/pkg/backend"
	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/storedb"
)

// DefaultInlineThreshold bounds, in encoded bytes, how large a value's own
// payload plus its children's hash references may be before allocation
// switches from an Inline child representation to an Indirect one (§3.1).
const DefaultInlineThreshold = 64

// metaEntry is the arena's own bookkeeping for one content hash: how many
// live Sp handles (across however many Go types happen to share that hash)
// currently exist in this process. This is independent of the backend's own
// on-disk reference counts, which track parent/child edges, not in-memory
// pointer liveness.
type metaEntry struct {
	handles int
}

// Arena is the in-memory handle layer over a Backend (§3.3/§3.4). Three
// internal locks guard disjoint state — metaMu, dedupMu, and the Backend's
// own mutex reached only via backendMu — and must always be acquired in that
// order (metadata, then dedup, then backend) wherever more than one is held
// at once, to avoid lock-order inversions between goroutines allocating and
// releasing at the same time.
type Arena struct {
	metaMu   sync.Mutex
	metadata map[hash.Hash]*metaEntry

	dedupMu sync.Mutex
	dedup   map[dedupKey]any

	backendMu sync.Mutex
	backend   *backend.Backend

	group singleflight.Group

	hasher          hash.Hasher
	inlineThreshold int
	log             *zap.Logger
}

// Option configures an Arena at construction time.
type Option func(*Arena)

// WithInlineThreshold overrides DefaultInlineThreshold.
func WithInlineThreshold(n int) Option {
	return func(a *Arena) { a.inlineThreshold = n }
}

// WithLogger attaches a logger; the default is a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(a *Arena) { a.log = l }
}

// New constructs an Arena backed by b.
func New(b *backend.Backend, opts ...Option) *Arena {
	a := &Arena{
		metadata:        make(map[hash.Hash]*metaEntry),
		dedup:           make(map[dedupKey]any),
		backend:         b,
		hasher:          hash.New(),
		inlineThreshold: DefaultInlineThreshold,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Size returns the number of distinct content hashes this arena currently
// tracks handles for.
func (a *Arena) Size() int {
	a.metaMu.Lock()
	defer a.metaMu.Unlock()
	return len(a.metadata)
}

// track registers h in metadata if it is not already tracked, establishing a
// backend live-insert via Cache in the process. It is a no-op if h is
// already tracked, matching the Rust original's track_locked.
func (a *Arena) track(h hash.Hash, data []byte, children []storedb.Child) {
	a.metaMu.Lock()
	_, ok := a.metadata[h]
	if !ok {
		a.metadata[h] = &metaEntry{}
	}
	a.metaMu.Unlock()
	if ok {
		return
	}
	a.backendMu.Lock()
	a.backend.Cache(h, data, children, indirectHashesOf(children))
	a.backendMu.Unlock()
}

// incrementRef bumps the handle count for an already-tracked hash. It panics
// if h has no metadata entry: callers must track() (directly, or via a prior
// allocation/decode) before ever incrementing.
func (a *Arena) incrementRef(h hash.Hash) {
	a.metaMu.Lock()
	defer a.metaMu.Unlock()
	e, ok := a.metadata[h]
	if !ok {
		panic(fmt.Sprintf("arena: incrementRef on untracked hash %s", h))
	}
	e.handles++
}

// decrementRef drops the handle count for h, removing its metadata entry and
// asking the backend to uncache it once the count reaches zero. It reports
// whether this call was the one that dropped the count to zero, so callers
// that know h's concrete Go type (Sp[T].Release) can also evict h's dedup
// cache entry rather than leaving a dead weak pointer behind.
func (a *Arena) decrementRef(h hash.Hash) bool {
	a.metaMu.Lock()
	e, ok := a.metadata[h]
	if !ok {
		a.metaMu.Unlock()
		return false
	}
	e.handles--
	remove := e.handles <= 0
	if remove {
		delete(a.metadata, h)
	}
	a.metaMu.Unlock()
	if remove {
		a.backendMu.Lock()
		a.backend.Uncache(h)
		a.backendMu.Unlock()
	}
	return remove
}

// Persist notifies the backend that h should be treated as a GC root.
func (a *Arena) Persist(h hash.Hash) {
	a.backendMu.Lock()
	defer a.backendMu.Unlock()
	a.backend.Persist(h)
}

// Unpersist reverses a prior Persist.
func (a *Arena) Unpersist(h hash.Hash) {
	a.backendMu.Lock()
	defer a.backendMu.Unlock()
	a.backend.Unpersist(h)
}

// GC runs the backend's mark-and-sweep collector.
func (a *Arena) GC() { a.backendMu.Lock(); defer a.backendMu.Unlock(); a.backend.GC() }

// FlushAllChangesToDB flushes every pending mutation to the backing store.
func (a *Arena) FlushAllChangesToDB() {
	a.backendMu.Lock()
	defer a.backendMu.Unlock()
	a.backend.FlushAllChangesToDB()
}

// FlushCacheEvictionsToDB flushes only what the write cache's bound forces
// out.
func (a *Arena) FlushCacheEvictionsToDB() {
	a.backendMu.Lock()
	defer a.backendMu.Unlock()
	a.backend.FlushCacheEvictionsToDB()
}

func indirectHashesOf(children []storedb.Child) []hash.Hash {
	var out []hash.Hash
	for _, c := range children {
		if c.Kind == storedb.ChildIndirect {
			out = append(out, c.Hash)
		}
	}
	return out
}
