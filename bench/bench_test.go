// Package bench provides reproducible micro-benchmarks for merkstore's
// container layer.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks intentionally use a single key/value shape so results are
// comparable across versions:
//   - Key   - uint64, via BigEndianUint64Codec so ordered-map traversal
//     order actually agrees with numeric order (§6.2).
//   - Value - a fixed 64-byte string.
//
// We measure:
//  1. Insert         - write-only workload against container.OrderedMap
//  2. Get            - read-only workload (after warm-up)
//  3. GetParallel    - concurrent reads; safe once insertion has stopped,
//     since only mutating access to an Arena needs external
//     synchronization.
//  4. GetOrInsert    - 90% hits, 10% misses, each miss paying an Insert —
//     the arena/backend analogue of a cache's GetOrLoad.
//
// Results are printed in ns/op + alloc/op so CI can diff via benchstat.
//
// NOTE: functional tests live in each package's own *_test.go; this file is
// only for performance.
//
// © 2025 merkstore authors. MIT License.

package bench

import (
	"math/rand"
	"runtime"
	"testing"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/backend"
	"github.com/voskan/merkstore/pkg/container"
	"github.com/voskan/merkstore/pkg/storedb"
)

/* -------------------------------------------------------------------------
   Test harness helpers
   ------------------------------------------------------------------------- */

const keys = 1 << 16 // 64K keys for dataset: big enough to thrash caches, small enough for -bench runs to finish quickly.

var value64 = func() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = byte(i)
	}
	return string(b)
}()

func newTestMap() *container.OrderedMap[uint64, string] {
	a := arena.New(backend.New(storedb.NewMemDB(), 0))
	return container.NewOrderedMap[uint64, string](a, container.BigEndianUint64Codec, container.StringCodec)
}

// global dataset reused across benches to avoid reallocating large slices.
var ds = func() []uint64 {
	r := rand.New(rand.NewSource(42))
	arr := make([]uint64, keys)
	for i := range arr {
		arr[i] = r.Uint64()
	}
	return arr
}()

/* -------------------------------------------------------------------------
   Benchmarks
   ------------------------------------------------------------------------- */

func BenchmarkInsert(b *testing.B) {
	m := newTestMap()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := ds[i&(keys-1)]
		m.Insert(key, value64)
	}
}

func BenchmarkGet(b *testing.B) {
	m := newTestMap()
	// pre-populate (warm-up)
	for _, k := range ds {
		m.Insert(k, value64)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		m.Get(k)
	}
}

func BenchmarkGetParallel(b *testing.B) {
	m := newTestMap()
	for _, k := range ds {
		m.Insert(k, value64)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			m.Get(ds[idx])
		}
	})
}

func BenchmarkGetOrInsert(b *testing.B) {
	m := newTestMap()
	// Preload 90% of keys to simulate mixed hit/miss.
	for i, k := range ds {
		if i%10 != 0 { // 90% fill
			m.Insert(k, value64)
		}
	}
	var misses uint64
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		if _, ok := m.Get(k); !ok {
			misses++
			m.Insert(k, value64)
		}
	}
	b.ReportMetric(float64(misses)/float64(b.N)*100, "miss-%")
}

/* -------------------------------------------------------------------------
   Utility - ensure deterministic Rand for repeatability
   ------------------------------------------------------------------------- */

func init() {
	rand.Seed(42)
	runtime.GOMAXPROCS(runtime.NumCPU())
}
