// Package metrics is a thin abstraction over Prometheus, mirroring the
// teacher's pkg/metrics.go: a no-op sink by default, and a real Prometheus
// sink only when the caller opts in via WithMetrics, so the hot path never
// pays for metric updates unless metrics are actually wanted.
//
// © 2025 merkstore authors. MIT License.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink is the interface the backend reports through (backend.WithMetrics).
// Noop returns the disabled implementation and New a Prometheus-backed one.
type Sink interface {
	IncCacheHit()
	IncCacheMiss()
	IncEviction()
	IncFlush()
	IncGCSweep(collected int)
	SetWriteCacheBytes(n int64)
	SetReadCacheEntries(n int)
}

type noop struct{}

func (noop) IncCacheHit()               {}
func (noop) IncCacheMiss()              {}
func (noop) IncEviction()               {}
func (noop) IncFlush()                  {}
func (noop) IncGCSweep(int)             {}
func (noop) SetWriteCacheBytes(int64)   {}
func (noop) SetReadCacheEntries(int)    {}

// Noop returns the disabled sink (the default).
func Noop() Sink { return noop{} }

type prom struct {
	hits, misses, evictions, flushes, gcCollected prometheus.Counter
	writeCacheBytes                               prometheus.Gauge
	readCacheEntries                               prometheus.Gauge
}

// New constructs a Prometheus-backed sink registered against reg. Passing a
// nil registry returns the no-op sink.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return noop{}
	}
	p := &prom{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkstore", Name: "backend_cache_hits_total",
			Help: "Number of backend.Get hits served from memory.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkstore", Name: "backend_cache_misses_total",
			Help: "Number of backend.Get misses requiring a DB read.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkstore", Name: "backend_read_cache_evictions_total",
			Help: "Number of read-cache entries evicted by LRU.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkstore", Name: "backend_flushes_total",
			Help: "Number of flush operations applied to the DB.",
		}),
		gcCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkstore", Name: "backend_gc_collected_total",
			Help: "Number of objects collected by mark-and-sweep GC.",
		}),
		writeCacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "merkstore", Name: "backend_write_cache_bytes",
			Help: "Approximate bytes of pending (uncommitted) write-cache objects.",
		}),
		readCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "merkstore", Name: "backend_read_cache_entries",
			Help: "Number of objects currently held in the read cache.",
		}),
	}
	reg.MustRegister(p.hits, p.misses, p.evictions, p.flushes, p.gcCollected,
		p.writeCacheBytes, p.readCacheEntries)
	return p
}

func (p *prom) IncCacheHit()  { p.hits.Inc() }
func (p *prom) IncCacheMiss() { p.misses.Inc() }
func (p *prom) IncEviction()  { p.evictions.Inc() }
func (p *prom) IncFlush()     { p.flushes.Inc() }
func (p *prom) IncGCSweep(collected int) {
	p.gcCollected.Add(float64(collected))
}
func (p *prom) SetWriteCacheBytes(n int64)   { p.writeCacheBytes.Set(float64(n)) }
func (p *prom) SetReadCacheEntries(n int)    { p.readCacheEntries.Set(float64(n)) }
