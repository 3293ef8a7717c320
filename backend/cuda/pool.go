package cuda

// Pool caches freed GPU memory buffers by size for reuse.
// Avoids expensive cuMemAlloc/cuMemFree when a host program repeatedly
// allocates globals and gradient buffers of the same few sizes around
// kernel launches.
//
// Design:
//   - Buckets keyed by 256-byte-aligned size
//   - Get() returns cached buffer or allocates new
//   - Put() returns buffer to pool (no cuMemFree)
//   - FreeAll() releases everything at shutdown
//   - Thread-safe via mutex

import (
	"sync"
)

type Pool struct {
	mu      sync.Mutex
	backend *Backend
	buckets map[int][]*Storage // aligned size -> available buffers
	stats   PoolStats
}

type PoolStats struct {
	Hits       int64 // reused from pool
	Misses     int64 // new allocation
	AllocBytes int64 // total allocated
	PoolSize   int   // current buffers in pool
}

func NewPool(b *Backend) *Pool {
	return &Pool{
		backend: b,
		buckets: make(map[int][]*Storage),
	}
}

// alignSize rounds up to 256-byte boundary for cache-friendly reuse.
// Also prevents fragmentation from many similar-but-not-identical sizes.
func alignSize(byteLen int) int {
	return ((byteLen + 255) / 256) * 256
}

// Get returns a buffer of at least byteLen bytes, reusing a cached one
// when a bucket of the aligned size has any.
func (p *Pool) Get(byteLen int) *Storage {
	aligned := alignSize(byteLen)

	p.mu.Lock()
	if bufs, ok := p.buckets[aligned]; ok && len(bufs) > 0 {
		s := bufs[len(bufs)-1]
		p.buckets[aligned] = bufs[:len(bufs)-1]
		p.stats.Hits++
		p.stats.PoolSize--
		p.mu.Unlock()
		return s
	}
	p.stats.Misses++
	p.stats.AllocBytes += int64(aligned)
	p.mu.Unlock()

	return p.backend.Alloc(aligned).(*Storage)
}

// Put returns a buffer to the pool for later reuse.
func (p *Pool) Put(s *Storage) {
	if s == nil || s.dptr == 0 {
		return
	}
	p.mu.Lock()
	aligned := alignSize(s.ByteLen())
	p.buckets[aligned] = append(p.buckets[aligned], s)
	p.stats.PoolSize++
	p.mu.Unlock()
}

// FreeAll releases every cached buffer.
func (p *Pool) FreeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for size, bufs := range p.buckets {
		for _, s := range bufs {
			s.Free()
		}
		delete(p.buckets, size)
	}
	p.stats.PoolSize = 0
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
