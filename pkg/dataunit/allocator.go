package dataunit

import "sync"

// Allocator hands out scratch byte slices for wire encoding/decoding.
// Units allocated from one Allocator must be released on that same
// *Allocator — call Release on the Allocator you got the buffer from,
// not a different one.
type Allocator interface {
	Get(size int) []byte
	Release(b []byte)
}

// AllocatorFactory chooses the allocation strategy for a Unit at
// construction time: arena, pool, or default allocation.
type AllocatorFactory interface {
	New() Allocator
}

// defaultAllocator makes fresh slices and drops them on Release; it is
// the zero-config choice and the one used when no factory is supplied.
type defaultAllocator struct{}

func (defaultAllocator) Get(size int) []byte { return make([]byte, 0, size) }
func (defaultAllocator) Release([]byte)       {}

// DefaultAllocatorFactory builds allocators with no pooling.
type DefaultAllocatorFactory struct{}

func (DefaultAllocatorFactory) New() Allocator { return defaultAllocator{} }

// poolAllocator recycles slices through a sync.Pool.
type poolAllocator struct {
	pool *sync.Pool
}

func (p *poolAllocator) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, 0, size)
	}
	return b[:0]
}

func (p *poolAllocator) Release(b []byte) {
	p.pool.Put(b[:0]) //nolint:staticcheck // intentional reuse of backing array
}

// PoolAllocatorFactory builds allocators backed by a shared sync.Pool.
// It models the "pool" strategy: buffers are recycled across Units
// instead of freed and reallocated.
type PoolAllocatorFactory struct {
	pool *sync.Pool
}

// NewPoolAllocatorFactory creates a factory whose allocators all draw
// from one shared pool.
func NewPoolAllocatorFactory() *PoolAllocatorFactory {
	return &PoolAllocatorFactory{pool: &sync.Pool{New: func() any { return make([]byte, 0, 64) }}}
}

func (f *PoolAllocatorFactory) New() Allocator { return &poolAllocator{pool: f.pool} }

// arenaAllocator bump-allocates out of a single growing slab and never
// releases individual buffers; the whole arena is reclaimed at once by
// dropping the Allocator, modeling the "arena" strategy.
type arenaAllocator struct {
	slab []byte
}

func (a *arenaAllocator) Get(size int) []byte {
	if len(a.slab) < size {
		a.slab = make([]byte, 4096+size)
	}
	b := a.slab[:size:size]
	a.slab = a.slab[size:]
	return b[:0]
}

func (a *arenaAllocator) Release([]byte) {} // arena reclaims in bulk, not per-buffer

// ArenaAllocatorFactory builds arena allocators, one arena per Unit.
type ArenaAllocatorFactory struct{}

func (ArenaAllocatorFactory) New() Allocator { return &arenaAllocator{} }
