// Package pool provides goroutine and object pooling for controlled
// concurrency and reduced allocation pressure on hot paths.
package pool

import "sync"

// SlicePool recycles fixed-capacity slices so repeated short-lived
// allocations (e.g. a streaming copy buffer) don't hit the allocator
// on every request.
type SlicePool[T any] struct {
	pool     sync.Pool
	initSize int
}

// NewSlicePool creates a new slice pool whose Get() returns slices with
// at least initSize capacity.
func NewSlicePool[T any](initSize int) *SlicePool[T] {
	return &SlicePool[T]{
		initSize: initSize,
		pool: sync.Pool{
			New: func() any {
				return make([]T, 0, initSize)
			},
		},
	}
}

// Get retrieves a slice from the pool.
func (p *SlicePool[T]) Get() []T {
	return p.pool.Get().([]T)
}

// Put returns a slice to the pool, resetting its length but keeping
// its capacity.
func (p *SlicePool[T]) Put(s []T) {
	s = s[:0]
	p.pool.Put(s)
}
