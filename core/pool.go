package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// bufferPool hands out reusable buffers for encoding manifest and index files.
// Buffers larger than maxRetained are dropped on Put so one huge manifest does not
// pin memory for the life of the process.
type bufferPool struct {
	mu          sync.Mutex
	items       []*bytes.Buffer
	capacity    int
	maxRetained int

	hits    atomic.Uint64
	misses  atomic.Uint64
	dropped atomic.Uint64
}

// DefaultEncodeBufferSize is the initial capacity of pooled encode buffers.
const DefaultEncodeBufferSize = 64 * 1024

// BufferPool is the shared pool used by file codecs and compressors.
var BufferPool = NewBufferPool(DefaultEncodeBufferSize, 64*1024*1024)

// NewBufferPool creates a pool whose new buffers start at capacity bytes and which
// retains buffers of at most maxRetained bytes.
func NewBufferPool(capacity, maxRetained int) *bufferPool {
	return &bufferPool{capacity: capacity, maxRetained: maxRetained}
}

// Get retrieves a buffer from the pool. If the pool is empty, it creates a new one.
func (bp *bufferPool) Get() *bytes.Buffer {
	bp.mu.Lock()
	if n := len(bp.items); n > 0 {
		item := bp.items[n-1]
		bp.items = bp.items[:n-1]
		bp.mu.Unlock()
		bp.hits.Add(1)
		return item
	}
	bp.mu.Unlock()
	bp.misses.Add(1)
	return bytes.NewBuffer(make([]byte, 0, bp.capacity))
}

// Put returns a buffer to the pool.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if bp.maxRetained > 0 && buf.Cap() > bp.maxRetained {
		bp.dropped.Add(1)
		return
	}
	buf.Reset()
	bp.mu.Lock()
	bp.items = append(bp.items, buf)
	bp.mu.Unlock()
}

// GetMetrics returns the current metrics for the pool.
func (bp *bufferPool) GetMetrics() (hits, misses, dropped uint64, size int) {
	bp.mu.Lock()
	size = len(bp.items)
	bp.mu.Unlock()
	return bp.hits.Load(), bp.misses.Load(), bp.dropped.Load(), size
}
