package frame

import (
	"sync"
	"sync/atomic"
)

// BufferPool recycles frame- and bit-plane-sized buffers between jobs so a
// long encode does not churn the allocator. Buffers are sized per pool at
// construction.
type BufferPool struct {
	size int
	pool *sync.Pool

	gets   int64
	misses int64
}

// NewBufferPool returns a pool handing out buffers of exactly size bytes.
func NewBufferPool(size int) *BufferPool {
	p := &BufferPool{size: size}
	p.pool = &sync.Pool{
		New: func() interface{} {
			atomic.AddInt64(&p.misses, 1)
			return make([]byte, size)
		},
	}
	return p
}

// Get returns a buffer of the pool's size. Contents are unspecified.
func (p *BufferPool) Get() []byte {
	buf := p.pool.Get().([]byte)
	atomic.AddInt64(&p.gets, 1)
	return buf
}

// Put returns a buffer to the pool. Buffers with less capacity than the
// pool size are dropped; larger ones are resliced to the pool size.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:p.size])
}

// Stats reports pool activity for diagnostics.
func (p *BufferPool) Stats() (hits, misses int64) {
	gets := atomic.LoadInt64(&p.gets)
	misses = atomic.LoadInt64(&p.misses)
	return gets - misses, misses
}
