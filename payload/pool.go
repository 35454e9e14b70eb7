package payload

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// DefaultPacketBufferSize matches packet.MaxLogicalLength, the largest a
// single compressed-vector packet payload can be before compression.
const DefaultPacketBufferSize = 64 * 1024

// BufferPool is a GC-friendly mutex-protected pool of reusable byte buffers
// sized for packet payload compression/decompression. Unlike sync.Pool its
// contents survive garbage collection, which matters for the decode/encode
// hot path where a packet is processed on every pull.
type BufferPool struct {
	mu      sync.Mutex
	items   []*bytes.Buffer
	newFunc func() *bytes.Buffer

	hits    atomic.Uint64
	misses  atomic.Uint64
	created atomic.Uint64
}

// NewBufferPool creates a pool whose buffers are pre-allocated to capacity
// bytes. A small number of buffers are pre-warmed; the pool grows on demand
// beyond that under load.
func NewBufferPool(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultPacketBufferSize
	}
	const prewarm = 8
	bp := &BufferPool{
		items: make([]*bytes.Buffer, 0, prewarm),
	}
	bp.newFunc = func() *bytes.Buffer {
		bp.created.Add(1)
		return bytes.NewBuffer(make([]byte, 0, capacity))
	}
	for i := 0; i < prewarm; i++ {
		bp.items = append(bp.items, bp.newFunc())
	}
	return bp
}

// Get retrieves a buffer from the pool, creating a new one if empty.
func (bp *BufferPool) Get() *bytes.Buffer {
	bp.mu.Lock()
	if len(bp.items) == 0 {
		bp.mu.Unlock()
		bp.misses.Add(1)
		return bp.newFunc()
	}
	bp.hits.Add(1)
	item := bp.items[len(bp.items)-1]
	bp.items = bp.items[:len(bp.items)-1]
	bp.mu.Unlock()
	return item
}

// Put returns a buffer to the pool after resetting it.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	bp.mu.Lock()
	bp.items = append(bp.items, buf)
	bp.mu.Unlock()
}

// Metrics returns cumulative pool hit/miss/creation counters.
func (bp *BufferPool) Metrics() (hits, misses, created uint64) {
	return bp.hits.Load(), bp.misses.Load(), bp.created.Load()
}

// Shared is the package-level pool used by packetcache and cvwriter for
// packet payload staging buffers.
var Shared = NewBufferPool(DefaultPacketBufferSize)
