// Package packetcache implements the read-through packet cache of §4.1: a
// fixed-capacity LRU over whole packets keyed by logical offset, with
// scoped pins so a caller can hold a packet's bytes live across a decode
// call without another Lock evicting it out from under them.
package packetcache

import (
	"container/list"
	"context"
	"expvar"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/e57io/e57cv/e57err"
	"github.com/e57io/e57cv/imagefile"
	"github.com/e57io/e57cv/packet"
)

// DefaultCapacity is the default number of packets the cache holds. The
// engine pins at most two packets at once (§4.1's "at most 2 simultaneous
// pins" invariant), so a small capacity is enough to absorb LRU churn from
// lookahead without thrashing.
const DefaultCapacity = 32

type entry struct {
	offset int64
	data   []byte
	pins   int
}

// Cache is a fixed-capacity, pin-aware LRU over packet bytes read from a
// CheckedFile.
type Cache struct {
	mu       sync.Mutex
	capacity int
	file     imagefile.CheckedFile
	tracer   trace.Tracer

	lruList *list.List // of *entry, front = most recently used
	byOff   map[int64]*list.Element

	hits   *expvar.Int
	misses *expvar.Int
	evicts *expvar.Int
}

// New constructs a Cache over file with the given packet capacity. If
// capacity <= 0, DefaultCapacity is used. tracer may be nil.
func New(file imagefile.CheckedFile, capacity int, tracer trace.Tracer) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		file:     file,
		tracer:   tracer,
		lruList:  list.New(),
		byOff:    make(map[int64]*list.Element),
		hits:     new(expvar.Int),
		misses:   new(expvar.Int),
		evicts:   new(expvar.Int),
	}
}

// Pin holds a live reference to a packet's cached bytes. Release must be
// called exactly once, typically via defer, before the next Lock that could
// need to evict this entry.
type Pin struct {
	c     *Cache
	elem  *list.Element
	bytes []byte
}

// Bytes returns the packet's raw bytes, valid until Release.
func (p *Pin) Bytes() []byte { return p.bytes }

// Release unpins the packet, making it eligible for eviction again.
func (p *Pin) Release() {
	if p == nil || p.c == nil {
		return
	}
	p.c.mu.Lock()
	e := p.elem.Value.(*entry)
	if e.pins > 0 {
		e.pins--
	}
	p.c.mu.Unlock()
	p.c = nil
}

// Lock returns a pinned view of the packet at logicalOffset, reading it
// through from the backing file on a miss. packet.HeaderSize bytes are read
// first to discover the packet's logical length; the whole packet is then
// read in a second pass. Callers must Release the returned Pin.
func (c *Cache) Lock(ctx context.Context, logicalOffset int64) (*Pin, error) {
	var span trace.Span
	if c.tracer != nil {
		_, span = c.tracer.Start(ctx, "packetcache.Lock")
		span.SetAttributes(attribute.Int64("packet.offset", logicalOffset))
		defer span.End()
	}

	c.mu.Lock()
	if elem, ok := c.byOff[logicalOffset]; ok {
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.pins++
		c.mu.Unlock()
		c.hits.Add(1)
		return &Pin{c: c, elem: elem, bytes: e.data}, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	data, err := c.readPacket(logicalOffset)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.byOff[logicalOffset]; ok {
		// Lost a race with a concurrent Lock for the same offset.
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.pins++
		return &Pin{c: c, elem: elem, bytes: e.data}, nil
	}

	c.evictUnlocked()
	e := &entry{offset: logicalOffset, data: data, pins: 1}
	elem := c.lruList.PushFront(e)
	c.byOff[logicalOffset] = elem
	return &Pin{c: c, elem: elem, bytes: data}, nil
}

func (c *Cache) readPacket(logicalOffset int64) ([]byte, error) {
	head := make([]byte, packet.HeaderSize)
	if _, err := c.file.ReadAt(logicalOffset, head); err != nil {
		return nil, fmt.Errorf("packetcache: read header at %d: %w", logicalOffset, err)
	}
	hdr, err := packet.ParseHeader(head)
	if err != nil {
		return nil, err
	}
	full := make([]byte, hdr.LogicalLength())
	if _, err := c.file.ReadAt(logicalOffset, full); err != nil {
		return nil, fmt.Errorf("packetcache: read body at %d: %w", logicalOffset, err)
	}
	return full, nil
}

// evictUnlocked evicts LRU entries with zero pins until the cache is under
// capacity. Must be called with c.mu held. If every entry is pinned and the
// cache is still at capacity, it allows the cache to grow past capacity
// rather than violate a live Pin.
func (c *Cache) evictUnlocked() {
	for c.lruList.Len() >= c.capacity {
		victim := (*list.Element)(nil)
		for e := c.lruList.Back(); e != nil; e = e.Prev() {
			if e.Value.(*entry).pins == 0 {
				victim = e
				break
			}
		}
		if victim == nil {
			return
		}
		ev := c.lruList.Remove(victim).(*entry)
		delete(c.byOff, ev.offset)
		c.evicts.Add(1)
	}
}

// Invalidate drops a cached packet that is not pinned; a pinned packet is
// refused with an Internal error and an unknown offset is a no-op. Nothing
// in this module calls it.
func (c *Cache) Invalidate(logicalOffset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.byOff[logicalOffset]
	if !ok {
		return nil
	}
	if elem.Value.(*entry).pins > 0 {
		return e57err.Internal("packetcache: cannot invalidate a pinned packet")
	}
	c.lruList.Remove(elem)
	delete(c.byOff, logicalOffset)
	return nil
}

// Len returns the number of packets currently resident in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Metrics returns cumulative hit/miss/eviction counts, exported via expvar
// under <prefix>.hits/.misses/.evictions by BindExpvar(prefix).
func (c *Cache) Metrics() (hits, misses, evictions int64) {
	return c.hits.Value(), c.misses.Value(), c.evicts.Value()
}

// BindExpvar publishes the cache's counters under the given expvar prefix.
// Safe to call once per process per prefix.
func (c *Cache) BindExpvar(prefix string) {
	expvar.Publish(prefix+".hits", c.hits)
	expvar.Publish(prefix+".misses", c.misses)
	expvar.Publish(prefix+".evictions", c.evicts)
}
