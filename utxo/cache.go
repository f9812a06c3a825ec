package utxo

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// snapshotCache implements the reference-counted, LRU-backed cache of spec
// section 4.3: cap snapshots is the soft target retained once every
// snapshot's references drop to zero, evicting the least-recently-accessed
// zero-reference entry first on overflow. This is the author's
// reconstruction called out as an open question in spec section 9(a) — the
// source permits cache entries to live indefinitely under read-heavy load.
//
// golang-lru's own automatic eviction is never allowed to fire against a
// still-referenced entry: that would break "snapshots are stable against
// all subsequent updates" (spec section 4.3) the moment referenced
// snapshots in flight exceed the soft cap, e.g. several long-running
// validators each holding a snapshot across several version bumps. The
// underlying cache's hard capacity therefore always grows to cover every
// currently-referenced entry plus the one being added — golang-lru v0.5.x
// has no capacity-raising call, so growLocked rebuilds it at double size
// and replays every entry back through Add, oldest first, preserving
// recency order. The hard capacity only ever grows; it is never shrunk
// back down, since live-reference pressure is expected to be transient
// relative to the process lifetime.
type snapshotCache struct {
	mu       sync.Mutex
	cap      int // soft target: evictLocked's trigger once all refs clear
	capacity int // current hard capacity of the underlying lru.Cache
	order    *lru.Cache
}

func newSnapshotCache(capacity int) *snapshotCache {
	if capacity <= 0 {
		capacity = 1
	}
	initial := capacity * 4
	order, err := lru.New(initial)
	if err != nil {
		panic(err)
	}
	return &snapshotCache{cap: capacity, capacity: initial, order: order}
}

func (c *snapshotCache) get(version int64) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.order.Get(version)
	if !ok {
		return nil, false
	}
	return v.(*Snapshot), true
}

func (c *snapshotCache) put(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
	if c.order.Len()+1 > c.capacity {
		c.growLocked()
	}
	c.order.Add(s.version, s)
	c.evictLocked()
}

// evictLocked removes zero-reference entries oldest-first while the cache
// is over its soft target cap. It never touches a referenced entry, and
// gives up (leaving the cache over cap) once none remain to evict.
func (c *snapshotCache) evictLocked() {
	for c.order.Len() > c.cap {
		evicted := false
		for _, key := range c.order.Keys() {
			v, ok := c.order.Peek(key)
			if !ok {
				continue
			}
			if v.(*Snapshot).refs.Get() == 0 {
				c.order.Remove(key)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// growLocked doubles the underlying cache's hard capacity and rebuilds it,
// called only when the cache is full of entries evictLocked could not
// remove (all still referenced). Doubling rather than growing by one
// amortizes the rebuild cost under sustained reference pressure.
func (c *snapshotCache) growLocked() {
	c.capacity *= 2
	grown, err := lru.New(c.capacity)
	if err != nil {
		panic(err)
	}
	for _, key := range c.order.Keys() {
		if v, ok := c.order.Peek(key); ok {
			grown.Add(key, v)
		}
	}
	c.order = grown
}

func (c *snapshotCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
