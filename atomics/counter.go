// Package atomics provides the two linearizable building blocks the rest of
// the core composes: a compare-and-swap counter and a deadline-aware bounded
// queue. Nothing here takes a named lock (lockmgr.Registry) — these are the
// leaf primitives lockmgr itself uses to keep its statistics counters
// lock-free (spec section 4.1: "Statistics counters are themselves updated
// with atomic compare-and-swap, never under the lock").
package atomics

import "sync/atomic"

// Counter is a linearizable int64 counter.
type Counter struct {
	v int64
}

// NewCounter returns a Counter initialized to v.
func NewCounter(v int64) *Counter {
	return &Counter{v: v}
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	return atomic.LoadInt64(&c.v)
}

// Set unconditionally stores v.
func (c *Counter) Set(v int64) {
	atomic.StoreInt64(&c.v, v)
}

// Increment adds 1 and returns the new value.
func (c *Counter) Increment() int64 {
	return atomic.AddInt64(&c.v, 1)
}

// Decrement subtracts 1 and returns the new value.
func (c *Counter) Decrement() int64 {
	return atomic.AddInt64(&c.v, -1)
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.v, delta)
}

// CompareAndSwap stores new in place of expected and returns true iff the
// observed value was expected at the linearization point.
func (c *Counter) CompareAndSwap(expected, new int64) bool {
	return atomic.CompareAndSwapInt64(&c.v, expected, new)
}
