package lockmgr

import (
	"sync"
	"time"

	"github.com/berith-foundation/chaincore/atomics"
)

// namedLock is one entry in the Registry: a reader-writer lock with writer
// preference (spec section 4.1 — "while any thread waits for exclusive
// mode, new shared acquisitions block") and per-lock statistics maintained
// with compare-and-swap, never under lk.mu.
type namedLock struct {
	name string
	rank Rank

	mu               sync.Mutex
	sharedHolders    map[ThreadID]struct{}
	exclusiveHolder  ThreadID
	hasExclusive     bool
	waitingExclusive int
	notify           chan struct{} // closed and replaced whenever state changes

	stats lockStats
}

type lockStats struct {
	acquisitions     atomics.Counter
	contentions      atomics.Counter
	deadlockAttempts atomics.Counter
	maxWaitNanos     atomics.Counter
}

func newNamedLock(name string, rank Rank) *namedLock {
	return &namedLock{
		name:          name,
		rank:          rank,
		sharedHolders: make(map[ThreadID]struct{}),
		notify:        make(chan struct{}),
	}
}

// currentOwners returns the thread(s) presently holding the lock, used to
// seed wait-for edges before blocking.
func (lk *namedLock) currentOwners() []ThreadID {
	if lk.hasExclusive {
		return []ThreadID{lk.exclusiveHolder}
	}
	owners := make([]ThreadID, 0, len(lk.sharedHolders))
	for t := range lk.sharedHolders {
		owners = append(owners, t)
	}
	return owners
}

func (lk *namedLock) canAcquireShared() bool {
	return !lk.hasExclusive && lk.waitingExclusive == 0
}

func (lk *namedLock) canAcquireExclusive() bool {
	return !lk.hasExclusive && len(lk.sharedHolders) == 0
}

// wakeLocked closes the current notify channel (waking every waiter) and
// installs a fresh one. Must be called with lk.mu held.
func (lk *namedLock) wakeLocked() {
	close(lk.notify)
	lk.notify = make(chan struct{})
}

func (lk *namedLock) recordWait(waited time.Duration) {
	lk.stats.contentions.Increment()
	nanos := waited.Nanoseconds()
	for {
		cur := lk.stats.maxWaitNanos.Get()
		if nanos <= cur {
			return
		}
		if lk.stats.maxWaitNanos.CompareAndSwap(cur, nanos) {
			return
		}
	}
}
