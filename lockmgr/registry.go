package lockmgr

import (
	"sync"
	"time"

	"github.com/berith-foundation/chaincore/corerr"
	"github.com/berith-foundation/chaincore/log"
)

// Registry is the global lock registry of spec section 4.1: a name ->
// namedLock map plus the shared wait-for graph used for deadlock
// detection. Registries are constructed explicitly; nothing here is a
// package-level singleton (spec section 9).
type Registry struct {
	logger log.Logger

	mu    sync.Mutex
	locks map[string]*namedLock

	waitgraph *waitForGraph

	deadlockCycles int64
	deadlockMu     sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:    log.New("component", "lockmgr"),
		locks:     make(map[string]*namedLock),
		waitgraph: newWaitForGraph(),
	}
}

// namedLock returns the lock registered under name, creating it with rank
// on first use. A later call with a different rank for the same name is a
// programmer error (lock identity and rank are meant to be fixed at
// startup) and fails InvalidArgument rather than silently re-ranking a
// lock other threads may already be ordering against.
func (r *Registry) namedLock(name string, rank Rank) (*namedLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lk, ok := r.locks[name]
	if !ok {
		lk = newNamedLock(name, rank)
		r.locks[name] = lk
		return lk, nil
	}
	if lk.rank != rank {
		return nil, corerr.New(corerr.InvalidArgument, "lockmgr.Registry",
			"lock %q already registered at rank %s, cannot re-register at rank %s", name, lk.rank, rank)
	}
	return lk, nil
}

// Guard is returned by Acquire; its Release method is the sanctioned way to
// give the lock back, and it is safe to call from a defer on every exit
// path including error unwinding (spec section 4.1, "Scoped acquisition").
type Guard struct {
	registry *Registry
	holder   *Holder
	lock     *namedLock
	mode     Mode
	released bool
	mu       sync.Mutex
}

// Release returns the lock. Calling Release more than once is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true

	lk := g.lock
	lk.mu.Lock()
	if g.mode == Exclusive {
		lk.hasExclusive = false
		lk.exclusiveHolder = ""
	} else {
		delete(lk.sharedHolders, g.holder.ID)
	}
	lk.wakeLocked()
	lk.mu.Unlock()

	g.holder.mu.Lock()
	g.holder.forget(lk.name)
	g.holder.mu.Unlock()
}

// Name reports the name of the held lock.
func (g *Guard) Name() string { return g.lock.name }

// Mode reports the mode the lock was acquired in.
func (g *Guard) Mode() Mode { return g.mode }

// Acquire takes the named lock for holder in mode, blocking until it is
// granted, the deadline passes (LockTimeout), a cycle would form
// (DeadlockDetected), or the ordering rule is violated (OrderViolation,
// which never blocks — spec section 4.1).
func (r *Registry) Acquire(holder *Holder, name string, rank Rank, mode Mode, deadline time.Time) (*Guard, error) {
	holder.mu.Lock()
	if holder.alreadyHolds(name) {
		holder.mu.Unlock()
		return nil, corerr.New(corerr.OrderViolation, "lockmgr.Acquire",
			"thread %q already holds lock %q: recursive acquisition is not permitted", holder.ID, name)
	}
	maxHeld := holder.maxHeldRank()
	holder.mu.Unlock()

	if maxHeld != 0 && rank < maxHeld {
		return nil, corerr.New(corerr.OrderViolation, "lockmgr.Acquire",
			"thread %q holds a lock of rank %s, cannot acquire %q at lower rank %s", holder.ID, maxHeld, name, rank)
	}

	lk, err := r.namedLock(name, rank)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	contended := false
	waitingExclusiveRegistered := false
	defer func() {
		if waitingExclusiveRegistered {
			lk.mu.Lock()
			lk.waitingExclusive--
			lk.wakeLocked()
			lk.mu.Unlock()
		}
	}()

	for {
		lk.mu.Lock()
		var can bool
		if mode == Shared {
			can = lk.canAcquireShared()
		} else {
			can = lk.canAcquireExclusive()
		}
		if can {
			if mode == Exclusive {
				lk.hasExclusive = true
				lk.exclusiveHolder = holder.ID
			} else {
				lk.sharedHolders[holder.ID] = struct{}{}
			}
			lk.mu.Unlock()

			r.waitgraph.removeWaiter(holder.ID)
			lk.stats.acquisitions.Increment()
			if contended {
				lk.recordWait(time.Since(start))
			}

			holder.mu.Lock()
			holder.record(name, rank)
			holder.mu.Unlock()

			return &Guard{registry: r, holder: holder, lock: lk, mode: mode}, nil
		}

		if mode == Exclusive && !waitingExclusiveRegistered {
			lk.waitingExclusive++
			waitingExclusiveRegistered = true
		}
		owners := lk.currentOwners()
		notifyCh := lk.notify
		lk.mu.Unlock()

		for _, owner := range owners {
			r.waitgraph.addEdge(holder.ID, owner)
			if r.waitgraph.reaches(owner, holder.ID) {
				r.waitgraph.removeWaiter(holder.ID)
				lk.stats.deadlockAttempts.Increment()
				r.noteDeadlockPrevented()
				r.logger.Warn("deadlock prevented", "lock", name, "thread", holder.ID, "owner", owner)
				return nil, corerr.New(corerr.DeadlockDetected, "lockmgr.Acquire",
					"acquiring %q would close a wait-for cycle through %q", name, owner)
			}
		}

		contended = true
		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.waitgraph.removeWaiter(holder.ID)
			return nil, corerr.New(corerr.LockTimeout, "lockmgr.Acquire", "deadline exceeded waiting for %q", name)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-notifyCh:
			timer.Stop()
		case <-timer.C:
			r.waitgraph.removeWaiter(holder.ID)
			return nil, corerr.New(corerr.LockTimeout, "lockmgr.Acquire", "deadline exceeded waiting for %q", name)
		}
		r.waitgraph.removeWaiter(holder.ID)
	}
}

// Do acquires name for holder, runs fn, and releases the lock on every
// return path — the ergonomic form of the scoped API for callers who don't
// need the Guard beyond fn's lifetime.
func (r *Registry) Do(holder *Holder, name string, rank Rank, mode Mode, deadline time.Time, fn func() error) error {
	guard, err := r.Acquire(holder, name, rank, mode, deadline)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn()
}

func (r *Registry) noteDeadlockPrevented() {
	r.deadlockMu.Lock()
	r.deadlockCycles++
	r.deadlockMu.Unlock()
}
