// Package txctx implements the Transaction Context of spec component C4: a
// two-phase commit combining lockmgr's ranked locks with arbitrary
// do/undo operation pairs.
package txctx

import (
	"sort"
	"time"

	"github.com/berith-foundation/chaincore/lockmgr"
	"github.com/berith-foundation/chaincore/log"
)

type requirement struct {
	name string
	rank lockmgr.Rank
	mode lockmgr.Mode
}

type operation struct {
	do   func() error
	undo func()
}

// Context aggregates lock requirements and do/undo operation pairs for a
// single Commit call. It is single-use: build it, Commit it, discard it.
type Context struct {
	logger log.Logger
	locks  *lockmgr.Registry
	holder *lockmgr.Holder

	requirements map[string]*requirement
	ops          []operation
}

// New returns an empty Context that will acquire locks on behalf of
// holder.
func New(locks *lockmgr.Registry, holder *lockmgr.Holder) *Context {
	return &Context{
		logger:       log.New("component", "txctx"),
		locks:        locks,
		holder:       holder,
		requirements: make(map[string]*requirement),
	}
}

// RequireLock records that Commit must hold name at rank in mode. A second
// call naming a lock already required in the other mode coalesces it to
// exclusive, per spec section 4.4 Phase 1 ("if the same lock appears with
// both modes, coalesce to exclusive"); a repeat in the same mode changes
// nothing, and the rank of the first call is kept.
func (c *Context) RequireLock(name string, rank lockmgr.Rank, mode lockmgr.Mode) {
	if existing, ok := c.requirements[name]; ok {
		if existing.mode != mode {
			existing.mode = lockmgr.Exclusive
		}
		return
	}
	c.requirements[name] = &requirement{name: name, rank: rank, mode: mode}
}

// AddOperation appends a do/undo pair, executed in the order added during
// Phase 2 and undone in reverse order on failure.
func (c *Context) AddOperation(do func() error, undo func()) {
	c.ops = append(c.ops, operation{do: do, undo: undo})
}

// Commit runs the two-phase protocol: Phase 1 acquires every required
// lock in rank order under deadline, failing with no side effects on any
// acquisition error; Phase 2 runs each do in order, rolling back via undo
// in reverse on failure. Locks release in reverse acquisition order on
// every exit path.
func (c *Context) Commit(deadline time.Time) error {
	reqs := make([]*requirement, 0, len(c.requirements))
	for _, r := range c.requirements {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].rank < reqs[j].rank })

	guards := make([]*lockmgr.Guard, 0, len(reqs))
	for _, r := range reqs {
		guard, err := c.locks.Acquire(c.holder, r.name, r.rank, r.mode, deadline)
		if err != nil {
			for i := len(guards) - 1; i >= 0; i-- {
				guards[i].Release()
			}
			c.logger.Warn("commit aborted during acquire", "lock", r.name, "err", err)
			return err
		}
		guards = append(guards, guard)
	}
	defer func() {
		for i := len(guards) - 1; i >= 0; i-- {
			guards[i].Release()
		}
	}()

	for i, op := range c.ops {
		if err := op.do(); err != nil {
			for j := i - 1; j >= 0; j-- {
				c.ops[j].undo()
			}
			c.logger.Warn("commit rolled back", "failed_op", i, "err", err)
			return err
		}
	}
	return nil
}
