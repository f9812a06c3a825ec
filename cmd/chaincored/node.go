package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berith-foundation/chaincore/corerr"
	"github.com/berith-foundation/chaincore/lockmgr"
	"github.com/berith-foundation/chaincore/log"
	"github.com/berith-foundation/chaincore/mining"
	"github.com/berith-foundation/chaincore/session"
	"github.com/berith-foundation/chaincore/utxo"
)

// deadlockStormError signals exit code 4 (spec section 6): the lock
// manager has refused enough would-be-cyclic acquisitions that the
// embedding process treats the node as wedged rather than merely
// contended.
type deadlockStormError struct {
	cycles    int64
	threshold int64
}

func (e *deadlockStormError) Error() string {
	return fmt.Sprintf("deadlock storm: %d cycles prevented, threshold %d", e.cycles, e.threshold)
}

// Node wires together the long-lived concurrency-substrate components (lock
// registry, UTXO set, session store, mining pool) behind a single
// process-scoped handle (spec section 9: "a thin process-scoped handle may
// exist for ergonomic access but must not be the only path"). The daemon
// and the console run on a Node; the component packages' own tests
// construct the components directly.
type Node struct {
	cfg Config

	Locks    *lockmgr.Registry
	UTXO     *utxo.Set
	Sessions *session.Store
	Mining   *mining.Pool

	holder *lockmgr.Holder
}

// NewNode constructs a Node from cfg. It does not start mining; callers
// register miners against Node.Mining and call StartPoolMining explicitly.
func NewNode(cfg Config) *Node {
	locks := lockmgr.NewRegistry()
	return &Node{
		cfg:      cfg,
		Locks:    locks,
		UTXO:     utxo.NewSet(locks, utxo.WithSnapshotCacheSize(cfg.Mining.SnapshotCacheSize)),
		Sessions: session.NewStore(cfg.Session.Path),
		Mining:   mining.NewPool(),
		holder:   lockmgr.NewHolder("chaincored.main"),
	}
}

// CheckDeadlockStorm returns deadlockStormError once the number of cycles
// the lock manager has prevented reaches the configured threshold.
func (n *Node) CheckDeadlockStorm() error {
	cycles := n.Locks.DeadlockCyclesPrevented()
	if cycles >= n.cfg.Locks.DeadlockStormThreshold {
		return &deadlockStormError{cycles: cycles, threshold: n.cfg.Locks.DeadlockStormThreshold}
	}
	return nil
}

// SweepSessions deactivates stale node records; called on a timer by the
// running process.
func (n *Node) SweepSessions(logger log.Logger) {
	deadline := time.Now().Add(n.cfg.Locks.defaultDeadline())
	count, err := n.Sessions.SweepStale(deadline, n.cfg.Session.staleThreshold())
	if err != nil {
		if kind, ok := corerr.KindOf(err); ok && kind == corerr.CorruptSessionFile {
			logger.Error("session sweep found a corrupt journal", "err", err)
			return
		}
		logger.Warn("session sweep failed", "err", err)
		return
	}
	if count > 0 {
		logger.Info("swept stale session nodes", "count", count)
	}
}

// Statistics is the JSON shape of spec section 6, "Statistics JSON":
// {"locks": {...}, "deadlock": {...}, "utxo": {...}, "mining": {...}}.
type Statistics struct {
	Locks    map[string]lockmgr.LockStats `json:"locks"`
	Deadlock lockmgr.DeadlockStats        `json:"deadlock"`
	UTXO     utxo.Stats                   `json:"utxo"`
	Mining   mining.PoolStats             `json:"mining"`
}

// Stats aggregates every component's counters into the statistics shape
// consumed by HTTP monitors.
func (n *Node) Stats() Statistics {
	return Statistics{
		Locks:    n.Locks.Stats(),
		Deadlock: lockmgr.DeadlockStats{Prevented: n.Locks.DeadlockCyclesPrevented()},
		UTXO:     n.UTXO.Stats(),
		Mining:   n.Mining.Stats(),
	}
}

// StatsJSON marshals Stats to the exact wire shape of spec section 6,
// the accessor an embedding HTTP monitor would call behind a
// "/stats" handler; cmd/chaincored has no HTTP surface of its own (spec
// section 1 non-goals), so the console's "statsjson" command is the one
// in-tree caller.
func (n *Node) StatsJSON() ([]byte, error) {
	return json.Marshal(n.Stats())
}
