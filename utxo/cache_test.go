package utxo

import (
	"testing"
	"time"

	"github.com/berith-foundation/chaincore/lockmgr"
)

// TestSnapshotCacheNeverEvictsReferencedEntriesUnderSustainedPressure covers
// the case a plain bounded LRU gets wrong: many more referenced snapshots
// in flight than the configured soft cap, simulating several long-running
// validators each holding a snapshot across many version bumps. Every one
// of them must remain retrievable by its own version for as long as it's
// referenced, regardless of how far past cap the cache has grown.
func TestSnapshotCacheNeverEvictsReferencedEntriesUnderSustainedPressure(t *testing.T) {
	locks := lockmgr.NewRegistry()
	set := NewSet(locks, WithSnapshotCacheSize(2))
	h := lockmgr.NewHolder("t1")
	future := time.Now().Add(time.Second)

	const held = 20 // far beyond the soft cap of 2
	snaps := make([]*Snapshot, 0, held)
	for i := 0; i < held; i++ {
		op := Outpoint{TxID: txid(byte(i))}
		if err := set.AtomicUpdate(h, future, []Update{
			{Outpoint: op, Output: &Output{Amount: 1, Owner: []byte("X"), TxID: op.TxID}},
		}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		snap, err := set.Snapshot(h, future)
		if err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		snaps = append(snaps, snap) // deliberately never released mid-loop
	}

	for i, snap := range snaps {
		got, ok := set.cache.get(snap.Version())
		if !ok {
			t.Fatalf("snapshot %d (version %d) was evicted while still referenced", i, snap.Version())
		}
		if got != snap {
			t.Fatalf("snapshot %d: cache returned a different instance than the one retained", i)
		}
	}

	for _, snap := range snaps {
		set.ReleaseSnapshot(snap)
	}

	// Once every reference clears, the next put should bring the cache back
	// down toward its soft target instead of growing further.
	op := Outpoint{TxID: txid(99)}
	if err := set.AtomicUpdate(h, future, []Update{
		{Outpoint: op, Output: &Output{Amount: 1, Owner: []byte("X"), TxID: op.TxID}},
	}); err != nil {
		t.Fatalf("final update: %v", err)
	}
	final, err := set.Snapshot(h, future)
	if err != nil {
		t.Fatalf("final snapshot: %v", err)
	}
	defer set.ReleaseSnapshot(final)

	if set.cache.len() > 3 {
		t.Fatalf("expected eviction to reclaim unreferenced entries back toward the soft cap, cache has %d", set.cache.len())
	}
}
