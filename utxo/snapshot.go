package utxo

import (
	"bytes"

	"github.com/berith-foundation/chaincore/atomics"
)

// Snapshot is an immutable, reference-counted view of the UTXO map as of
// Version. Its contents are a structural copy made at construction time;
// nothing mutates it afterwards, so reads need no locking.
type Snapshot struct {
	version int64
	data    map[Outpoint]Output
	refs    atomics.Counter
}

func newSnapshot(version int64, data map[Outpoint]Output) *Snapshot {
	return &Snapshot{version: version, data: data}
}

// Version reports the Version Counter value this snapshot was taken at.
func (s *Snapshot) Version() int64 { return s.version }

// Get looks up a single outpoint.
func (s *Snapshot) Get(op Outpoint) (Output, bool) {
	out, ok := s.data[op]
	return out, ok
}

// IterByOwner returns every output owned by owner, in unspecified order.
func (s *Snapshot) IterByOwner(owner []byte) []Output {
	var out []Output
	for _, o := range s.data {
		if bytes.Equal(o.Owner, owner) {
			out = append(out, o)
		}
	}
	return out
}

func (s *Snapshot) retain() { s.refs.Increment() }
func (s *Snapshot) release() int64 { return s.refs.Decrement() }
