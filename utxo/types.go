// Package utxo implements the multi-version UTXO set of spec component C3:
// a snapshot-isolated map of outpoint to output, versioned, with atomic
// multi-key updates serialized through the lock manager's UTXO lock.
package utxo

import "fmt"

// Outpoint identifies a specific unspent transaction output.
type Outpoint struct {
	TxID        [32]byte
	OutputIndex uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%x:%d", o.TxID, o.OutputIndex)
}

// Output is immutable once inserted into the live set or a snapshot.
type Output struct {
	Amount      uint64
	Owner       []byte
	TxID        [32]byte
	OutputIndex uint32
}

// Update is one entry of an AtomicUpdate call. A nil Output deletes the
// outpoint; a non-nil Output inserts or replaces it.
type Update struct {
	Outpoint Outpoint
	Output   *Output
}
