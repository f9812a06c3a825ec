// Package mining implements the Work Coordinator and Mining Pool of spec
// component C5: disjoint nonce-range assignment, result arbitration, and
// worker supervision, grounded on the worker-loop and unconfirmed-block
// bookkeeping patterns of a go-ethereum-style miner package.
package mining

// Template is the coordinator's current block template: an opaque payload
// plus the values needed to assign and verify work against it. The core
// never interprets Payload; it is a pluggable collaborator's concern
// (spec section 1 non-goals, "block-template serialization").
type Template struct {
	Fingerprint string
	Target      []byte // big-endian; a candidate hash wins if hash <= Target
	Payload     []byte
}
