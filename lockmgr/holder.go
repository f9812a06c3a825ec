package lockmgr

import "sync"

// Holder tracks the locks a single logical thread currently owns, which is
// exactly the state the ordering rule (spec section 4.1) needs to check:
// "a thread may acquire lock L only if, for every lock L' it already
// holds, rank(L) >= rank(L')", with same-lock re-entry always rejected.
//
// Holder is cheap to construct; callers mint one per logical execution
// context (one per worker goroutine, one per inbound RPC) and reuse it
// across every lockmgr call made on that context's behalf.
type Holder struct {
	ID ThreadID

	mu   sync.Mutex
	held map[string]Rank
}

// NewHolder returns a Holder identified by id.
func NewHolder(id ThreadID) *Holder {
	return &Holder{ID: id, held: make(map[string]Rank)}
}

// maxHeldRank returns the highest rank currently held, or 0 if nothing is
// held (ranks start at 1, so 0 never collides with a real rank).
func (h *Holder) maxHeldRank() Rank {
	var max Rank
	for _, r := range h.held {
		if r > max {
			max = r
		}
	}
	return max
}

func (h *Holder) alreadyHolds(name string) bool {
	_, ok := h.held[name]
	return ok
}

func (h *Holder) record(name string, rank Rank) {
	h.held[name] = rank
}

func (h *Holder) forget(name string) {
	delete(h.held, name)
}

// Holds reports whether the holder currently owns name, for diagnostics and
// tests.
func (h *Holder) Holds(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alreadyHolds(name)
}
