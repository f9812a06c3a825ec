package mining

import "time"

// Work is a half-open, non-overlapping nonce range leased to one worker
// under one template (spec section 3, "Mining Work").
type Work struct {
	TemplateFingerprint string
	TargetDifficulty    []byte
	NonceStart          uint64
	NonceEndExclusive   uint64
	AssigneeID          string
	IssuedAt            time.Time
}

func (w Work) contains(nonce uint64) bool {
	return nonce >= w.NonceStart && nonce < w.NonceEndExclusive
}

// OutcomeKind tags a ReportResult call.
type OutcomeKind int

const (
	Found OutcomeKind = iota
	Exhausted
	Abandoned
)

// Outcome is the argument to ReportResult.
type Outcome struct {
	Kind  OutcomeKind
	Nonce uint64
	Hash  []byte
}
