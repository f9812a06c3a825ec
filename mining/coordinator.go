package mining

import (
	"bytes"
	"sync"
	"time"

	"github.com/berith-foundation/chaincore/atomics"
	"github.com/berith-foundation/chaincore/corerr"
	"github.com/berith-foundation/chaincore/log"
)

// defaultLeaseDuration is 2 x target_block_time per spec section 9, open
// question (b): the source does not state a lease duration explicitly.
// Assuming a 30s target block time, as a proposed but non-guaranteed
// default.
const defaultLeaseDuration = 60 * time.Second

// Coordinator holds the current block template, the nonce cursor, and the
// live/completed assignment bookkeeping of spec section 4.5.
type Coordinator struct {
	logger log.Logger

	mu          sync.Mutex
	template    *Template
	completed   completedRangeSet
	assignments map[string]Work

	cursor        atomics.Counter
	leaseDuration time.Duration

	rangesCompletedTotal atomics.Counter
	solved               chan string
}

// CoordinatorOption configures a Coordinator at construction.
type CoordinatorOption func(*Coordinator)

// WithLeaseDuration overrides the default lease duration.
func WithLeaseDuration(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.leaseDuration = d }
}

// NewCoordinator returns a Coordinator with no template set.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		logger:        log.New("component", "mining.coordinator"),
		assignments:   make(map[string]Work),
		leaseDuration: defaultLeaseDuration,
		solved:        make(chan string, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTemplate installs a new current template, clearing the Completed
// Range Set and invalidating outstanding assignments (spec section 4.5).
func (c *Coordinator) SetTemplate(t Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.template = &t
	c.cursor.Set(0)
	c.completed.reset()
	c.assignments = make(map[string]Work)
	c.logger.Info("template rotated", "fingerprint", t.Fingerprint)
}

// CurrentTemplate returns the active template, or ok=false if none is set.
func (c *Coordinator) CurrentTemplate() (Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.template == nil {
		return Template{}, false
	}
	return *c.template, true
}

// AssignWork implements spec section 4.5's four-step algorithm, returning
// nil if no template is set.
func (c *Coordinator) AssignWork(workerID string, rangeSize uint64) *Work {
	c.mu.Lock()
	if c.template == nil {
		c.mu.Unlock()
		return nil
	}
	fingerprint := c.template.Fingerprint
	target := c.template.Target
	c.mu.Unlock()

	for {
		cursor := c.cursor.Get()
		start := uint64(cursor)
		end := start + rangeSize

		c.mu.Lock()
		overlap := c.completed.overlapsAny(start, end)
		advanceTo := c.completed.maxEnd()
		c.mu.Unlock()

		if overlap && advanceTo > start {
			c.cursor.CompareAndSwap(cursor, int64(advanceTo))
			continue
		}

		if !c.cursor.CompareAndSwap(cursor, int64(end)) {
			continue
		}

		work := Work{
			TemplateFingerprint: fingerprint,
			TargetDifficulty:    target,
			NonceStart:          start,
			NonceEndExclusive:   end,
			AssigneeID:          workerID,
			IssuedAt:            time.Now(),
		}
		c.mu.Lock()
		c.assignments[workerID] = work
		c.mu.Unlock()
		return &work
	}
}

// ReportResult resolves a worker's outstanding assignment per spec
// section 4.5.
func (c *Coordinator) ReportResult(workerID string, outcome Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	work, ok := c.assignments[workerID]
	if !ok {
		return corerr.New(corerr.InvalidArgument, "mining.ReportResult", "no live assignment for worker %q", workerID)
	}
	if c.template == nil || work.TemplateFingerprint != c.template.Fingerprint {
		delete(c.assignments, workerID)
		return corerr.New(corerr.StaleTemplate, "mining.ReportResult",
			"assignment fingerprint %q is no longer current", work.TemplateFingerprint)
	}

	switch outcome.Kind {
	case Found:
		if !work.contains(outcome.Nonce) {
			return corerr.New(corerr.InvalidArgument, "mining.ReportResult",
				"nonce %d outside assignment [%d,%d)", outcome.Nonce, work.NonceStart, work.NonceEndExclusive)
		}
		if bytes.Compare(outcome.Hash, work.TargetDifficulty) > 0 {
			return corerr.New(corerr.InvalidArgument, "mining.ReportResult", "reported hash does not satisfy target")
		}
		c.completed.add(work.NonceStart, work.NonceEndExclusive)
		c.rangesCompletedTotal.Increment()
		delete(c.assignments, workerID)
		select {
		case c.solved <- work.TemplateFingerprint:
		default:
		}
		c.logger.Info("template solved", "fingerprint", work.TemplateFingerprint, "nonce", outcome.Nonce)
	case Exhausted:
		c.completed.add(work.NonceStart, work.NonceEndExclusive)
		c.rangesCompletedTotal.Increment()
		delete(c.assignments, workerID)
	case Abandoned:
		delete(c.assignments, workerID)
	default:
		return corerr.New(corerr.InvalidArgument, "mining.ReportResult", "unknown outcome kind %d", outcome.Kind)
	}
	return nil
}

// Solved fires with the winning template's fingerprint each time a Found
// outcome is accepted (the channel buffers one value; further sends are
// dropped while it is full). Neither Pool nor Miner reads it: the other
// workers keep requesting ranges after a Found is accepted.
func (c *Coordinator) Solved() <-chan string {
	return c.solved
}

// SweepExpiredLeases treats any assignment whose lease has passed as
// abandoned (spec section 4.5, "Lease expiry").
func (c *Coordinator) SweepExpiredLeases() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, w := range c.assignments {
		if now.After(w.IssuedAt.Add(c.leaseDuration)) {
			delete(c.assignments, id)
			c.logger.Warn("lease expired, treating as abandoned", "worker", id, "fingerprint", w.TemplateFingerprint)
		}
	}
}

// Stats is one coordinator's contribution to the "mining" section of the
// statistics JSON (spec section 6); Pool.Stats sums these across every
// registered miner into the single flat object the spec shape expects.
type Stats struct {
	TemplateFingerprint *string `json:"template_fingerprint"`
	AssignmentsLive     int     `json:"assignments_live"`
	RangesCompleted     int64   `json:"ranges_completed"`
}

// Stats returns a point-in-time snapshot of the coordinator's counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var fp *string
	if c.template != nil {
		f := c.template.Fingerprint
		fp = &f
	}
	return Stats{
		TemplateFingerprint: fp,
		AssignmentsLive:     len(c.assignments),
		RangesCompleted:     c.rangesCompletedTotal.Get(),
	}
}
