package mining

import (
	"fmt"
	"sync"
	"time"

	"github.com/berith-foundation/chaincore/log"
)

// batchSize is the number of nonces a worker checks between polls of the
// stop flag and the current template fingerprint (spec section 9,
// "batch ~= 4096 is a sensible default").
const batchSize = 4096

// Hasher is the pluggable hash/validate step: given the active template
// and a candidate nonce, it reports the candidate hash and whether it
// satisfies the target. Hashing itself is outside this core's scope
// (spec section 1 non-goals, "ECDSA/hashing primitives").
type Hasher func(tmpl Template, nonce uint64) (hash []byte, found bool)

// Miner owns N worker goroutines pulling ranges from a shared Coordinator.
// Start and Stop are idempotent; Stop waits for every worker to finish its
// current batch of nonces and observe the stop flag. Stop has no time
// bound of its own: it does not give up when a worker's lease expires.
type Miner struct {
	id          string
	logger      log.Logger
	coordinator *Coordinator
	hash        Hasher
	workers     int
	rangeSize   uint64

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewMiner returns a Miner identified by id, pulling work in rangeSize
// chunks and running workers worker goroutines once started.
func NewMiner(id string, coordinator *Coordinator, hash Hasher, workers int, rangeSize uint64) *Miner {
	return &Miner{
		id:          id,
		logger:      log.New("component", "mining.miner", "id", id),
		coordinator: coordinator,
		hash:        hash,
		workers:     workers,
		rangeSize:   rangeSize,
	}
}

// Start launches the worker goroutines. Calling it while already running
// is a no-op.
func (m *Miner) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.runWorker(i, m.stop)
	}
	m.logger.Info("miner started", "workers", m.workers)
}

// Stop signals every worker and blocks until they have all drained.
// Calling it while already stopped is a no-op.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("miner stopped")
}

func (m *Miner) runWorker(workerIndex int, stop chan struct{}) {
	defer m.wg.Done()
	workerID := fmt.Sprintf("%s-%d", m.id, workerIndex)

	for {
		select {
		case <-stop:
			return
		default:
		}

		work := m.coordinator.AssignWork(workerID, m.rangeSize)
		if work == nil {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		tmpl, ok := m.coordinator.CurrentTemplate()
		if !ok || tmpl.Fingerprint != work.TemplateFingerprint {
			_ = m.coordinator.ReportResult(workerID, Outcome{Kind: Abandoned})
			continue
		}

		if m.runRange(workerID, *work, tmpl, stop) {
			return
		}
	}
}

// runRange works one assignment to completion, reports the outcome, and
// reports true if the caller should stop entirely (stop flag observed).
func (m *Miner) runRange(workerID string, work Work, tmpl Template, stop chan struct{}) bool {
	nonce := work.NonceStart
	for nonce < work.NonceEndExclusive {
		select {
		case <-stop:
			_ = m.coordinator.ReportResult(workerID, Outcome{Kind: Abandoned})
			return true
		default:
		}

		latest, ok := m.coordinator.CurrentTemplate()
		if !ok || latest.Fingerprint != work.TemplateFingerprint {
			_ = m.coordinator.ReportResult(workerID, Outcome{Kind: Abandoned})
			return false
		}

		batchEnd := nonce + batchSize
		if batchEnd > work.NonceEndExclusive {
			batchEnd = work.NonceEndExclusive
		}

		for n := nonce; n < batchEnd; n++ {
			hash, found := m.hash(tmpl, n)
			if !found {
				continue
			}
			if err := m.coordinator.ReportResult(workerID, Outcome{Kind: Found, Nonce: n, Hash: hash}); err != nil {
				m.logger.Warn("found result rejected", "err", err)
			}
			return false
		}
		nonce = batchEnd
	}
	_ = m.coordinator.ReportResult(workerID, Outcome{Kind: Exhausted})
	return false
}
