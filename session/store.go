package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pborman/uuid"

	"github.com/berith-foundation/chaincore/corerr"
	"github.com/berith-foundation/chaincore/log"
)

// lockRetryInterval is how often a blocked lock attempt polls, bounded
// overall by the caller's deadline.
const lockRetryInterval = 20 * time.Millisecond

// NewNodeID returns a fresh node identifier for callers that don't supply
// their own.
func NewNodeID() string { return uuid.New() }

// Store persists a JSON journal of Node Records at path, guarded by an
// advisory file lock at path+".lock" (spec section 4.6).
type Store struct {
	logger    log.Logger
	path      string
	lockPath  string
	sessionID string

	// mu serializes in-process callers; the file lock additionally
	// serializes callers from other processes sharing the same path.
	mu sync.Mutex
}

// NewStore returns a Store rooted at path.
func NewStore(path string) *Store {
	return &Store{
		logger:    log.New("component", "session", "path", path),
		path:      path,
		lockPath:  path + ".lock",
		sessionID: uuid.New(),
	}
}

func tryLockUntil(fl *flock.Flock, deadline time.Time, exclusive bool) (bool, error) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	if exclusive {
		return fl.TryLockContext(ctx, lockRetryInterval)
	}
	return fl.TryRLockContext(ctx, lockRetryInterval)
}

// withLock acquires the file lock (exclusive for mutations, shared for
// reads), runs fn against the parsed journal, and commits the result if
// fn returns one. fn returning (nil, nil) means "read-only, no commit".
func (s *Store) withLock(deadline time.Time, exclusive bool, fn func(*journal) (*journal, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl := flock.New(s.lockPath)
	locked, err := tryLockUntil(fl, deadline, exclusive)
	if err != nil {
		return corerr.Wrap(corerr.LockTimeout, "session.Store", err)
	}
	if !locked {
		return corerr.New(corerr.LockTimeout, "session.Store", "deadline exceeded acquiring %s", s.lockPath)
	}
	defer fl.Unlock()

	j, err := s.read()
	if err != nil {
		return err
	}

	updated, err := fn(j)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	return s.commit(updated)
}

func (s *Store) read() (*journal, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &journal{SessionID: s.sessionID, CreatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, corerr.Wrap(corerr.CorruptSessionFile, "session.Store.read", err)
	}
	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, corerr.Wrap(corerr.CorruptSessionFile, "session.Store.read", err)
	}
	return &j, nil
}

// commit writes the new journal to a temp file in the same directory and
// renames it over the target (spec section 4.6, steps 4-5). A failure
// between write and rename removes the temp file, leaving the prior file
// untouched.
func (s *Store) commit(j *journal) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return corerr.Wrap(corerr.InvalidArgument, "session.Store.commit", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return corerr.Wrap(corerr.InvalidArgument, "session.Store.commit", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return corerr.Wrap(corerr.InvalidArgument, "session.Store.commit", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return corerr.Wrap(corerr.InvalidArgument, "session.Store.commit", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return corerr.Wrap(corerr.InvalidArgument, "session.Store.commit", err)
	}
	return nil
}

// Register adds or refreshes a Node Record. Concurrent registers for the
// same node_id serialize on the file lock, so exactly one record survives
// (spec section 8, invariant 4).
func (s *Store) Register(deadline time.Time, nodeID string, apiPort, p2pPort int) error {
	if nodeID == "" {
		return corerr.New(corerr.InvalidArgument, "session.Register", "node_id must not be empty")
	}
	if apiPort < 1 || apiPort > 65535 || p2pPort < 1 || p2pPort > 65535 {
		return corerr.New(corerr.InvalidArgument, "session.Register", "ports must be in [1,65535]")
	}

	return s.withLock(deadline, true, func(j *journal) (*journal, error) {
		now := time.Now()
		for i := range j.Nodes {
			if j.Nodes[i].NodeID == nodeID {
				j.Nodes[i].APIPort = apiPort
				j.Nodes[i].P2PPort = p2pPort
				j.Nodes[i].LastSeen = float64(now.Unix())
				j.Nodes[i].IsActive = true
				return j, nil
			}
		}
		j.Nodes = append(j.Nodes, Record{
			NodeID:           nodeID,
			APIPort:          apiPort,
			P2PPort:          p2pPort,
			RegistrationTime: now,
			LastSeen:         float64(now.Unix()),
			IsActive:         true,
		})
		return j, nil
	})
}

// Heartbeat advances a node's last_seen. Repeated calls are idempotent:
// active_nodes() membership is unchanged, only last_seen moves forward.
func (s *Store) Heartbeat(deadline time.Time, nodeID string) error {
	return s.withLock(deadline, true, func(j *journal) (*journal, error) {
		for i := range j.Nodes {
			if j.Nodes[i].NodeID == nodeID {
				j.Nodes[i].LastSeen = float64(time.Now().Unix())
				j.Nodes[i].IsActive = true
				return j, nil
			}
		}
		return nil, corerr.New(corerr.InvalidArgument, "session.Heartbeat", "unknown node %q", nodeID)
	})
}

// Deregister removes a node's record entirely.
func (s *Store) Deregister(deadline time.Time, nodeID string) error {
	return s.withLock(deadline, true, func(j *journal) (*journal, error) {
		out := j.Nodes[:0]
		for _, n := range j.Nodes {
			if n.NodeID != nodeID {
				out = append(out, n)
			}
		}
		j.Nodes = out
		return j, nil
	})
}

// ActiveNodes returns every record currently marked active. Reads never
// modify the file.
func (s *Store) ActiveNodes(deadline time.Time) ([]Record, error) {
	var active []Record
	err := s.withLock(deadline, false, func(j *journal) (*journal, error) {
		for _, n := range j.Nodes {
			if n.IsActive {
				active = append(active, n)
			}
		}
		return nil, nil
	})
	return active, err
}

// SweepStale deactivates every active node whose last_seen is older than
// threshold, returning the count deactivated. This is the supplemented
// heartbeat-sweep feature of SPEC_FULL.md: the base spec defines "active"
// as a function of last_seen but leaves its enforcement to a caller.
func (s *Store) SweepStale(deadline time.Time, threshold time.Duration) (int, error) {
	deactivated := 0
	err := s.withLock(deadline, true, func(j *journal) (*journal, error) {
		cutoff := time.Now().Add(-threshold)
		for i := range j.Nodes {
			if !j.Nodes[i].IsActive {
				continue
			}
			if time.Unix(int64(j.Nodes[i].LastSeen), 0).Before(cutoff) {
				j.Nodes[i].IsActive = false
				deactivated++
			}
		}
		if deactivated == 0 {
			return nil, nil
		}
		return j, nil
	})
	return deactivated, err
}
