package main

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/berith-foundation/chaincore/log"
	"github.com/berith-foundation/chaincore/mining"
)

func testConfig(t *testing.T) Config {
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.Session.Path = filepath.Join(dir, "session.json")
	return cfg
}

func TestNewNodeWiresComponents(t *testing.T) {
	n := NewNode(testConfig(t))
	if n.Locks == nil || n.UTXO == nil || n.Sessions == nil || n.Mining == nil {
		t.Fatal("expected every component to be constructed")
	}
}

func TestCheckDeadlockStormBelowThreshold(t *testing.T) {
	n := NewNode(testConfig(t))
	if err := n.CheckDeadlockStorm(); err != nil {
		t.Fatalf("expected no storm on a fresh node, got %v", err)
	}
}

func TestStatsAggregatesEveryComponent(t *testing.T) {
	cfg := testConfig(t)
	n := NewNode(cfg)

	if err := n.Sessions.Register(time.Now().Add(time.Second), "n1", 5001, 8001); err != nil {
		t.Fatalf("register: %v", err)
	}

	stats := n.Stats()
	if stats.Locks == nil {
		t.Fatal("expected a (possibly empty) lock stats map")
	}
	if stats.Deadlock.Prevented != 0 {
		t.Fatalf("expected 0 deadlock cycles prevented on a fresh node, got %d", stats.Deadlock.Prevented)
	}
	if stats.UTXO.Version != 0 {
		t.Fatalf("expected fresh UTXO version 0, got %d", stats.UTXO.Version)
	}
	if stats.Mining.Miners != 0 {
		t.Fatalf("expected no registered miners, got %d", stats.Mining.Miners)
	}
}

func TestStatsJSONMatchesSpecShape(t *testing.T) {
	n := NewNode(testConfig(t))
	c := mining.NewCoordinator()
	c.SetTemplate(mining.Template{Fingerprint: "T1"})
	n.Mining.Register(mining.NewMiner("m1", c, func(mining.Template, uint64) ([]byte, bool) { return nil, false }, 0, 1))

	out, err := n.StatsJSON()
	if err != nil {
		t.Fatalf("StatsJSON: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"locks", "deadlock", "utxo", "mining"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected top-level key %q in %s", key, out)
		}
	}

	var miningStats map[string]interface{}
	if err := json.Unmarshal(decoded["mining"], &miningStats); err != nil {
		t.Fatalf("unmarshal mining: %v", err)
	}
	if miningStats["template_fingerprint"] != "T1" {
		t.Fatalf("expected pool stats to surface the registered miner's fingerprint, got %v", miningStats["template_fingerprint"])
	}

	var deadlock map[string]interface{}
	if err := json.Unmarshal(decoded["deadlock"], &deadlock); err != nil {
		t.Fatalf("unmarshal deadlock: %v", err)
	}
	if _, ok := deadlock["cycles_detected"]; !ok {
		t.Fatalf("expected cycles_detected key in %s", decoded["deadlock"])
	}
}

func TestSweepSessionsDeactivatesStaleNodes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.StaleThresholdSeconds = 0
	n := NewNode(cfg)

	deadline := time.Now().Add(time.Second)
	if err := n.Sessions.Register(deadline, "n1", 5001, 8001); err != nil {
		t.Fatalf("register: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	n.SweepSessions(log.New("component", "test"))

	active, err := n.Sessions.ActiveNodes(deadline)
	if err != nil {
		t.Fatalf("active nodes: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected node deactivated by sweep with zero threshold, got %d active", len(active))
	}
}
