package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/berith-foundation/chaincore/corerr"
)

func TestDefaultConfigDurations(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Session.staleThreshold().Seconds() != 120 {
		t.Fatalf("unexpected stale threshold: %v", cfg.Session.staleThreshold())
	}
	if cfg.Locks.defaultDeadline().Seconds() != 5 {
		t.Fatalf("unexpected default deadline: %v", cfg.Locks.defaultDeadline())
	}
	if cfg.Mining.leaseDuration().Seconds() != 60 {
		t.Fatalf("unexpected lease duration: %v", cfg.Mining.leaseDuration())
	}
}

func TestDumpConfigLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chaincored.toml")

	cfg := defaultConfig()
	cfg.Session.Path = "custom-session.json"
	cfg.Mining.Workers = 4

	var buf bytes.Buffer
	if err := dumpConfig(cfg, &buf); err != nil {
		t.Fatalf("dumpConfig: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var loaded Config
	if err := loadConfig(path, &loaded); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if loaded.Session.Path != "custom-session.json" {
		t.Fatalf("expected session path to round-trip, got %q", loaded.Session.Path)
	}
	if loaded.Mining.Workers != 4 {
		t.Fatalf("expected workers to round-trip, got %d", loaded.Mining.Workers)
	}
	if loaded.Locks.DeadlockStormThreshold != cfg.Locks.DeadlockStormThreshold {
		t.Fatalf("expected deadlock storm threshold to round-trip")
	}
}

func TestLoadConfigMissingFileReturnsConfigError(t *testing.T) {
	var cfg Config
	err := loadConfig("/nonexistent/chaincored.toml", &cfg)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, ok := err.(*configError); !ok {
		t.Fatalf("expected *configError, got %T", err)
	}
}

func TestLoadConfigUnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[Session]\nBogusField = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var cfg Config
	err := loadConfig(path, &cfg)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if _, ok := err.(*configError); !ok {
		t.Fatalf("expected *configError, got %T", err)
	}
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"config", &configError{cause: os.ErrNotExist}, 2},
		{"deadlock storm", &deadlockStormError{cycles: 10, threshold: 5}, 4},
		{"corrupt session", corerr.New(corerr.CorruptSessionFile, "test", "bad json"), 3},
		{"other", corerr.New(corerr.InvalidArgument, "test", "bad input"), 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := exitCodeFor(c.err); got != c.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
			}
		})
	}
}
