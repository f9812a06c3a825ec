package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteIncludesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetThreshold(LvlTrace)
	defer SetOutput(colorableNoop{})

	l := New("component", "lockmgr")
	l.Info("lock acquired", "name", "utxo", "mode", "exclusive")

	got := buf.String()
	for _, want := range []string{"lock acquired", "component=lockmgr", "name=utxo", "mode=exclusive"} {
		if !strings.Contains(got, want) {
			t.Errorf("log output %q missing %q", got, want)
		}
	}
}

func TestThresholdFiltersLowerSeverity(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetThreshold(LvlWarn)
	defer SetOutput(colorableNoop{})
	defer SetThreshold(LvlInfo)

	Info("should not appear")
	Warn("should appear")

	got := buf.String()
	if strings.Contains(got, "should not appear") {
		t.Errorf("expected info record to be filtered, got %q", got)
	}
	if !strings.Contains(got, "should appear") {
		t.Errorf("expected warn record to be emitted, got %q", got)
	}
}

type colorableNoop struct{}

func (colorableNoop) Write(p []byte) (int, error) { return len(p), nil }
