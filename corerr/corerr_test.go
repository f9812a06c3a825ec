package corerr

import (
	"errors"
	"testing"
)

func TestSentinelMatchesKind(t *testing.T) {
	err := New(LockTimeout, "lockmgr.Acquire", "deadline exceeded for %q", "utxo")
	if !errors.Is(err, Sentinel(LockTimeout)) {
		t.Fatalf("expected errors.Is to match LockTimeout sentinel")
	}
	if errors.Is(err, Sentinel(WriteConflict)) {
		t.Fatalf("did not expect errors.Is to match WriteConflict sentinel")
	}
}

func TestRetryablePolicy(t *testing.T) {
	retryable := []Kind{LockTimeout, WriteConflict, StaleTemplate}
	terminal := []Kind{OrderViolation, DeadlockDetected, CorruptSessionFile, InvalidArgument}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestKindOfUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(WriteConflict, "utxo.AtomicUpdate", cause)
	kind, ok := KindOf(err)
	if !ok || kind != WriteConflict {
		t.Fatalf("expected WriteConflict, got %v ok=%v", kind, ok)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap chain to reach the original cause")
	}
}
