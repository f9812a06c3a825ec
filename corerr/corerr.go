// Package corerr defines the error taxonomy shared by every core component
// (lockmgr, atomics, utxo, txctx, mining, session), per spec section 7.
//
// Every core API returns one of these kinds, never a bare error and never a
// swallowed one. Callers distinguish retryable conditions from programmer
// errors with Retryable, matching the propagation policy: LockTimeout,
// WriteConflict and StaleTemplate are retried with backoff; OrderViolation
// and DeadlockDetected are logged and surfaced, never retried automatically.
package corerr

import "fmt"

// Kind enumerates the taxonomy of spec section 7.
type Kind int

const (
	// LockTimeout: deadline expired during acquisition.
	LockTimeout Kind = iota
	// OrderViolation: rank rule violated.
	OrderViolation
	// DeadlockDetected: cycle found before blocking.
	DeadlockDetected
	// WriteConflict: outpoint already dirty during a C3 update.
	WriteConflict
	// CorruptSessionFile: parse failure in C6.
	CorruptSessionFile
	// StaleTemplate: a C5 result references a fingerprint no longer current.
	StaleTemplate
	// InvalidArgument: preconditions on inputs violated.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case LockTimeout:
		return "LockTimeout"
	case OrderViolation:
		return "OrderViolation"
	case DeadlockDetected:
		return "DeadlockDetected"
	case WriteConflict:
		return "WriteConflict"
	case CorruptSessionFile:
		return "CorruptSessionFile"
	case StaleTemplate:
		return "StaleTemplate"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Retryable reports whether callers should retry this kind with
// exponential backoff and jitter, per spec section 7's propagation policy.
func (k Kind) Retryable() bool {
	switch k {
	case LockTimeout, WriteConflict, StaleTemplate:
		return true
	default:
		return false
	}
}

// Error is the concrete error value every core API returns.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "lockmgr.Acquire"
	Detail  string
	wrapped error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is allows errors.Is(err, corerr.Sentinel(corerr.LockTimeout)) style
// comparisons: it matches the sentinel values returned by Sentinel by Kind.
func (e *Error) Is(target error) bool {
	if k, ok := target.(kindSentinel); ok {
		return e.Kind == k.kind
	}
	return false
}

// New constructs an *Error for op with an optional formatted detail.
func New(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that chains an underlying cause, preserved for
// errors.Unwrap/errors.As. The cause's message becomes Detail, so it also
// appears in the Error() string.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Detail: cause.Error(), wrapped: cause}
}

type kindSentinel struct{ kind Kind }

func (kindSentinel) Error() string { return "" }

// Sentinel returns a comparable error value usable with errors.Is to match
// any *Error of the given kind, regardless of Op/Detail:
//
//	if errors.Is(err, corerr.Sentinel(corerr.LockTimeout)) { ... }
func Sentinel(kind Kind) error { return kindSentinel{kind: kind} }

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return KindOf(u.Unwrap())
	}
	return 0, false
}
