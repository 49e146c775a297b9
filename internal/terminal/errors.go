package terminal

import (
	"errors"
	"fmt"
)

// Kind categorizes a terminal error so callers can decide whether to
// retry, surface it to the operator, or treat it as expected.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers bad or missing creation fields, including a
	// working directory that does not exist.
	KindValidation
	// KindNotFound means the handle id or session name is unknown.
	KindNotFound
	// KindUnavailable is the global capability failure: the host has no
	// pseudo-terminal support.
	KindUnavailable
	// KindSpawn means the backend process could not be started.
	KindSpawn
	// KindCrash means the backend exited without being asked to.
	KindCrash
	// KindCapability means the operation is not supported by the handle's
	// backend variant, e.g. detaching a raw handle.
	KindCapability
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindSpawn:
		return "spawn_failure"
	case KindCrash:
		return "crashed"
	case KindCapability:
		return "capability_mismatch"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by Manager operations.
type Error struct {
	Op     string // operation that failed, e.g. "terminal.Create"
	Kind   Kind
	Target string // handle id or session name involved, if any
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Target != "" {
		msg += " " + e.Target
	}
	if e.Err != nil {
		if msg != "" {
			return msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return msg + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UnavailableHint is the remediation text carried by ErrUnavailable.
const UnavailableHint = "pseudo-terminal support is not available on this host; " +
	"make sure /dev/ptmx exists and devpts is mounted, then restart devdash"

// ErrUnavailable is returned by every Manager operation when the PTY probe
// failed at startup. It is a single value so repeated calls return an
// identical error.
var ErrUnavailable = &Error{
	Op:   "terminal",
	Kind: KindUnavailable,
	Err:  errors.New(UnavailableHint),
}

func newError(op string, kind Kind, target string, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Target: target, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err, or KindUnknown when err is not a
// terminal error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a terminal error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// TargetOf returns the handle id or session name carried by err.
func TargetOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Target
	}
	return ""
}
