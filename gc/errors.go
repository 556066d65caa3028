package gc

import "fmt"

// FatalKind classifies unrecoverable collector failures.
type FatalKind int

const (
	// AllocationExhausted: the memory bank could not satisfy a request even
	// after a full collection.
	AllocationExhausted FatalKind = iota + 1
	// InvariantViolation: the collector's contract with itself was broken
	// (collection during construction, out-of-order root release, dangling
	// edge, inconsistent counts). Always a bug in the caller or the core.
	InvariantViolation
)

func (k FatalKind) String() string {
	switch k {
	case AllocationExhausted:
		return "AllocationExhausted"
	case InvariantViolation:
		return "InvariantViolation"
	default:
		return fmt.Sprintf("FatalKind(%d)", int(k))
	}
}

// FatalError is delivered to Config.OnFatal. The core never recovers it.
type FatalError struct {
	Kind FatalKind
	Msg  string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("gc: %s: %s", e.Kind, e.Msg)
}

// fatalf reports a fatal error through the configured hook. If the hook
// returns (it should not), fatalf panics so control never resumes past a
// broken invariant.
func (hp *Heap) fatalf(kind FatalKind, format string, args ...any) {
	err := &FatalError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
	if hp == nil {
		panic(err)
	}
	hp.log.Error("gc: fatal", "kind", kind.String(), "msg", err.Msg)
	if hp.cfg.OnFatal != nil {
		hp.cfg.OnFatal(err)
	}
	panic(err)
}

// Abort reports a fatal error on behalf of a collaborator of the heap (for
// example the evaluator's context stack). It never returns.
func (hp *Heap) Abort(kind FatalKind, format string, args ...any) {
	hp.fatalf(kind, format, args...)
}
