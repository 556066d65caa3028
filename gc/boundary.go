package gc

// FrameBoundary marks the root-registry depths at entry to a unit of work
// (one closure invocation in the evaluator). Exit tears down any stack roots
// and protect entries still above those depths, so a chain of nested calls
// interrupted by a non-local exit can be unwound as one unit.
type FrameBoundary struct {
	hp           *Heap
	stackDepth   int
	protectDepth int
	parent       *FrameBoundary
	exited       bool
}

// EnterFrame opens a boundary at the current registry depths.
func (hp *Heap) EnterFrame() *FrameBoundary {
	fb := &FrameBoundary{
		hp:           hp,
		stackDepth:   len(hp.stackRoots),
		protectDepth: len(hp.protect),
		parent:       hp.frame,
	}
	hp.frame = fb
	return fb
}

// Exit closes the boundary. Roots acquired inside it and not yet released
// are released now (innermost first) and reported at Warn level.
func (fb *FrameBoundary) Exit() {
	if fb.exited {
		return
	}
	fb.exited = true
	hp := fb.hp
	if hp.closed {
		return
	}
	if hp.frame != fb {
		hp.fatalf(InvariantViolation, "frame boundaries exited out of order")
	}
	hp.frame = fb.parent
	if len(hp.stackRoots) < fb.stackDepth {
		hp.fatalf(InvariantViolation,
			"stack roots released below frame boundary (%d < %d)", len(hp.stackRoots), fb.stackDepth)
	}
	leaked := len(hp.stackRoots) - fb.stackDepth
	for len(hp.stackRoots) > fb.stackDepth {
		top := len(hp.stackRoots) - 1
		r := hp.stackRoots[top]
		hp.stackRoots[top] = nil
		hp.stackRoots = hp.stackRoots[:top]
		r.drop()
	}
	if len(hp.protect) < fb.protectDepth {
		hp.fatalf(InvariantViolation,
			"protect stack unwound below frame boundary (%d < %d)", len(hp.protect), fb.protectDepth)
	}
	leaked += len(hp.protect) - fb.protectDepth
	hp.unprotectTo(fb.protectDepth)
	if leaked > 0 {
		hp.log.Warn("gc: frame boundary released leaked roots", "count", leaked)
	}
}

// FrameDepth reports the number of open frame boundaries.
func (hp *Heap) FrameDepth() int {
	n := 0
	for fb := hp.frame; fb != nil; fb = fb.parent {
		n++
	}
	return n
}
