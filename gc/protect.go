package gc

// The protect stack is the root registry native routines use for
// temporaries: push with Protect, pop a count with Unprotect, or remember
// the depth and unwind to it with ProtectScope. Entries may be nil.

// Protect pushes n on the protect stack and returns its index, usable with
// Reprotect.
func (hp *Heap) Protect(n Node) int {
	hp.checkNotMarking("Protect")
	if isNil(n) {
		n = nil
	} else {
		hp.incRef(n)
	}
	hp.protect = append(hp.protect, n)
	return len(hp.protect) - 1
}

// Reprotect replaces the entry at index i.
func (hp *Heap) Reprotect(n Node, i int) {
	if i < 0 || i >= len(hp.protect) {
		hp.fatalf(InvariantViolation, "reprotect index %d out of range (depth %d)", i, len(hp.protect))
	}
	if isNil(n) {
		n = nil
	} else {
		hp.incRef(n)
	}
	old := hp.protect[i]
	hp.protect[i] = n
	if old != nil {
		hp.decRef(old)
	}
}

// Unprotect pops k entries.
func (hp *Heap) Unprotect(k int) {
	hp.checkNotMarking("Unprotect")
	if k < 0 || k > len(hp.protect) {
		hp.fatalf(InvariantViolation, "unprotect %d with only %d protected", k, len(hp.protect))
	}
	hp.unprotectTo(len(hp.protect) - k)
}

// UnprotectPtr removes the most recent entry holding n.
func (hp *Heap) UnprotectPtr(n Node) {
	hp.checkNotMarking("UnprotectPtr")
	for i := len(hp.protect) - 1; i >= 0; i-- {
		if hp.protect[i] == n {
			copy(hp.protect[i:], hp.protect[i+1:])
			hp.protect[len(hp.protect)-1] = nil
			hp.protect = hp.protect[:len(hp.protect)-1]
			if !isNil(n) {
				hp.decRef(n)
			}
			return
		}
	}
	hp.fatalf(InvariantViolation, "unprotect of a node that is not protected")
}

// ProtectDepth reports the protect stack's depth.
func (hp *Heap) ProtectDepth() int { return len(hp.protect) }

// ProtectScope remembers the current depth; the returned function unwinds
// the protect stack back to it.
//
//	defer hp.ProtectScope()()
func (hp *Heap) ProtectScope() (restore func()) {
	depth := len(hp.protect)
	return func() {
		if hp.closed {
			return
		}
		if len(hp.protect) < depth {
			hp.fatalf(InvariantViolation, "protect stack unwound below scope depth %d", depth)
		}
		hp.unprotectTo(depth)
	}
}

func (hp *Heap) unprotectTo(depth int) {
	for len(hp.protect) > depth {
		last := len(hp.protect) - 1
		n := hp.protect[last]
		hp.protect[last] = nil
		hp.protect = hp.protect[:last]
		if n != nil {
			hp.decRef(n)
		}
	}
}
