package gc

// Three root registries keep nodes alive across collections:
//
//   - stack roots: strictly nested, released last-acquired-first;
//   - heap roots:  added and removed in any order;
//   - the protect stack (protect.go): an index-addressed stack for
//     temporaries, unwound by count or to a saved depth.
//
// Every root holds one count on its target. Registries cannot change while a
// mark pass is visiting them.

////////////////////////////////////////////////////////////////////////////////
//                                STACK ROOTS
////////////////////////////////////////////////////////////////////////////////

// StackRoot protects one node for a lexical scope. Acquire it with
// Heap.PushRoot and release it with a deferred Release.
type StackRoot struct {
	hp       *Heap
	node     Node
	depth    int
	released bool
}

// PushRoot acquires a stack root on n (which may be nil and set later).
func (hp *Heap) PushRoot(n Node) *StackRoot {
	hp.checkNotMarking("PushRoot")
	r := &StackRoot{hp: hp, depth: len(hp.stackRoots)}
	if !isNil(n) {
		hp.incRef(n)
		r.node = n
	}
	hp.stackRoots = append(hp.stackRoots, r)
	return r
}

// Get returns the protected node.
func (r *StackRoot) Get() Node { return r.node }

// Set retargets the root. The new target is counted before the old one is
// dropped.
func (r *StackRoot) Set(n Node) {
	if r.released {
		r.hp.fatalf(InvariantViolation, "Set on a released stack root")
	}
	if isNil(n) {
		n = nil
	} else {
		r.hp.incRef(n)
	}
	old := r.node
	r.node = n
	if old != nil {
		r.hp.decRef(old)
	}
}

// Release pops the root. Roots must be released in reverse order of
// acquisition; releasing any other root is an invariant violation. Releasing
// a root twice, or one already torn down by a frame boundary, is a no-op.
func (r *StackRoot) Release() {
	if r.released {
		return
	}
	hp := r.hp
	hp.checkNotMarking("Release")
	top := len(hp.stackRoots) - 1
	if top < 0 || hp.stackRoots[top] != r {
		hp.fatalf(InvariantViolation,
			"stack root %d released out of order (top is %d)", r.depth, top)
	}
	hp.stackRoots[top] = nil
	hp.stackRoots = hp.stackRoots[:top]
	r.drop()
}

func (r *StackRoot) drop() {
	r.released = true
	if r.node != nil {
		old := r.node
		r.node = nil
		r.hp.decRef(old)
	}
}

// StackDepth reports the number of active stack roots.
func (hp *Heap) StackDepth() int { return len(hp.stackRoots) }

////////////////////////////////////////////////////////////////////////////////
//                                 HEAP ROOTS
////////////////////////////////////////////////////////////////////////////////

// HeapRoot protects one node until Remove is called. Heap roots have no
// ordering constraints.
type HeapRoot struct {
	hp         *Heap
	node       Node
	prev, next *HeapRoot
	list       *heapRootList
}

type heapRootList struct {
	head, tail *HeapRoot
	n          int
}

// AddRoot registers a heap root on n.
func (hp *Heap) AddRoot(n Node) *HeapRoot {
	hp.checkNotMarking("AddRoot")
	r := &HeapRoot{hp: hp}
	if !isNil(n) {
		hp.incRef(n)
		r.node = n
	}
	hp.heapRoots.push(r)
	return r
}

// Get returns the protected node.
func (r *HeapRoot) Get() Node { return r.node }

// Set retargets the root.
func (r *HeapRoot) Set(n Node) {
	if r.list == nil {
		r.hp.fatalf(InvariantViolation, "Set on a removed heap root")
	}
	if isNil(n) {
		n = nil
	} else {
		r.hp.incRef(n)
	}
	old := r.node
	r.node = n
	if old != nil {
		r.hp.decRef(old)
	}
}

// Remove unregisters the root. Removing twice is a no-op.
func (r *HeapRoot) Remove() {
	if r.list == nil {
		return
	}
	r.hp.checkNotMarking("Remove")
	r.list.remove(r)
	if r.node != nil {
		old := r.node
		r.node = nil
		r.hp.decRef(old)
	}
}

// HeapRoots reports the number of registered heap roots.
func (hp *Heap) HeapRoots() int { return hp.heapRoots.n }

func (l *heapRootList) push(r *HeapRoot) {
	r.list = l
	r.prev = l.tail
	if l.tail == nil {
		l.head = r
	} else {
		l.tail.next = r
	}
	l.tail = r
	l.n++
}

func (l *heapRootList) remove(r *HeapRoot) {
	if r.prev == nil {
		l.head = r.next
	} else {
		r.prev.next = r.next
	}
	if r.next == nil {
		l.tail = r.prev
	} else {
		r.next.prev = r.prev
	}
	r.prev, r.next, r.list = nil, nil, nil
	l.n--
}

// clear forgets every root without touching counts (used by Cleanup, which
// deletes every node anyway).
func (l *heapRootList) clear() {
	for r := l.head; r != nil; {
		next := r.next
		r.prev, r.next, r.list, r.node = nil, nil, nil, nil
		r = next
	}
	l.head, l.tail, l.n = nil, nil, 0
}

////////////////////////////////////////////////////////////////////////////////
//                                  VISITING
////////////////////////////////////////////////////////////////////////////////

func (hp *Heap) visitRoots(v Visitor) {
	for r := hp.heapRoots.head; r != nil; r = r.next {
		if r.node != nil {
			v.Visit(r.node)
		}
	}
	for _, r := range hp.stackRoots {
		if r.node != nil {
			v.Visit(r.node)
		}
	}
	for _, n := range hp.protect {
		if n != nil {
			v.Visit(n)
		}
	}
}

func (hp *Heap) checkNotMarking(op string) {
	if hp.marking {
		hp.fatalf(InvariantViolation, "%s while roots are being marked", op)
	}
}
