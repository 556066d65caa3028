package gc

// WeakRef observes a node without keeping it alive. Once the target is
// found unmarked by a collection, or is deleted through the moribund path,
// the reference is cleared and its finalizer (if any) runs. Finalizers run
// after the collector has finished, so they may allocate.
type WeakRef struct {
	hp        *Heap
	id        uint64
	target    Node
	targetID  uint64
	finalizer func(*WeakRef)
	active    bool
}

type weakRegistry struct {
	refs     []*WeakRef
	byTarget map[*Header][]*WeakRef
	pending  []*WeakRef
	lastID   uint64
}

func (r *weakRegistry) init() {
	r.byTarget = make(map[*Header][]*WeakRef)
}

// NewWeakRef registers a weak reference to target. fin may be nil.
func (hp *Heap) NewWeakRef(target Node, fin func(*WeakRef)) *WeakRef {
	hp.checkNotMarking("NewWeakRef")
	if isNil(target) {
		hp.fatalf(InvariantViolation, "weak reference to nil")
	}
	hd := target.gcHeader()
	hp.checkLive(hd, "NewWeakRef")
	if hd.flags&flagUnderConstruction != 0 {
		hp.fatalf(InvariantViolation, "weak reference to node %d before it was exposed", hd.id)
	}
	reg := &hp.weak
	reg.lastID++
	wr := &WeakRef{hp: hp, id: reg.lastID, target: target, targetID: hd.id, finalizer: fin, active: true}
	reg.refs = append(reg.refs, wr)
	reg.byTarget[hd] = append(reg.byTarget[hd], wr)
	return wr
}

// ID identifies the weak reference within its heap.
func (wr *WeakRef) ID() uint64 { return wr.id }

// TargetID is the id of the node the reference was created for, kept after
// the reference is cleared.
func (wr *WeakRef) TargetID() uint64 { return wr.targetID }

// Get returns the target, or nil once it has been cleared.
func (wr *WeakRef) Get() Node { return wr.target }

// Alive reports whether the target is still reachable through the reference.
func (wr *WeakRef) Alive() bool { return wr.target != nil }

// Release unregisters the reference without running its finalizer.
func (wr *WeakRef) Release() {
	if !wr.active {
		return
	}
	wr.hp.weak.unregister(wr)
	wr.target = nil
	wr.finalizer = nil
}

// WeakRefs reports the number of registered, uncleared weak references.
func (hp *Heap) WeakRefs() int { return len(hp.weak.refs) }

func (r *weakRegistry) unregister(wr *WeakRef) {
	wr.active = false
	r.dropRef(wr)
	if wr.target == nil {
		return
	}
	hd := wr.target.gcHeader()
	list := r.byTarget[hd]
	for i, x := range list {
		if x == wr {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byTarget, hd)
	} else {
		r.byTarget[hd] = list
	}
}

func (r *weakRegistry) dropRef(wr *WeakRef) {
	for i, x := range r.refs {
		if x == wr {
			copy(r.refs[i:], r.refs[i+1:])
			r.refs[len(r.refs)-1] = nil
			r.refs = r.refs[:len(r.refs)-1]
			return
		}
	}
}

// clearUnmarked clears every reference whose target missed the mark pass
// that just finished, queuing the finalizers. It returns the count cleared.
func (r *weakRegistry) clearUnmarked(hp *Heap) int {
	kept := r.refs[:0]
	cleared := 0
	for _, wr := range r.refs {
		hd := wr.target.gcHeader()
		if hd.mark == hp.mark {
			kept = append(kept, wr)
			continue
		}
		delete(r.byTarget, hd)
		wr.clear()
		r.pending = append(r.pending, wr)
		cleared++
	}
	for i := len(kept); i < len(r.refs); i++ {
		r.refs[i] = nil
	}
	r.refs = kept
	return cleared
}

// targetDeleted clears references to a node deleted outside mark-sweep.
func (r *weakRegistry) targetDeleted(hd *Header) {
	list, ok := r.byTarget[hd]
	if !ok {
		return
	}
	delete(r.byTarget, hd)
	for _, wr := range list {
		r.dropRef(wr)
		wr.clear()
		r.pending = append(r.pending, wr)
	}
}

func (wr *WeakRef) clear() {
	wr.active = false
	wr.target = nil
}

// runWeakFinalizers drains the queue of cleared references. It does nothing
// while collection is running or inhibited; the queue is drained later.
func (hp *Heap) runWeakFinalizers() {
	if hp.collecting || hp.inhibitors != 0 {
		return
	}
	for len(hp.weak.pending) > 0 {
		wr := hp.weak.pending[0]
		hp.weak.pending[0] = nil
		hp.weak.pending = hp.weak.pending[1:]
		if fin := wr.finalizer; fin != nil {
			wr.finalizer = nil
			fin(wr)
		}
	}
}
