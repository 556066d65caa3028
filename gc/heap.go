// heap.go
//
// The Heap state object: allocation, construction/exposure, the
// moribund fast path (gclite) and the stop-the-world mark-sweep collector.
//
// LIFECYCLE
// =========
// A Heap is created with New (the "initialize" call) and torn down with
// Cleanup. Nothing in this package is a process-wide singleton; independent
// heaps never share nodes, roots or counters.
//
// ALLOCATION
// ==========
// Construct(n, size) is the only way a node enters a heap:
//  1. If the moribund list is non-empty and no collection is running,
//     gclite deletes queued nodes whose count is still zero.
//  2. If the bank's outstanding bytes exceed the trigger level (or torture
//     mode is on), no node is under construction and no inhibitor is active,
//     a full mark-sweep runs.
//  3. The bank reserves size bytes. A refusal is retried once after a full
//     collection; a second refusal is AllocationExhausted.
//  4. The node is linked on the live list flagged "under construction".
//
// The node becomes visible to the collector only when Expose is called. While
// any node is under construction, mark-sweep is forbidden: asking for it is
// an InvariantViolation.
//
// COLLECTION
// ==========
// Collect toggles the mark parity, marks transitively from the heap roots,
// stack roots and protect stack (moving reached nodes to the reachable list),
// clears weak references to unmarked nodes, detaches the referents of every
// node left on the live list (breaking cycles), promotes the reachable list
// to live, runs gclite for nodes the detaching made moribund, and deletes the
// remaining zombies. Collection never nests: a Collect issued while one is
// running (e.g. from a weak-reference finalizer) is ignored.
package gc

import (
	"log/slog"
)

// Heap owns a graph of collectible nodes and the registries that root it.
// A Heap is not safe for concurrent use.
type Heap struct {
	cfg  Config
	log  *slog.Logger
	bank Allocator

	live      nodeList
	reachable nodeList
	moribund  []*Header

	mark              uint8
	numNodes          int
	underConstruction int
	inhibitors        int
	collecting        bool
	marking           bool
	closed            bool
	lastID            uint64
	trigger           uintptr

	stackRoots []*StackRoot
	heapRoots  heapRootList
	protect    []Node
	frame      *FrameBoundary
	weak       weakRegistry

	stats Stats
}

// Stats summarises collector activity.
type Stats struct {
	Collections   uint64  // full mark-sweep passes
	LitePasses    uint64  // gclite passes that deleted at least one node
	Deleted       uint64  // nodes deleted over the heap's lifetime
	LastMarked    int     // nodes reached by the last mark pass
	LastFreed     int     // nodes reclaimed by the last collection
	LastWeakClear int     // weak references cleared by the last collection
	Trigger       uintptr // current trigger level in bytes
}

// New returns an initialized heap backed by a MemoryBank honouring
// cfg.MemoryLimit.
func New(cfg Config) *Heap {
	cfg.normalize()
	return NewWithAllocator(cfg, NewMemoryBank(cfg.MemoryLimit))
}

// NewWithAllocator returns an initialized heap using alloc for accounting.
func NewWithAllocator(cfg Config, alloc Allocator) *Heap {
	cfg.normalize()
	hp := &Heap{
		cfg:     cfg,
		log:     cfg.Logger,
		bank:    alloc,
		trigger: cfg.TriggerBytes,
	}
	hp.live.name = "live"
	hp.reachable.name = "reachable"
	hp.weak.init()
	return hp
}

// Allocator returns the heap's raw storage accountant.
func (hp *Heap) Allocator() Allocator { return hp.bank }

// Logger returns the heap's logger.
func (hp *Heap) Logger() *slog.Logger { return hp.log }

// Stats returns a copy of the collector counters.
func (hp *Heap) Stats() Stats {
	s := hp.stats
	s.Trigger = hp.trigger
	return s
}

// LiveNodes reports the recorded number of nodes (exposed or not) that have
// not been deleted.
func (hp *Heap) LiveNodes() int { return hp.numNodes }

// Collecting reports whether a mark-sweep pass is in progress.
func (hp *Heap) Collecting() bool { return hp.collecting }

////////////////////////////////////////////////////////////////////////////////
//                          CONSTRUCTION & EXPOSURE
////////////////////////////////////////////////////////////////////////////////

// Construct allocates accounting storage for n and links it into the heap,
// flagged as under construction. The caller must fill in n's fields and then
// call Expose. Edges must not point at n until it is exposed.
func (hp *Heap) Construct(n Node, size uintptr) {
	hd := n.gcHeader()
	if hd.heap != nil {
		hp.fatalf(InvariantViolation, "node %d constructed twice", hd.id)
	}
	hp.allocate(size)
	hp.lastID++
	*hd = Header{
		heap:  hp,
		id:    hp.lastID,
		size:  size,
		mark:  hp.mark,
		flags: flagUnderConstruction,
		owner: n,
	}
	hp.live.pushBack(hd)
	hp.numNodes++
	hp.underConstruction++
	hp.watch(hd, "construct")
}

// Expose ends n's construction, making it eligible for marking and for
// reference counting.
func (hp *Heap) Expose(n Node) {
	hd := n.gcHeader()
	if hd.heap != hp {
		hp.fatalf(InvariantViolation, "expose of a node not constructed on this heap")
	}
	if hd.flags&flagUnderConstruction == 0 {
		hp.fatalf(InvariantViolation, "node %d exposed twice", hd.id)
	}
	hd.flags &^= flagUnderConstruction
	hp.underConstruction--
	hp.watch(hd, "expose")
}

// NewNode constructs n on hp, runs init (which may allocate other nodes and set
// n's edges) and exposes n.
func NewNode[T Node](hp *Heap, n T, size uintptr, init func(T)) T {
	hp.Construct(n, size)
	if init != nil {
		init(n)
	}
	hp.Expose(n)
	return n
}

// AbortIfNotExposed is the guard used before a node pointer escapes its
// constructor.
func (hp *Heap) AbortIfNotExposed(n Node) {
	if isNil(n) {
		return
	}
	if hd := n.gcHeader(); hd.flags&flagUnderConstruction != 0 {
		hp.fatalf(InvariantViolation, "node %d not exposed to the collector", hd.id)
	}
}

func (hp *Heap) allocate(size uintptr) {
	if hp.closed {
		hp.fatalf(InvariantViolation, "allocation on a heap after Cleanup")
	}
	if len(hp.moribund) > 0 && !hp.collecting {
		hp.gclite()
	}
	if hp.mayCollect() && (hp.cfg.Torture || hp.bank.BytesAllocated() > hp.trigger) {
		hp.collect("trigger")
	}
	if hp.bank.Allocate(size) {
		return
	}
	if hp.mayCollect() {
		hp.collect("exhaustion")
		if hp.bank.Allocate(size) {
			return
		}
	}
	hp.fatalf(AllocationExhausted, "cannot allocate %d bytes (%d outstanding)", size, hp.bank.BytesAllocated())
}

func (hp *Heap) mayCollect() bool {
	return hp.underConstruction+hp.inhibitors == 0 && !hp.collecting
}

////////////////////////////////////////////////////////////////////////////////
//                                 INHIBITOR
////////////////////////////////////////////////////////////////////////////////

// Inhibit suspends both gclite and mark-sweep until the returned release
// function is called. Inhibitors nest.
func (hp *Heap) Inhibit() (release func()) {
	hp.inhibitors++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		hp.inhibitors--
	}
}

// Inhibited reports whether at least one inhibitor is active.
func (hp *Heap) Inhibited() bool { return hp.inhibitors > 0 }

////////////////////////////////////////////////////////////////////////////////
//                               MORIBUND PATH
////////////////////////////////////////////////////////////////////////////////

// gclite deletes queued nodes whose count is still zero. Deletion detaches
// referents, which may queue more nodes; the loop drains them iteratively,
// last in first out.
func (hp *Heap) gclite() {
	if hp.inhibitors != 0 {
		return
	}
	release := hp.Inhibit()
	deleted := 0
	for len(hp.moribund) > 0 {
		last := len(hp.moribund) - 1
		hd := hp.moribund[last]
		hp.moribund[last] = nil
		hp.moribund = hp.moribund[:last]
		hd.flags &^= flagMoribund
		if hd.refs == 0 && hd.flags&flagDeleted == 0 {
			hp.deleteNode(hd)
			deleted++
		}
	}
	if deleted > 0 {
		hp.stats.LitePasses++
		hp.log.Debug("gc: gclite", "deleted", deleted, "nodes", hp.numNodes)
	}
	release()
	hp.runWeakFinalizers()
}

func (hp *Heap) deleteNode(hd *Header) {
	n := hd.owner
	n.DetachReferents()
	if f, ok := n.(Finalizer); ok {
		f.Finalize()
	}
	hp.weak.targetDeleted(hd)
	if hd.list != nil {
		hd.list.remove(hd)
	}
	hd.flags |= flagDeleted
	hd.owner = nil
	hp.numNodes--
	hp.bank.Deallocate(hd.size)
	hp.stats.Deleted++
	hp.watch(hd, "delete")
}

////////////////////////////////////////////////////////////////////////////////
//                                 MARK-SWEEP
////////////////////////////////////////////////////////////////////////////////

// Collect runs a full mark-sweep pass. It reports false (and does nothing)
// when called from inside a running collection. Calling it while a node is
// under construction or while collection is inhibited is fatal.
func (hp *Heap) Collect() bool {
	if hp.collecting {
		hp.log.Debug("gc: nested collect ignored")
		return false
	}
	if hp.underConstruction+hp.inhibitors != 0 {
		hp.fatalf(InvariantViolation,
			"mark-sweep requested with %d node(s) under construction and %d inhibitor(s) active",
			hp.underConstruction, hp.inhibitors)
	}
	hp.collect("explicit")
	return true
}

func (hp *Heap) collect(reason string) {
	hp.collecting = true
	before := hp.numNodes
	bytesBefore := hp.bank.BytesAllocated()

	marked := hp.markPhase()
	cleared := hp.weak.clearUnmarked(hp)
	hp.sweepPhase()

	hp.stats.Collections++
	hp.stats.LastMarked = marked
	hp.stats.LastFreed = before - hp.numNodes
	hp.stats.LastWeakClear = cleared
	next := uintptr(float64(hp.bank.BytesAllocated()) * hp.cfg.GrowthFactor)
	if next < hp.cfg.TriggerBytes {
		next = hp.cfg.TriggerBytes
	}
	hp.trigger = next
	hp.collecting = false

	hp.log.Debug("gc: collect",
		"reason", reason,
		"nodes_before", before,
		"nodes_after", hp.numNodes,
		"bytes_before", bytesBefore,
		"bytes_after", hp.bank.BytesAllocated(),
		"trigger", hp.trigger)

	// Finalizers run once the heap is consistent again; they may allocate.
	hp.runWeakFinalizers()
}

// marker is the mark-phase Visitor: an explicit stack instead of recursion
// so that long chains do not deepen the Go stack.
type marker struct {
	hp    *Heap
	stack []Node
	n     int
}

func (m *marker) Visit(n Node) {
	if isNil(n) {
		return
	}
	hd := n.gcHeader()
	if hd.flags&flagUnderConstruction != 0 {
		m.hp.fatalf(InvariantViolation, "node %d under construction reached by mark", hd.id)
	}
	if hd.flags&flagDeleted != 0 {
		m.hp.fatalf(InvariantViolation, "deleted node %d reached by mark", hd.id)
	}
	if hd.mark == m.hp.mark {
		return
	}
	hd.mark = m.hp.mark
	m.hp.reachable.pushBack(hd)
	m.stack = append(m.stack, n)
	m.n++
}

func (m *marker) drain() {
	for len(m.stack) != 0 {
		n := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		n.VisitReferents(m)
	}
}

// markPhase flips the parity so every node starts unmarked without touching
// survivors of the previous pass.
func (hp *Heap) markPhase() int {
	hp.mark ^= 1
	hp.marking = true
	m := &marker{hp: hp}
	hp.visitRoots(m)
	m.drain()
	hp.marking = false
	return m.n
}

func (hp *Heap) sweepPhase() {
	zombies := nodeList{name: "zombies"}
	for !hp.live.empty() {
		hd := hp.live.front()
		hd.owner.DetachReferents()
		zombies.pushBack(hd)
	}
	hp.live.spliceBack(&hp.reachable)
	// Detaching queued some zombies as moribund; gclite deletes those, and
	// unlinks them from the zombie list so they are not deleted twice.
	hp.gclite()
	for !zombies.empty() {
		hp.deleteNode(zombies.front())
	}
}

////////////////////////////////////////////////////////////////////////////////
//                                  CLEANUP
////////////////////////////////////////////////////////////////////////////////

// Cleanup releases every root and deletes every node. The heap cannot be
// used afterwards.
func (hp *Heap) Cleanup() {
	if hp.closed {
		return
	}
	if hp.underConstruction != 0 {
		hp.fatalf(InvariantViolation, "cleanup with %d node(s) under construction", hp.underConstruction)
	}
	for _, r := range hp.stackRoots {
		r.released = true
	}
	hp.stackRoots = nil
	hp.heapRoots.clear()
	hp.protect = nil
	hp.frame = nil

	hp.collecting = true
	hp.mark ^= 1
	hp.weak.clearUnmarked(hp)
	hp.sweepPhase()
	hp.collecting = false
	hp.runWeakFinalizers()
	hp.moribund = nil
	hp.closed = true
	hp.log.Debug("gc: cleanup", "nodes", hp.numNodes)
}

func (hp *Heap) watch(hd *Header, op string) {
	if hp.cfg.WatchID == 0 || hd.id != hp.cfg.WatchID {
		return
	}
	hp.log.Info("gc: watch", "op", op, "node", hd.id, "refs", hd.refs, "flags", int(hd.flags))
}
