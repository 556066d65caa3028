// node.go
//
// The collectible node header, edges and reference-count plumbing.
//
// Every collectible object embeds a Header. The header carries:
//   - the mark parity written by the last mark pass that reached the node,
//   - a deferred reference count (advisory; see below),
//   - the under-construction and moribund flags,
//   - intrusive list links (live / reachable / zombie lists),
//   - a numeric id used by diagnostics.
//
// REFERENCE COUNTS
// ----------------
// Counts are bumped by Edge.Set, by every root kind, and dropped by
// Edge.Detach/Clear and by root release. A count falling to zero never
// deletes on the spot: the node is pushed on the moribund list and the
// next gclite pass deletes it if the count is still zero. Cycles never reach
// zero; they are the mark-sweep pass's business.
//
// EDGES
// -----
// An Edge[T] is an owning, counted, traced pointer from one node to another.
// All heap-to-heap pointers of the object model go through Edge so that the
// count is a sound (if conservative) signal: zero means "no node and no root
// points here".
package gc

import (
	"fmt"
	"reflect"
)

// Node is implemented by every collectible object. Concrete kinds embed
// Header (which supplies gcHeader) and describe their out-edges.
type Node interface {
	gcHeader() *Header
	// VisitReferents calls v once for every node this node points to.
	VisitReferents(v Visitor)
	// DetachReferents drops every out-edge. It is called before deletion and
	// on unreachable nodes during sweep, and must be safe to call twice.
	DetachReferents()
}

// Finalizer is optionally implemented by nodes that need a hook when the
// collector deletes them.
type Finalizer interface {
	Finalize()
}

// Visitor is handed to VisitReferents.
type Visitor interface {
	Visit(n Node)
}

// VisitorFunc adapts a plain function to Visitor.
type VisitorFunc func(Node)

func (f VisitorFunc) Visit(n Node) { f(n) }

type nodeFlags uint8

const (
	flagUnderConstruction nodeFlags = 1 << iota
	flagMoribund
	flagDeleted
	flagEverReferenced
)

// Header is embedded by value in every collectible object.
type Header struct {
	heap  *Heap
	id    uint64
	size  uintptr
	refs  int32
	mark  uint8
	flags nodeFlags

	prev, next *Header
	list       *nodeList
	owner      Node
}

func (h *Header) gcHeader() *Header { return h }

// ID returns the node's identifier (unique per heap, assigned at allocation).
func (h *Header) ID() uint64 { return h.id }

// RefCount reports the current deferred reference count.
func (h *Header) RefCount() int { return int(h.refs) }

// UnderConstruction reports whether the node has not been exposed yet.
func (h *Header) UnderConstruction() bool { return h.flags&flagUnderConstruction != 0 }

// Moribund reports whether the node is queued for gclite.
func (h *Header) Moribund() bool { return h.flags&flagMoribund != 0 }

// Deleted reports whether the collector has reclaimed the node.
func (h *Header) Deleted() bool { return h.flags&flagDeleted != 0 }

// Heap returns the heap that owns the node.
func (h *Header) Heap() *Heap { return h.heap }

// IsMarked reports whether the node carries the heap's current mark parity.
func (h *Header) IsMarked() bool { return h.heap != nil && h.mark == h.heap.mark }

// HeaderOf returns the header of n (nil for a nil node).
func HeaderOf(n Node) *Header {
	if isNil(n) {
		return nil
	}
	return n.gcHeader()
}

func isNil(n Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

////////////////////////////////////////////////////////////////////////////////
//                               COUNT PLUMBING
////////////////////////////////////////////////////////////////////////////////

func (hp *Heap) incRef(n Node) {
	hd := n.gcHeader()
	hp.checkLive(hd, "incRef")
	if hd.flags&flagUnderConstruction != 0 {
		hp.fatalf(InvariantViolation, "reference taken to node %d before it was exposed", hd.id)
	}
	hd.refs++
	hd.flags |= flagEverReferenced
	hp.watch(hd, "incRef")
}

func (hp *Heap) decRef(n Node) {
	hd := n.gcHeader()
	hp.checkLive(hd, "decRef")
	if hd.flags&flagUnderConstruction != 0 {
		hp.fatalf(InvariantViolation, "reference released on node %d before it was exposed", hd.id)
	}
	if hd.refs <= 0 {
		hp.fatalf(InvariantViolation, "reference count underflow on node %d", hd.id)
	}
	hd.refs--
	hp.watch(hd, "decRef")
	if hd.refs == 0 && hd.flags&flagMoribund == 0 {
		hp.makeMoribund(hd)
	}
}

func (hp *Heap) checkLive(hd *Header, op string) {
	if hd.heap != hp {
		hp.fatalf(InvariantViolation, "%s on node %d owned by another heap", op, hd.id)
	}
	if hd.flags&flagDeleted != 0 {
		hp.fatalf(InvariantViolation, "%s on deleted node %d", op, hd.id)
	}
}

// makeMoribund queues hd for the next gclite pass.
func (hp *Heap) makeMoribund(hd *Header) {
	hd.flags |= flagMoribund
	hp.moribund = append(hp.moribund, hd)
	hp.watch(hd, "moribund")
}

////////////////////////////////////////////////////////////////////////////////
//                                    EDGES
////////////////////////////////////////////////////////////////////////////////

// Edge is an owning, counted pointer to a node. The zero Edge is empty.
// Edges may only point at exposed nodes.
type Edge[T Node] struct {
	target T
	set    bool
}

// Get returns the target, or the zero T when the edge is empty. Reading an
// edge whose target was reclaimed is an invariant violation.
func (e *Edge[T]) Get() T {
	if e.set {
		hd := e.target.gcHeader()
		if hd.flags&flagDeleted != 0 {
			hd.heap.fatalf(InvariantViolation, "dangling edge to deleted node %d", hd.id)
		}
	}
	return e.target
}

// IsSet reports whether the edge currently points at a node.
func (e *Edge[T]) IsSet() bool { return e.set }

// Set retargets the edge. The new target gains a count before the old one
// loses its own, so self-assignment is safe.
func (e *Edge[T]) Set(v T) {
	var zero T
	if isNil(v) {
		e.Clear()
		return
	}
	hd := v.gcHeader()
	if hd.heap == nil {
		panic(&FatalError{Kind: InvariantViolation, Msg: "edge to a node that was never allocated on a heap"})
	}
	hd.heap.incRef(v)
	if e.set {
		old := e.target
		e.target = zero
		old.gcHeader().heap.decRef(old)
	}
	e.target, e.set = v, true
}

// Clear empties the edge, dropping its count on the old target.
func (e *Edge[T]) Clear() {
	if !e.set {
		return
	}
	var zero T
	old := e.target
	e.target, e.set = zero, false
	old.gcHeader().heap.decRef(old)
}

// Detach is Clear under the name used by DetachReferents implementations.
func (e *Edge[T]) Detach() { e.Clear() }

// Visit forwards the target (if any) to v.
func (e *Edge[T]) Visit(v Visitor) {
	if e.set {
		v.Visit(e.target)
	}
}

func (e Edge[T]) String() string {
	if !e.set {
		return "<nil>"
	}
	return fmt.Sprintf("->#%d", e.target.gcHeader().id)
}

////////////////////////////////////////////////////////////////////////////////
//                              INTRUSIVE LISTS
////////////////////////////////////////////////////////////////////////////////

// nodeList is a doubly linked list threaded through Header.prev/next, so that
// moving a node between the live, reachable and zombie lists is O(1).
type nodeList struct {
	name       string
	head, tail *Header
	n          int
}

func (l *nodeList) pushBack(hd *Header) {
	if hd.list != nil {
		hd.list.remove(hd)
	}
	hd.list = l
	hd.prev, hd.next = l.tail, nil
	if l.tail == nil {
		l.head = hd
	} else {
		l.tail.next = hd
	}
	l.tail = hd
	l.n++
}

func (l *nodeList) remove(hd *Header) {
	if hd.prev == nil {
		l.head = hd.next
	} else {
		hd.prev.next = hd.next
	}
	if hd.next == nil {
		l.tail = hd.prev
	} else {
		hd.next.prev = hd.prev
	}
	hd.prev, hd.next, hd.list = nil, nil, nil
	l.n--
}

func (l *nodeList) front() *Header { return l.head }

func (l *nodeList) empty() bool { return l.head == nil }

// spliceBack moves every node of src to the end of l.
func (l *nodeList) spliceBack(src *nodeList) {
	for hd := src.head; hd != nil; {
		next := hd.next
		l.pushBack(hd)
		hd = next
	}
}
