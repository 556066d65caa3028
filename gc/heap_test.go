package gc

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type testNode struct {
	Header
	name      string
	out       []Edge[*testNode]
	finalized *int
}

func (n *testNode) VisitReferents(v Visitor) {
	for i := range n.out {
		n.out[i].Visit(v)
	}
}

func (n *testNode) DetachReferents() {
	for i := range n.out {
		n.out[i].Detach()
	}
}

func (n *testNode) Finalize() {
	if n.finalized != nil {
		*n.finalized++
	}
}

func (n *testNode) Label() string { return n.name }

func (n *testNode) link(m *testNode) {
	n.out = append(n.out, Edge[*testNode]{})
	n.out[len(n.out)-1].Set(m)
}

func newTestHeap() *Heap { return New(DefaultConfig()) }

func mk(hp *Heap, name string) *testNode {
	return NewNode(hp, &testNode{name: name}, 32, nil)
}

func mustFatal(t *testing.T, kind FatalKind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		fe, ok := r.(*FatalError)
		if !ok {
			t.Fatalf("expected fatal %s, got %v", kind, r)
		}
		if fe.Kind != kind {
			t.Fatalf("expected fatal %s, got %s (%s)", kind, fe.Kind, fe.Msg)
		}
	}()
	fn()
}

func wantDeleted(t *testing.T, nodes ...*testNode) {
	t.Helper()
	for _, n := range nodes {
		if !n.Deleted() {
			t.Fatalf("node %s (#%d) should have been deleted", n.name, n.ID())
		}
	}
}

func wantAlive(t *testing.T, nodes ...*testNode) {
	t.Helper()
	for _, n := range nodes {
		if n.Deleted() {
			t.Fatalf("node %s (#%d) should be alive", n.name, n.ID())
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
//                                 COLLECTION
////////////////////////////////////////////////////////////////////////////////

func Test_GC_Collect_ReachabilityClosure(t *testing.T) {
	hp := newTestHeap()
	a, b, c := mk(hp, "a"), mk(hp, "b"), mk(hp, "c")
	d, e, f := mk(hp, "d"), mk(hp, "e"), mk(hp, "f")
	a.link(b)
	b.link(c)
	c.link(a)
	d.link(e)
	e.link(c) // garbage pointing into the rooted set
	_ = f

	root := hp.AddRoot(a)
	defer root.Remove()

	if !hp.Collect() {
		t.Fatal("Collect should run")
	}
	wantAlive(t, a, b, c)
	wantDeleted(t, d, e, f)
	if got := hp.LiveNodes(); got != 3 {
		t.Fatalf("live nodes = %d, want 3", got)
	}
	if got := hp.Stats().LastFreed; got != 3 {
		t.Fatalf("LastFreed = %d, want 3", got)
	}
	// The edge from the deleted e must have released its count on c.
	if got := c.RefCount(); got != 1 {
		t.Fatalf("c refs = %d, want 1", got)
	}
	hp.Check()
}

func Test_GC_Collect_CycleReclamation(t *testing.T) {
	hp := newTestHeap()
	a, b, c := mk(hp, "a"), mk(hp, "b"), mk(hp, "c")
	a.link(b)
	b.link(c)
	c.link(a)
	r := hp.AddRoot(a)
	r.Remove()
	if a.Moribund() {
		t.Fatal("a cycle member should not reach a zero count")
	}
	hp.Collect()
	wantDeleted(t, a, b, c)
	if hp.LiveNodes() != 0 {
		t.Fatalf("live nodes = %d, want 0", hp.LiveNodes())
	}
	hp.Check()
}

func Test_GC_Collect_SweepDoesNotDoubleDelete(t *testing.T) {
	hp := newTestHeap()
	var fin int
	x := NewNode(hp, &testNode{name: "x", finalized: &fin}, 32, nil)
	y := NewNode(hp, &testNode{name: "y", finalized: &fin}, 32, nil)
	x.link(y)
	hp.Collect()
	wantDeleted(t, x, y)
	if fin != 2 {
		t.Fatalf("finalized %d times, want 2", fin)
	}
	if got := hp.Stats().Deleted; got != 2 {
		t.Fatalf("deleted = %d, want 2", got)
	}
	if got := hp.Allocator().BytesAllocated(); got != 0 {
		t.Fatalf("bytes outstanding = %d, want 0", got)
	}
}

func Test_GC_Collect_MarkParityToggles(t *testing.T) {
	hp := newTestHeap()
	a := mk(hp, "a")
	r := hp.AddRoot(a)
	defer r.Remove()
	for i := 0; i < 3; i++ {
		hp.Collect()
		if !a.IsMarked() {
			t.Fatalf("pass %d: rooted node not marked", i)
		}
	}
	if hp.Stats().Collections != 3 {
		t.Fatalf("collections = %d", hp.Stats().Collections)
	}
}

func Test_GC_Collect_LongChainDoesNotRecurse(t *testing.T) {
	hp := newTestHeap()
	head := mk(hp, "head")
	r := hp.AddRoot(head)
	cur := head
	for i := 0; i < 100000; i++ {
		n := mk(hp, "")
		cur.link(n)
		cur = n
	}
	hp.Collect()
	if hp.Stats().LastMarked != 100001 {
		t.Fatalf("marked %d", hp.Stats().LastMarked)
	}
	r.Remove()
	// Dropping the root cascades through the moribund list without
	// recursion.
	mk(hp, "trigger")
	if hp.LiveNodes() != 1 {
		t.Fatalf("live nodes = %d, want 1", hp.LiveNodes())
	}
}

////////////////////////////////////////////////////////////////////////////////
//                          CONSTRUCTION & INHIBITION
////////////////////////////////////////////////////////////////////////////////

func Test_GC_Construct_CollectDuringConstructionIsFatal(t *testing.T) {
	hp := newTestHeap()
	mustFatal(t, InvariantViolation, func() {
		hp.Construct(&testNode{name: "half"}, 16)
		hp.Collect()
	})
}

func Test_GC_Construct_EdgeToUnexposedIsFatal(t *testing.T) {
	hp := newTestHeap()
	a := mk(hp, "a")
	mustFatal(t, InvariantViolation, func() {
		b := &testNode{name: "b"}
		hp.Construct(b, 16)
		a.link(b)
	})
}

func Test_GC_Construct_DoubleExposeIsFatal(t *testing.T) {
	hp := newTestHeap()
	a := mk(hp, "a")
	mustFatal(t, InvariantViolation, func() { hp.Expose(a) })
}

func Test_GC_Construct_TortureSkipsWhileConstructing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Torture = true
	hp := New(cfg)
	parent := NewNode(hp, &testNode{name: "parent"}, 32, func(p *testNode) {
		// The child's allocation may not collect: the parent is still being
		// built and holds nothing yet.
		child := mk(hp, "child")
		p.link(child)
	})
	r := hp.PushRoot(parent)
	defer r.Release()
	before := hp.Stats().Collections
	mk(hp, "other")
	if hp.Stats().Collections == before {
		t.Fatal("torture mode should collect on a permitted allocation")
	}
	wantAlive(t, parent, parent.out[0].Get())
}

func Test_GC_Inhibit_SuspendsCollection(t *testing.T) {
	hp := newTestHeap()
	x := mk(hp, "x")
	y := mk(hp, "y")
	x.link(y)
	r := hp.AddRoot(x)
	release := hp.Inhibit()
	r.Remove()
	if !x.Moribund() {
		t.Fatal("x should be moribund")
	}
	mk(hp, "z")
	wantAlive(t, x, y)
	mustFatal(t, InvariantViolation, func() { hp.Collect() })
	release()
	release() // idempotent
	if hp.Inhibited() {
		t.Fatal("inhibitor not released")
	}
	mk(hp, "w")
	wantDeleted(t, x, y)
}

////////////////////////////////////////////////////////////////////////////////
//                               MORIBUND PATH
////////////////////////////////////////////////////////////////////////////////

func Test_GC_Moribund_DeletedOnNextAllocation(t *testing.T) {
	hp := newTestHeap()
	x, y := mk(hp, "x"), mk(hp, "y")
	x.link(y)
	r := hp.PushRoot(x)
	r.Release()
	if !x.Moribund() || x.Deleted() {
		t.Fatal("x should be queued, not deleted")
	}
	mk(hp, "z")
	wantDeleted(t, x, y)
	if hp.Stats().LitePasses != 1 {
		t.Fatalf("lite passes = %d", hp.Stats().LitePasses)
	}
	if hp.Stats().Collections != 0 {
		t.Fatal("the moribund path must not run mark-sweep")
	}
}

func Test_GC_Moribund_RescuedNodeSurvives(t *testing.T) {
	hp := newTestHeap()
	x, holder := mk(hp, "x"), mk(hp, "holder")
	hr := hp.AddRoot(holder)
	defer hr.Remove()
	r := hp.PushRoot(x)
	r.Release()
	holder.link(x) // count rises again before gclite runs
	mk(hp, "z")
	wantAlive(t, x)
	if x.Moribund() {
		t.Fatal("gclite should clear the moribund flag")
	}
}

func Test_GC_Edge_DanglingGetIsFatal(t *testing.T) {
	hp := newTestHeap()
	a, b := mk(hp, "a"), mk(hp, "b")
	a.link(b)
	e := a.out[0] // copy that escaped the owner
	hp.Collect()
	mustFatal(t, InvariantViolation, func() { e.Get() })
}

func Test_GC_Edge_SelfAssignmentKeepsCount(t *testing.T) {
	hp := newTestHeap()
	a, b := mk(hp, "a"), mk(hp, "b")
	a.link(b)
	a.out[0].Set(b)
	if b.RefCount() != 1 || b.Moribund() {
		t.Fatalf("refs=%d moribund=%v", b.RefCount(), b.Moribund())
	}
	a.out[0].Set(nil)
	if a.out[0].IsSet() || !b.Moribund() {
		t.Fatal("clearing the only edge should queue the target")
	}
}

////////////////////////////////////////////////////////////////////////////////
//                              ALLOCATION LIMITS
////////////////////////////////////////////////////////////////////////////////

func Test_GC_Allocate_ExhaustionIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryLimit = 100
	hp := New(cfg)
	a, b := NewNode(hp, &testNode{}, 40, nil), NewNode(hp, &testNode{}, 40, nil)
	ra, rb := hp.AddRoot(a), hp.AddRoot(b)
	defer ra.Remove()
	defer rb.Remove()
	mustFatal(t, AllocationExhausted, func() {
		NewNode(hp, &testNode{}, 40, nil)
	})
}

func Test_GC_Allocate_ExhaustionRecoversByCollecting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryLimit = 100
	hp := New(cfg)
	a, b := NewNode(hp, &testNode{}, 40, nil), NewNode(hp, &testNode{}, 40, nil)
	a.link(b)
	b.link(a)
	c := NewNode(hp, &testNode{}, 40, nil)
	wantDeleted(t, a, b)
	wantAlive(t, c)
	if hp.Stats().Collections != 1 {
		t.Fatalf("collections = %d, want 1", hp.Stats().Collections)
	}
}

func Test_GC_Allocate_TriggerCollectsAndGrows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TriggerBytes = 100
	hp := New(cfg)
	keep := NewNode(hp, &testNode{}, 80, nil)
	r := hp.AddRoot(keep)
	defer r.Remove()
	NewNode(hp, &testNode{}, 30, nil) // 110 outstanding
	NewNode(hp, &testNode{}, 30, nil) // over the trigger: collects first
	if hp.Stats().Collections != 1 {
		t.Fatalf("collections = %d, want 1", hp.Stats().Collections)
	}
	if got := hp.Stats().Trigger; got != 160 {
		t.Fatalf("trigger = %d, want 160", got)
	}
}

func Test_GC_OnFatal_HookSeesError(t *testing.T) {
	var seen *FatalError
	cfg := DefaultConfig()
	cfg.OnFatal = func(e *FatalError) { seen = e }
	var buf bytes.Buffer
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	hp := New(cfg)
	mustFatal(t, InvariantViolation, func() {
		hp.Construct(&testNode{}, 8)
		hp.Collect()
	})
	if seen == nil || seen.Kind != InvariantViolation {
		t.Fatalf("hook saw %v", seen)
	}
	if !strings.Contains(buf.String(), "gc: fatal") {
		t.Fatalf("fatal not logged: %q", buf.String())
	}
}

////////////////////////////////////////////////////////////////////////////////
//                           CHECK / CLEANUP / CONFIG
////////////////////////////////////////////////////////////////////////////////

func Test_GC_Check_ReportsVirginsAndRoots(t *testing.T) {
	hp := newTestHeap()
	a, b := mk(hp, "a"), mk(hp, "b")
	mk(hp, "virgin")
	a.link(b)
	r := hp.PushRoot(a)
	defer r.Release()
	rep := hp.Check()
	if rep.Nodes != 3 || rep.Virgins != 1 || rep.StackRoots != 1 {
		t.Fatalf("report: %s", rep)
	}
}

func Test_GC_Cleanup_DeletesEverything(t *testing.T) {
	hp := newTestHeap()
	var fin int
	a := NewNode(hp, &testNode{name: "a", finalized: &fin}, 32, nil)
	b := NewNode(hp, &testNode{name: "b", finalized: &fin}, 32, nil)
	a.link(b)
	b.link(a)
	hr := hp.AddRoot(a)
	sr := hp.PushRoot(b)
	hp.Cleanup()
	wantDeleted(t, a, b)
	if fin != 2 || hp.LiveNodes() != 0 {
		t.Fatalf("fin=%d live=%d", fin, hp.LiveNodes())
	}
	// Handles outliving the heap are inert.
	sr.Release()
	hr.Remove()
	mustFatal(t, InvariantViolation, func() { mk(hp, "late") })
}

func Test_GC_ConfigFromEnv(t *testing.T) {
	t.Setenv("RHO_GC_TRIGGER", "1234")
	t.Setenv("RHO_GC_LIMIT", "99999")
	t.Setenv("RHO_GC_TORTURE", "true")
	t.Setenv("RHO_GC_WATCH", "7")
	cfg := ConfigFromEnv()
	if cfg.TriggerBytes != 1234 || cfg.MemoryLimit != 99999 || !cfg.Torture || cfg.WatchID != 7 {
		t.Fatalf("cfg = %+v", cfg)
	}
	t.Setenv("RHO_GC_TRIGGER", "lots")
	if ConfigFromEnv().TriggerBytes != DefaultTriggerBytes {
		t.Fatal("malformed value should be ignored")
	}
}

func Test_GC_Watch_LogsNodeHistory(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.WatchID = 2
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	hp := New(cfg)
	a, b := mk(hp, "a"), mk(hp, "b")
	a.link(b)
	hp.Collect()
	out := buf.String()
	for _, op := range []string{"op=construct", "op=incRef", "op=decRef", "op=delete"} {
		if !strings.Contains(out, op) {
			t.Fatalf("watch log missing %s:\n%s", op, out)
		}
	}
	if strings.Contains(out, "node=1 ") {
		t.Fatal("only the watched node should be logged")
	}
}

func Test_GC_Snapshot_EdgesAndRoots(t *testing.T) {
	hp := newTestHeap()
	a, b := mk(hp, "a"), mk(hp, "b")
	a.link(b)
	r := hp.AddRoot(a)
	defer r.Remove()
	s := hp.Snapshot()
	if len(s.Nodes) != 2 || len(s.Roots) != 1 || s.Roots[0] != a.ID() {
		t.Fatalf("snapshot = %+v", s)
	}
	ai, ok := s.Find(a.ID())
	if !ok || ai.Kind != "a" || !ai.Rooted || len(ai.Edges) != 1 || ai.Edges[0] != b.ID() {
		t.Fatalf("a = %+v", ai)
	}
	if hp.NodeByID(b.ID()) != Node(b) {
		t.Fatal("NodeByID")
	}
}
