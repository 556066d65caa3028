package gc

import "fmt"

// CheckReport is the result of a consistency check.
type CheckReport struct {
	Nodes             int // recorded node count
	Moribund          int // entries on the moribund list
	UnderConstruction int
	// Virgins are exposed nodes whose reference count has never risen above
	// zero: nothing has ever pointed at them. They are legitimate (a result
	// held only by a Go local) but usually short-lived.
	Virgins    int
	HeapRoots  int
	StackRoots int
	Protected  int
	WeakRefs   int
}

func (r CheckReport) String() string {
	return fmt.Sprintf("nodes=%d moribund=%d constructing=%d virgins=%d roots(heap=%d stack=%d protect=%d) weak=%d",
		r.Nodes, r.Moribund, r.UnderConstruction, r.Virgins, r.HeapRoots, r.StackRoots, r.Protected, r.WeakRefs)
}

// Check validates the heap's bookkeeping: the recorded node count must equal
// the number of nodes on the live and reachable lists, every moribund entry
// must carry the moribund flag, and the under-construction counter must match
// the flagged nodes. Any inconsistency is an InvariantViolation.
func (hp *Heap) Check() CheckReport {
	rep := CheckReport{
		Nodes:      hp.numNodes,
		Moribund:   len(hp.moribund),
		HeapRoots:  hp.heapRoots.n,
		StackRoots: len(hp.stackRoots),
		Protected:  len(hp.protect),
		WeakRefs:   len(hp.weak.refs),
	}
	counted := 0
	for _, l := range []*nodeList{&hp.live, &hp.reachable} {
		n := 0
		for hd := l.head; hd != nil; hd = hd.next {
			n++
			if hd.list != l {
				hp.fatalf(InvariantViolation, "node %d on the %s list records another list", hd.id, l.name)
			}
			if hd.flags&flagDeleted != 0 {
				hp.fatalf(InvariantViolation, "deleted node %d still on the %s list", hd.id, l.name)
			}
			if hd.flags&flagUnderConstruction != 0 {
				rep.UnderConstruction++
			} else if hd.flags&flagEverReferenced == 0 {
				rep.Virgins++
			}
		}
		if n != l.n {
			hp.fatalf(InvariantViolation, "%s list holds %d nodes but records %d", l.name, n, l.n)
		}
		counted += n
	}
	if counted != hp.numNodes {
		hp.fatalf(InvariantViolation, "recorded node count %d but %d nodes on the lists", hp.numNodes, counted)
	}
	for _, hd := range hp.moribund {
		if hd.flags&flagMoribund == 0 {
			hp.fatalf(InvariantViolation, "node %d on the moribund list without the moribund flag", hd.id)
		}
	}
	if rep.UnderConstruction != hp.underConstruction {
		hp.fatalf(InvariantViolation, "%d node(s) flagged under construction, counter says %d",
			rep.UnderConstruction, hp.underConstruction)
	}
	return rep
}
