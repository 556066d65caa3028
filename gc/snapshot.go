package gc

import (
	"fmt"
	"sort"
)

// Labeler is optionally implemented by nodes to name themselves in a
// snapshot; otherwise the Go type name is used.
type Labeler interface {
	Label() string
}

// NodeInfo describes one node in a Snapshot.
type NodeInfo struct {
	ID       uint64
	Kind     string
	Size     uintptr
	Refs     int
	Moribund bool
	Rooted   bool
	Edges    []uint64
}

// Snapshot is a point-in-time copy of the node graph, sorted by id.
type Snapshot struct {
	Nodes []NodeInfo
	Roots []uint64
	Stats Stats
}

// Snapshot copies the current node graph. It does not mark or allocate
// nodes and may be called at any time outside a collection.
func (hp *Heap) Snapshot() Snapshot {
	rooted := make(map[uint64]bool)
	var roots []uint64
	hp.visitRoots(VisitorFunc(func(n Node) {
		id := n.gcHeader().id
		if !rooted[id] {
			rooted[id] = true
			roots = append(roots, id)
		}
	}))
	var nodes []NodeInfo
	for _, l := range []*nodeList{&hp.live, &hp.reachable} {
		for hd := l.head; hd != nil; hd = hd.next {
			info := NodeInfo{
				ID:       hd.id,
				Kind:     labelOf(hd.owner),
				Size:     hd.size,
				Refs:     int(hd.refs),
				Moribund: hd.flags&flagMoribund != 0,
				Rooted:   rooted[hd.id],
			}
			if hd.flags&flagUnderConstruction == 0 {
				hd.owner.VisitReferents(VisitorFunc(func(m Node) {
					info.Edges = append(info.Edges, m.gcHeader().id)
				}))
			}
			nodes = append(nodes, info)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return Snapshot{Nodes: nodes, Roots: roots, Stats: hp.Stats()}
}

func labelOf(n Node) string {
	if l, ok := n.(Labeler); ok {
		return l.Label()
	}
	return fmt.Sprintf("%T", n)
}

// Find returns the node with the given id.
func (s Snapshot) Find(id uint64) (NodeInfo, bool) {
	i := sort.Search(len(s.Nodes), func(i int) bool { return s.Nodes[i].ID >= id })
	if i < len(s.Nodes) && s.Nodes[i].ID == id {
		return s.Nodes[i], true
	}
	return NodeInfo{}, false
}

// NodeByID returns the live node with the given id, or nil.
func (hp *Heap) NodeByID(id uint64) Node {
	for _, l := range []*nodeList{&hp.live, &hp.reachable} {
		for hd := l.head; hd != nil; hd = hd.next {
			if hd.id == id {
				return hd.owner
			}
		}
	}
	return nil
}
