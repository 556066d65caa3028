package rho

import (
	"fmt"

	"github.com/westernmagic/rho/gc"
)

////////////////////////////////////////////////////////////////////////////////
//                                 PAIRLISTS
////////////////////////////////////////////////////////////////////////////////

// PairList is a tagged cons cell. A nil *PairList is the empty list.
type PairList struct {
	gc.Header
	car  gc.Edge[Object]
	tag  gc.Edge[*Symbol]
	tail gc.Edge[*PairList]
}

// NewPairList allocates one cell. car and tail must be protected by the
// caller.
func NewPairList(hp *gc.Heap, car Object, tag *Symbol, tail *PairList) *PairList {
	return gc.NewNode(hp, &PairList{}, nodeSize[PairList](0), func(p *PairList) {
		p.car.Set(car)
		if tag != nil {
			p.tag.Set(tag)
		}
		if tail != nil {
			p.tail.Set(tail)
		}
	})
}

func (*PairList) Type() Type { return PairListType }

func (p *PairList) Car() Object     { return p.car.Get() }
func (p *PairList) Tag() *Symbol    { return p.tag.Get() }
func (p *PairList) Tail() *PairList { return p.tail.Get() }

func (p *PairList) SetCar(o Object) { p.car.Set(o) }
func (p *PairList) SetTag(s *Symbol) {
	if s == nil {
		p.tag.Clear()
		return
	}
	p.tag.Set(s)
}
func (p *PairList) SetTail(t *PairList) {
	if t == nil {
		p.tail.Clear()
		return
	}
	p.tail.Set(t)
}

// Len counts the cells of p (0 for nil).
func (p *PairList) Len() int {
	n := 0
	for ; p != nil; p = p.Tail() {
		n++
	}
	return n
}

func (p *PairList) VisitReferents(v gc.Visitor) {
	p.car.Visit(v)
	p.tag.Visit(v)
	p.tail.Visit(v)
}

func (p *PairList) DetachReferents() {
	p.car.Detach()
	p.tag.Detach()
	p.tail.Detach()
}

func (p *PairList) Label() string {
	if t := p.Tag(); t != nil {
		return "cons " + t.name
	}
	return "cons"
}

// listBuilder appends cells to a pairlist in order. The head is kept on the
// protect stack (so it stays alive until the enclosing ProtectScope ends)
// and every car is protected while its cell is allocated.
type listBuilder struct {
	hp         *gc.Heap
	head, last *PairList
	slot       int
}

func newListBuilder(hp *gc.Heap) *listBuilder {
	return &listBuilder{hp: hp, slot: hp.Protect(nil)}
}

func (b *listBuilder) add(tag *Symbol, car Object) {
	k := b.hp.Protect(car)
	cell := NewPairList(b.hp, car, tag, nil)
	if b.last == nil {
		b.head = cell
		b.hp.Reprotect(cell, b.slot)
	} else {
		b.last.SetTail(cell)
	}
	b.last = cell
	b.hp.Reprotect(nil, k)
}

func (b *listBuilder) list() *PairList { return b.head }

////////////////////////////////////////////////////////////////////////////////
//                                EXPRESSIONS
////////////////////////////////////////////////////////////////////////////////

// Expression is a call: a head (a symbol naming the function, or any
// expression evaluating to one) and a tagged argument list. Expressions are
// immutable once exposed.
type Expression struct {
	gc.Header
	head gc.Edge[Object]
	args gc.Edge[*PairList]
}

// NewExpression allocates a call node. head and args must be protected by
// the caller.
func NewExpression(hp *gc.Heap, head Object, args *PairList) *Expression {
	return gc.NewNode(hp, &Expression{}, nodeSize[Expression](0), func(e *Expression) {
		e.head.Set(head)
		if args != nil {
			e.args.Set(args)
		}
	})
}

func (*Expression) Type() Type        { return LanguageType }
func (e *Expression) Head() Object    { return e.head.Get() }
func (e *Expression) Args() *PairList { return e.args.Get() }

func (e *Expression) VisitReferents(v gc.Visitor) {
	e.head.Visit(v)
	e.args.Visit(v)
}

func (e *Expression) DetachReferents() {
	e.head.Detach()
	e.args.Detach()
}

func (e *Expression) Label() string {
	if s, ok := e.Head().(*Symbol); ok {
		return "call " + s.name
	}
	return "call"
}

////////////////////////////////////////////////////////////////////////////////
//                                    DOTS
////////////////////////////////////////////////////////////////////////////////

// Dots is the value bound to ... in a closure's frame: the unmatched
// arguments of the call, still wrapped in their promises.
type Dots struct {
	gc.Header
	args gc.Edge[*PairList]
}

func newDots(hp *gc.Heap, args *PairList) *Dots {
	return gc.NewNode(hp, &Dots{}, nodeSize[Dots](0), func(d *Dots) {
		if args != nil {
			d.args.Set(args)
		}
	})
}

func (*Dots) Type() Type                    { return DotsType }
func (d *Dots) Args() *PairList             { return d.args.Get() }
func (d *Dots) VisitReferents(v gc.Visitor) { d.args.Visit(v) }
func (d *Dots) DetachReferents()            { d.args.Detach() }
func (d *Dots) Label() string               { return fmt.Sprintf("...[%d]", d.Args().Len()) }
