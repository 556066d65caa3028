// object.go
//
// The object model: every value the evaluator touches is a collectible node
// (it embeds gc.Header) and implements Object. NULL is the Go nil Object.
//
// Heap-to-heap pointers are always gc.Edge fields so that reference counts
// and the mark pass see them. Vectors carry an optional attribute pairlist
// (names, class).
package rho

import (
	"fmt"
	"unsafe"

	"github.com/westernmagic/rho/gc"
)

// Type enumerates object kinds.
type Type uint8

const (
	NilType Type = iota
	SymbolType
	PairListType
	LanguageType
	ClosureType
	EnvironmentType
	PromiseType
	SpecialType
	BuiltinType
	LogicalType
	RealType
	StringType
	ListType
	DotsType
	BailoutType
	FrameType
)

var typeNames = [...]string{
	NilType:         "NULL",
	SymbolType:      "symbol",
	PairListType:    "pairlist",
	LanguageType:    "language",
	ClosureType:     "closure",
	EnvironmentType: "environment",
	PromiseType:     "promise",
	SpecialType:     "special",
	BuiltinType:     "builtin",
	LogicalType:     "logical",
	RealType:        "double",
	StringType:      "character",
	ListType:        "list",
	DotsType:        "...",
	BailoutType:     "bailout",
	FrameType:       "frame",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Object is implemented by every collectible value.
type Object interface {
	gc.Node
	Type() Type
}

// TypeOf returns o's type, NilType for NULL.
func TypeOf(o Object) Type {
	if isNull(o) {
		return NilType
	}
	return o.Type()
}

func isNull(o Object) bool { return gc.HeaderOf(o) == nil }

// nodeSize is the byte count charged to the heap for a node of type T with
// extra payload bytes.
func nodeSize[T any](extra uintptr) uintptr {
	var zero T
	return unsafe.Sizeof(zero) + extra
}

////////////////////////////////////////////////////////////////////////////////
//                                 ATTRIBUTES
////////////////////////////////////////////////////////////////////////////////

// attributed is embedded by objects that may carry attributes.
type attributed struct {
	gc.Header
	attrs gc.Edge[*PairList]
}

// Attributes returns the attribute pairlist (tag = attribute name).
func (a *attributed) Attributes() *PairList { return a.attrs.Get() }

// Attr returns the attribute named name, or nil.
func (a *attributed) Attr(name *Symbol) Object {
	for p := a.attrs.Get(); p != nil; p = p.Tail() {
		if p.Tag() == name {
			return p.Car()
		}
	}
	return nil
}

// setAttr replaces or appends an attribute. Both a and v must be protected
// by the caller: appending allocates.
func (a *attributed) setAttr(hp *gc.Heap, name *Symbol, v Object) {
	var last *PairList
	for p := a.attrs.Get(); p != nil; p = p.Tail() {
		if p.Tag() == name {
			p.SetCar(v)
			return
		}
		last = p
	}
	cell := NewPairList(hp, v, name, nil)
	if last == nil {
		a.attrs.Set(cell)
	} else {
		last.SetTail(cell)
	}
}

// copyAttrs gives a a fresh copy of from's attribute cells, so that later
// setAttr calls on either object do not show through.
func (a *attributed) copyAttrs(hp *gc.Heap, from *attributed) {
	defer hp.ProtectScope()()
	b := newListBuilder(hp)
	for p := from.attrs.Get(); p != nil; p = p.Tail() {
		b.add(p.Tag(), p.Car())
	}
	if l := b.list(); l != nil {
		a.attrs.Set(l)
	}
}

func (a *attributed) visitAttrs(v gc.Visitor) { a.attrs.Visit(v) }

////////////////////////////////////////////////////////////////////////////////
//                                  VECTORS
////////////////////////////////////////////////////////////////////////////////

// Real is a double vector.
type Real struct {
	attributed
	vals []float64
}

// NewReal allocates a double vector.
func NewReal(hp *gc.Heap, vals ...float64) *Real {
	return gc.NewNode(hp, &Real{vals: vals}, nodeSize[Real](uintptr(len(vals))*8), nil)
}

func (*Real) Type() Type                    { return RealType }
func (x *Real) Values() []float64           { return x.vals }
func (x *Real) Len() int                    { return len(x.vals) }
func (x *Real) VisitReferents(v gc.Visitor) { x.visitAttrs(v) }
func (x *Real) DetachReferents()            { x.attrs.Detach() }
func (x *Real) Label() string               { return fmt.Sprintf("double[%d]", len(x.vals)) }

// Logical is a logical vector.
type Logical struct {
	attributed
	vals []bool
}

// NewLogical allocates a logical vector.
func NewLogical(hp *gc.Heap, vals ...bool) *Logical {
	return gc.NewNode(hp, &Logical{vals: vals}, nodeSize[Logical](uintptr(len(vals))), nil)
}

func (*Logical) Type() Type                    { return LogicalType }
func (x *Logical) Values() []bool              { return x.vals }
func (x *Logical) Len() int                    { return len(x.vals) }
func (x *Logical) VisitReferents(v gc.Visitor) { x.visitAttrs(v) }
func (x *Logical) DetachReferents()            { x.attrs.Detach() }
func (x *Logical) Label() string               { return fmt.Sprintf("logical[%d]", len(x.vals)) }

// Str is a character vector.
type Str struct {
	attributed
	vals []string
}

// NewStr allocates a character vector.
func NewStr(hp *gc.Heap, vals ...string) *Str {
	extra := uintptr(0)
	for _, s := range vals {
		extra += uintptr(len(s)) + 16
	}
	return gc.NewNode(hp, &Str{vals: vals}, nodeSize[Str](extra), nil)
}

func (*Str) Type() Type                    { return StringType }
func (x *Str) Values() []string            { return x.vals }
func (x *Str) Len() int                    { return len(x.vals) }
func (x *Str) VisitReferents(v gc.Visitor) { x.visitAttrs(v) }
func (x *Str) DetachReferents()            { x.attrs.Detach() }
func (x *Str) Label() string               { return fmt.Sprintf("character[%d]", len(x.vals)) }

// List is a generic vector.
type List struct {
	attributed
	elems []gc.Edge[Object]
}

// NewList allocates a list holding elems. The elements must be protected by
// the caller until NewList returns.
func NewList(hp *gc.Heap, elems ...Object) *List {
	size := nodeSize[List](uintptr(len(elems)) * nodeSize[gc.Edge[Object]](0))
	return gc.NewNode(hp, &List{elems: make([]gc.Edge[Object], len(elems))}, size, func(l *List) {
		for i, e := range elems {
			l.elems[i].Set(e)
		}
	})
}

func (*List) Type() Type { return ListType }
func (x *List) Len() int { return len(x.elems) }

// At returns element i.
func (x *List) At(i int) Object { return x.elems[i].Get() }

func (x *List) VisitReferents(v gc.Visitor) {
	x.visitAttrs(v)
	for i := range x.elems {
		x.elems[i].Visit(v)
	}
}

func (x *List) DetachReferents() {
	x.attrs.Detach()
	for i := range x.elems {
		x.elems[i].Detach()
	}
}

func (x *List) Label() string { return fmt.Sprintf("list[%d]", len(x.elems)) }

// vectorLen returns the length of a vector-like object, -1 for other kinds.
func vectorLen(o Object) int {
	switch x := o.(type) {
	case nil:
		return 0
	case *Real:
		return x.Len()
	case *Logical:
		return x.Len()
	case *Str:
		return x.Len()
	case *List:
		return x.Len()
	case *PairList:
		return x.Len()
	case *Expression:
		return 1 + x.Args().Len()
	}
	if isNull(o) {
		return 0
	}
	return -1
}

// attrsOf returns the attribute holder of o, or nil.
func attrsOf(o Object) *attributed {
	switch x := o.(type) {
	case *Real:
		return &x.attributed
	case *Logical:
		return &x.attributed
	case *Str:
		return &x.attributed
	case *List:
		return &x.attributed
	case *Closure:
		return &x.attributed
	}
	return nil
}

// shallowCopy duplicates a vector's payload (not its elements' targets) so
// attributes can be changed without touching the original.
func shallowCopy(hp *gc.Heap, o Object) Object {
	var out Object
	switch x := o.(type) {
	case *Real:
		out = NewReal(hp, append([]float64(nil), x.vals...)...)
	case *Logical:
		out = NewLogical(hp, append([]bool(nil), x.vals...)...)
	case *Str:
		out = NewStr(hp, append([]string(nil), x.vals...)...)
	case *List:
		elems := make([]Object, len(x.elems))
		for i := range x.elems {
			elems[i] = x.elems[i].Get()
		}
		out = NewList(hp, elems...)
	default:
		return o
	}
	restore := hp.ProtectScope()
	hp.Protect(out)
	attrsOf(out).copyAttrs(hp, attrsOf(o))
	restore()
	return out
}
