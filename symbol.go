package rho

import "github.com/westernmagic/rho/gc"

// Symbol is an interned name. Symbols are heap-rooted for the life of their
// interpreter, so other nodes may point at them without counting.
type Symbol struct {
	gc.Header
	name string
}

func (*Symbol) Type() Type                  { return SymbolType }
func (s *Symbol) Name() string              { return s.name }
func (s *Symbol) VisitReferents(gc.Visitor) {}
func (s *Symbol) DetachReferents()          {}
func (s *Symbol) Label() string             { return "`" + s.name + "`" }

// symbolTable interns symbols for one interpreter.
type symbolTable struct {
	hp     *gc.Heap
	byName map[string]*Symbol
	roots  []*gc.HeapRoot
}

func newSymbolTable(hp *gc.Heap) *symbolTable {
	return &symbolTable{hp: hp, byName: make(map[string]*Symbol)}
}

func (t *symbolTable) intern(name string) *Symbol {
	if s, ok := t.byName[name]; ok {
		return s
	}
	s := gc.NewNode(t.hp, &Symbol{name: name}, nodeSize[Symbol](uintptr(len(name))), nil)
	t.roots = append(t.roots, t.hp.AddRoot(s))
	t.byName[name] = s
	return s
}

// Symbol interns name.
func (ip *Interpreter) Symbol(name string) *Symbol { return ip.syms.intern(name) }

// Well-known symbols, interned once per interpreter.
type wellKnown struct {
	missing  *Symbol // the empty argument marker
	dots     *Symbol // ...
	class    *Symbol
	names    *Symbol
	generic  *Symbol // .Generic
	dotClass *Symbol // .Class
	function *Symbol
	quote    *Symbol
}

func (ip *Interpreter) internWellKnown() {
	ip.sym = wellKnown{
		missing:  ip.Symbol(""),
		dots:     ip.Symbol("..."),
		class:    ip.Symbol("class"),
		names:    ip.Symbol("names"),
		generic:  ip.Symbol(".Generic"),
		dotClass: ip.Symbol(".Class"),
		function: ip.Symbol("function"),
		quote:    ip.Symbol("quote"),
	}
}

// MissingArg is the marker bound to empty arguments and to formals without
// defaults in a formal list.
func (ip *Interpreter) MissingArg() *Symbol { return ip.sym.missing }
