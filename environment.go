package rho

import (
	"sort"

	"github.com/westernmagic/rho/gc"
)

// Binding associates a symbol with a value inside a Frame.
type Binding struct {
	sym    *Symbol
	value  gc.Edge[Object]
	locked bool
}

func (b *Binding) Symbol() *Symbol { return b.sym }
func (b *Binding) Value() Object   { return b.value.Get() }

// Frame holds the bindings of one environment. It is a node of its own so
// that an environment can drop its bindings (detach its frame) while the
// environment object itself is still referenced.
type Frame struct {
	gc.Header
	bindings map[*Symbol]*Binding
	order    []*Symbol
}

func newFrame(hp *gc.Heap) *Frame {
	return gc.NewNode(hp, &Frame{bindings: make(map[*Symbol]*Binding)}, nodeSize[Frame](0), nil)
}

func (*Frame) Type() Type { return FrameType }

// Binding returns the binding for sym in this frame only.
func (f *Frame) Binding(sym *Symbol) *Binding { return f.bindings[sym] }

// define binds (or rebinds) sym. Locked bindings are reported as false.
func (f *Frame) define(sym *Symbol, v Object) bool {
	b, ok := f.bindings[sym]
	if !ok {
		b = &Binding{sym: sym}
		f.bindings[sym] = b
		f.order = append(f.order, sym)
	} else if b.locked {
		return false
	}
	b.value.Set(v)
	return true
}

// importBinding copies b's symbol and value into f.
func (f *Frame) importBinding(b *Binding) { f.define(b.sym, b.Value()) }

// Symbols lists the bound names in binding order.
func (f *Frame) Symbols() []*Symbol { return append([]*Symbol(nil), f.order...) }

// Len reports the number of bindings.
func (f *Frame) Len() int { return len(f.order) }

func (f *Frame) VisitReferents(v gc.Visitor) {
	for _, s := range f.order {
		b := f.bindings[s]
		v.Visit(s)
		b.value.Visit(v)
	}
}

func (f *Frame) DetachReferents() {
	for _, s := range f.order {
		f.bindings[s].value.Detach()
	}
	f.bindings = make(map[*Symbol]*Binding)
	f.order = nil
}

func (f *Frame) Label() string { return "frame" }

// Environment is a frame chained to an enclosing environment.
type Environment struct {
	gc.Header
	enclosing gc.Edge[*Environment]
	frame     gc.Edge[*Frame]
	name      string
}

// NewEnvironment allocates an environment with an empty frame. enclosing
// must be protected by the caller.
func NewEnvironment(hp *gc.Heap, enclosing *Environment) *Environment {
	return gc.NewNode(hp, &Environment{}, nodeSize[Environment](0), func(e *Environment) {
		if enclosing != nil {
			e.enclosing.Set(enclosing)
		}
		// The environment is still under construction, so allocating its
		// frame cannot collect.
		e.frame.Set(newFrame(hp))
	})
}

func (*Environment) Type() Type                { return EnvironmentType }
func (e *Environment) Enclosing() *Environment { return e.enclosing.Get() }

// Frame returns the environment's frame, nil once detached.
func (e *Environment) Frame() *Frame { return e.frame.Get() }

// Name returns the display name of well-known environments.
func (e *Environment) Name() string { return e.name }

// Define binds sym in e's own frame. It reports false if the binding is
// locked or the frame has been detached.
func (e *Environment) Define(sym *Symbol, v Object) bool {
	f := e.Frame()
	if f == nil {
		return false
	}
	return f.define(sym, v)
}

// Lookup finds the nearest binding of sym along the enclosing chain.
func (e *Environment) Lookup(sym *Symbol) (*Binding, *Environment) {
	for env := e; env != nil; env = env.Enclosing() {
		if f := env.Frame(); f != nil {
			if b := f.Binding(sym); b != nil {
				return b, env
			}
		}
	}
	return nil, nil
}

// LocalNames lists the names bound in e's own frame, sorted.
func (e *Environment) LocalNames() []string {
	f := e.Frame()
	if f == nil {
		return nil
	}
	out := make([]string, 0, f.Len())
	for _, s := range f.order {
		out = append(out, s.name)
	}
	sort.Strings(out)
	return out
}

// maybeDetachFrame drops the frame of an execution environment once its
// call has finished, unless something besides the caller's own handle
// (counted in held) still refers to the environment.
func (e *Environment) maybeDetachFrame(held int) bool {
	if e.RefCount() > held || !e.frame.IsSet() {
		return false
	}
	e.frame.Clear()
	return true
}

func (e *Environment) VisitReferents(v gc.Visitor) {
	e.enclosing.Visit(v)
	e.frame.Visit(v)
}

func (e *Environment) DetachReferents() {
	e.enclosing.Detach()
	e.frame.Detach()
}

func (e *Environment) Label() string {
	if e.name != "" {
		return "env " + e.name
	}
	return "env"
}
