package rho

import (
	"fmt"

	"github.com/westernmagic/rho/gc"
)

// Function is implemented by *Closure and *BuiltIn.
type Function interface {
	Object
	isFunction()
}

////////////////////////////////////////////////////////////////////////////////
//                                  CLOSURES
////////////////////////////////////////////////////////////////////////////////

// Closure pairs a formal argument list and a body with the environment the
// closure was created in. Closures are immutable once exposed (apart from
// their attributes).
type Closure struct {
	attributed
	formals gc.Edge[*PairList]
	body    gc.Edge[Object]
	env     gc.Edge[*Environment]
}

// NewClosure allocates a closure. formals, body and env must be protected by
// the caller. Each formal is a cell tagged with the parameter name whose car
// is the default expression or the missing-argument marker.
func NewClosure(hp *gc.Heap, formals *PairList, body Object, env *Environment) *Closure {
	return gc.NewNode(hp, &Closure{}, nodeSize[Closure](0), func(c *Closure) {
		if formals != nil {
			c.formals.Set(formals)
		}
		c.body.Set(body)
		if env != nil {
			c.env.Set(env)
		}
	})
}

func (*Closure) Type() Type           { return ClosureType }
func (*Closure) isFunction()          {}
func (c *Closure) Formals() *PairList { return c.formals.Get() }
func (c *Closure) Body() Object       { return c.body.Get() }
func (c *Closure) Env() *Environment  { return c.env.Get() }

func (c *Closure) VisitReferents(v gc.Visitor) {
	c.visitAttrs(v)
	c.formals.Visit(v)
	c.body.Visit(v)
	c.env.Visit(v)
}

func (c *Closure) DetachReferents() {
	c.attrs.Detach()
	c.formals.Detach()
	c.body.Detach()
	c.env.Detach()
}

func (c *Closure) Label() string { return "closure" }

////////////////////////////////////////////////////////////////////////////////
//                                 PRIMITIVES
////////////////////////////////////////////////////////////////////////////////

// PrintHandling says how a primitive affects the interpreter's visibility
// flag (whether a top-level result is printed).
type PrintHandling uint8

const (
	// ForceOn makes the result visible after the call.
	ForceOn PrintHandling = iota
	// ForceOff makes the result invisible after the call.
	ForceOff
	// SoftOn turns visibility on before the call and lets the primitive
	// decide.
	SoftOn
)

// DirectFn implements a primitive using the direct calling convention: the
// arguments arrive evaluated, in an array, with their tags alongside.
type DirectFn func(c *Call, args []Object) (Object, error)

// IndirectFn implements a primitive using the indirect calling convention:
// the argument list arrives as a pairlist, evaluated unless the primitive is
// special.
type IndirectFn func(c *Call, args *PairList) (Object, error)

// BuiltInSpec describes a primitive for RegisterBuiltin.
type BuiltInSpec struct {
	Name string
	// Special primitives receive their arguments unevaluated.
	Special bool
	// Arity is the required argument count for direct primitives; -1 means
	// any number.
	Arity int
	Print PrintHandling
	// StackFrame makes the call push a function context (visible to
	// sys.call and tracebacks) instead of a plain one.
	StackFrame bool
	// PassBailouts marks sequencing primitives ({, if) that hand a
	// ReturnBailout from one of their operands straight back to their
	// caller.
	PassBailouts bool

	Direct   DirectFn
	Indirect IndirectFn
}

// BuiltIn is a primitive function.
type BuiltIn struct {
	gc.Header
	spec BuiltInSpec
}

func newBuiltIn(hp *gc.Heap, spec BuiltInSpec) *BuiltIn {
	return gc.NewNode(hp, &BuiltIn{spec: spec}, nodeSize[BuiltIn](0), nil)
}

func (b *BuiltIn) Type() Type {
	if b.spec.Special {
		return SpecialType
	}
	return BuiltinType
}

func (*BuiltIn) isFunction()                    {}
func (b *BuiltIn) Name() string                 { return b.spec.Name }
func (b *BuiltIn) Special() bool                { return b.spec.Special }
func (b *BuiltIn) PrintHandling() PrintHandling { return b.spec.Print }
func (b *BuiltIn) CreatesStackFrame() bool      { return b.spec.StackFrame }
func (b *BuiltIn) DirectCall() bool             { return b.spec.Direct != nil }
func (b *BuiltIn) VisitReferents(gc.Visitor)    {}
func (b *BuiltIn) DetachReferents()             {}
func (b *BuiltIn) Label() string                { return fmt.Sprintf("%s %q", b.Type(), b.spec.Name) }

// Call is what a primitive sees of the call being evaluated.
type Call struct {
	ip   *Interpreter
	expr *Expression
	env  *Environment
	fn   *BuiltIn
	// Tags holds the argument tags of a direct call (nil for untagged).
	Tags []*Symbol
}

// Interp returns the interpreter.
func (c *Call) Interp() *Interpreter { return c.ip }

// Heap returns the interpreter's heap.
func (c *Call) Heap() *gc.Heap { return c.ip.Heap }

// Expr returns the call expression.
func (c *Call) Expr() *Expression { return c.expr }

// Env returns the environment the call is evaluated in.
func (c *Call) Env() *Environment { return c.env }

// Eval evaluates o in env.
func (c *Call) Eval(o Object, env *Environment) (Object, error) { return c.ip.eval(o, env) }

// Errorf builds an evaluation error attributed to this call.
func (c *Call) Errorf(kind ErrorKind, format string, args ...any) error {
	return c.ip.errorf(kind, c.expr, format, args...)
}

// Protect keeps o alive until the current call returns.
func (c *Call) Protect(o Object) Object {
	c.ip.Heap.Protect(o)
	return o
}

// Tag returns the tag of argument i of a direct call, "" if untagged.
func (c *Call) Tag(i int) string {
	if i < len(c.Tags) && c.Tags[i] != nil {
		return c.Tags[i].name
	}
	return ""
}

////////////////////////////////////////////////////////////////////////////////
//                                  BAILOUTS
////////////////////////////////////////////////////////////////////////////////

// ReturnBailout is the lightweight value that carries return(value) out of a
// closure body when the enclosing context has said it understands bailouts.
type ReturnBailout struct {
	gc.Header
	env   gc.Edge[*Environment]
	value gc.Edge[Object]
}

func newReturnBailout(hp *gc.Heap, env *Environment, v Object) *ReturnBailout {
	return gc.NewNode(hp, &ReturnBailout{}, nodeSize[ReturnBailout](0), func(b *ReturnBailout) {
		b.env.Set(env)
		b.value.Set(v)
	})
}

func (*ReturnBailout) Type() Type          { return BailoutType }
func (b *ReturnBailout) Env() *Environment { return b.env.Get() }
func (b *ReturnBailout) Value() Object     { return b.value.Get() }
func (b *ReturnBailout) Label() string     { return "return bailout" }

func (b *ReturnBailout) VisitReferents(v gc.Visitor) {
	b.env.Visit(v)
	b.value.Visit(v)
}

func (b *ReturnBailout) DetachReferents() {
	b.env.Detach()
	b.value.Detach()
}

// returnSignal carries return(value) across contexts that do not understand
// bailouts. It is an error value caught by the closure whose execution
// environment is env.
type returnSignal struct {
	env   *Environment
	value Object
}

func (r *returnSignal) Error() string {
	return "no function to return from, jumping to top level"
}
