// context.go
//
// The evaluator's context stack. A context is pushed around every call
// phase that needs to be discoverable from inside it:
//
//   - Plain: a primitive that does not create a stack frame.
//   - Function: a primitive that does (sys.call sees it).
//   - Closure: argument matching and body evaluation of a closure; records
//     the argument list and the closure itself.
//   - Bailout: the body of a closure; tells return() that a ReturnBailout
//     value will be understood.
//
// Contexts form a strict stack linked through next. Push records the protect
// stack depth and protects the heap objects the context refers to; Pop
// restores that depth, so every exit path releases what the context held.
package rho

import (
	"github.com/westernmagic/rho/gc"
)

// ContextKind tags a context record.
type ContextKind uint8

const (
	PlainContext ContextKind = iota
	FunctionContext
	ClosureContext
	BailoutContext
)

func (k ContextKind) String() string {
	switch k {
	case PlainContext:
		return "plain"
	case FunctionContext:
		return "function"
	case ClosureContext:
		return "closure"
	case BailoutContext:
		return "bailout"
	}
	return "unknown"
}

// Context is one record of the context stack.
type Context struct {
	ip   *Interpreter
	kind ContextKind
	next *Context

	call        *Expression
	callEnv     *Environment
	function    Function
	workingEnv  *Environment
	promiseArgs *PairList
	// passBailouts is set on the plain context of a primitive that hands
	// bailouts straight back to its caller.
	passBailouts bool

	restore func()
	popped  bool
}

func (k *Context) Kind() ContextKind                { return k.kind }
func (k *Context) Next() *Context                   { return k.next }
func (k *Context) Call() *Expression                { return k.call }
func (k *Context) CallEnvironment() *Environment    { return k.callEnv }
func (k *Context) Function() Function               { return k.function }
func (k *Context) WorkingEnvironment() *Environment { return k.workingEnv }
func (k *Context) PromiseArgs() *PairList           { return k.promiseArgs }

func (ip *Interpreter) push(k *Context) *Context {
	hp := ip.Heap
	k.ip = ip
	k.restore = hp.ProtectScope()
	for _, o := range []Object{k.call, k.callEnv, k.workingEnv, k.promiseArgs} {
		if !isNull(o) {
			hp.Protect(o)
		}
	}
	if k.function != nil {
		hp.Protect(k.function)
	}
	k.next = ip.ctx
	ip.ctx = k
	ip.ctxDepth++
	return k
}

func (ip *Interpreter) pushPlain(passBailouts bool) *Context {
	return ip.push(&Context{kind: PlainContext, passBailouts: passBailouts})
}

func (ip *Interpreter) pushFunction(call *Expression, callEnv *Environment, fn Function) *Context {
	return ip.push(&Context{kind: FunctionContext, call: call, callEnv: callEnv, function: fn})
}

func (ip *Interpreter) pushClosure(call *Expression, callEnv *Environment, fn *Closure, working *Environment, args *PairList) *Context {
	return ip.push(&Context{
		kind:        ClosureContext,
		call:        call,
		callEnv:     callEnv,
		function:    fn,
		workingEnv:  working,
		promiseArgs: args,
	})
}

func (ip *Interpreter) pushBailout(env *Environment) *Context {
	return ip.push(&Context{kind: BailoutContext, workingEnv: env})
}

// Pop removes k, which must be the innermost context, and restores the
// enclosing one.
func (k *Context) Pop() {
	ip := k.ip
	if k.popped {
		return
	}
	if ip.ctx != k {
		ip.Heap.Abort(gc.InvariantViolation, "context popped out of order (%s)", k.kind)
	}
	k.popped = true
	ip.ctx = k.next
	ip.ctxDepth--
	k.restore()
}

// Innermost returns the top of the context stack (nil at top level).
func (ip *Interpreter) Innermost() *Context { return ip.ctx }

// ContextDepth reports the number of active contexts.
func (ip *Interpreter) ContextDepth() int { return ip.ctxDepth }

// innermostFunction walks outward from start to the first function or
// closure context.
func innermostFunction(start *Context) *Context {
	for k := start; k != nil; k = k.next {
		if k.kind == FunctionContext || k.kind == ClosureContext {
			return k
		}
	}
	return nil
}

// innermostClosure walks outward from start to the first closure context,
// skipping primitive frames.
func innermostClosure(start *Context) *Context {
	for k := innermostFunction(start); k != nil; k = innermostFunction(k.next) {
		if k.kind == ClosureContext {
			return k
		}
	}
	return nil
}

// methodCallingEnv is the environment a dispatched method treats as its
// caller: that of the innermost closure frame (the generic's), or the
// global environment at top level.
func (ip *Interpreter) methodCallingEnv() *Environment {
	if k := innermostClosure(ip.ctx); k != nil {
		return k.callEnv
	}
	return ip.Global
}

// bailoutPermitted reports whether return() evaluated in env may hand back a
// ReturnBailout: the nearest context, looking through primitives that pass
// bailouts, must be the bailout context of the closure body running in env.
func (ip *Interpreter) bailoutPermitted(env *Environment) bool {
	for k := ip.ctx; k != nil; k = k.next {
		switch {
		case k.kind == PlainContext && k.passBailouts:
			continue
		case k.kind == BailoutContext:
			return k.workingEnv == env
		default:
			return false
		}
	}
	return false
}

// traceback lists the calls of the function frames on the stack, innermost
// first.
func (ip *Interpreter) traceback() []string {
	var out []string
	for k := innermostFunction(ip.ctx); k != nil; k = innermostFunction(k.next) {
		if k.call != nil {
			out = append(out, Deparse(k.call))
		}
	}
	return out
}
