// interpreter_exec.go: PRIVATE EVALUATION ENGINE for the rho interpreter.
//
// OVERVIEW
// ========
// This file implements evaluation: symbols, promises, and above all calls.
//
//	eval(o, env)
//	  ├─ Symbol      → lookup along env chain, force promises
//	  ├─ Promise     → force
//	  ├─ Expression  → evalCall
//	  └─ otherwise   → self-evaluating
//
//	evalCall(call, env)
//	  resolve callee (symbol → function lookup; else evaluate and check)
//	  ├─ BuiltIn  → applyBuiltIn: push plain/function context,
//	  │             direct (evaluated array) or indirect (pairlist) convention,
//	  │             print handling
//	  └─ Closure  → invokeClosure: frame boundary, depth counter, promises,
//	                fresh environment, matching under a closure context,
//	                method bindings, body under closure + bailout contexts,
//	                frame detaching
//
// PROTECTION DISCIPLINE
// ---------------------
// Every evalCall opens a protect scope; temporaries (the callee, evaluated
// arguments, promise lists) are protected inside it and released when the
// call returns. A returned Object is therefore unprotected: a caller that
// allocates before storing it in an edge must protect it first.
//
// NON-LOCAL EXITS
// ---------------
// Errors are ordinary Go error returns. return() travels either as a
// ReturnBailout value (when the body's bailout context is the nearest one)
// or as a *returnSignal error caught by the closure that owns the target
// environment. Every context pop, root release and frame detach happens on
// the way out, whatever the exit.
package rho

import (
	"context"
	"errors"
	"log/slog"
)

////////////////////////////////////////////////////////////////////////////////
//                                    EVAL
////////////////////////////////////////////////////////////////////////////////

func (ip *Interpreter) eval(o Object, env *Environment) (Object, error) {
	switch x := o.(type) {
	case nil:
		ip.visible = true
		return nil, nil
	case *Symbol:
		return ip.evalSymbol(x, env)
	case *Expression:
		return ip.evalCall(x, env)
	case *Promise:
		return ip.force(x)
	case *Dots:
		return nil, ip.errorf(InvalidArgument, nil, "'...' used in an incorrect context")
	default:
		ip.visible = true
		return o, nil
	}
}

func (ip *Interpreter) evalSymbol(s *Symbol, env *Environment) (Object, error) {
	ip.visible = true
	switch s {
	case ip.sym.dots:
		return nil, ip.errorf(InvalidArgument, nil, "'...' used in an incorrect context")
	case ip.sym.missing:
		return nil, ip.errorf(ArgumentMatch, nil, "argument is missing, with no default")
	}
	b, _ := env.Lookup(s)
	if b == nil {
		return nil, ip.errorf(UnboundVariable, nil, "object '%s' not found", s.name)
	}
	v := b.Value()
	if v == Object(ip.sym.missing) {
		return nil, ip.errorf(ArgumentMatch, nil, "argument \"%s\" is missing, with no default", s.name)
	}
	if p, ok := v.(*Promise); ok {
		return ip.force(p)
	}
	return v, nil
}

// findFunction looks sym up as a function along env's chain, skipping
// bindings whose (forced) value is not a function.
func (ip *Interpreter) findFunction(sym *Symbol, env *Environment) (Function, error) {
	for e := env; e != nil; e = e.Enclosing() {
		f := e.Frame()
		if f == nil {
			continue
		}
		b := f.Binding(sym)
		if b == nil {
			continue
		}
		v := b.Value()
		if p, ok := v.(*Promise); ok {
			var err error
			if v, err = ip.force(p); err != nil {
				return nil, err
			}
		}
		if fn, ok := v.(Function); ok {
			return fn, nil
		}
	}
	return nil, nil
}

////////////////////////////////////////////////////////////////////////////////
//                                   CALLS
////////////////////////////////////////////////////////////////////////////////

func (ip *Interpreter) evalCall(call *Expression, env *Environment) (Object, error) {
	defer ip.Heap.ProtectScope()()
	ip.Heap.Protect(call)

	var fn Function
	switch head := call.Head().(type) {
	case *Symbol:
		f, err := ip.findFunction(head, env)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, ip.errorf(NoSuchFunction, call, "could not find function \"%s\"", head.name)
		}
		fn = f
	default:
		v, err := ip.eval(head, env)
		if err != nil {
			return nil, err
		}
		f, ok := v.(Function)
		if !ok {
			return nil, ip.errorf(NotAFunction, call, "attempt to apply non-function")
		}
		fn = f
	}
	ip.Heap.Protect(fn)
	return ip.applyFunction(call, fn, env, call.Args(), false)
}

// applyFunction dispatches on the callee kind. promised reports that args
// already hold promises (or values) rather than raw expressions.
func (ip *Interpreter) applyFunction(call *Expression, fn Function, env *Environment, args *PairList, promised bool) (Object, error) {
	switch f := fn.(type) {
	case *Closure:
		return ip.invokeClosure(call, f, env, args, promised, nil)
	case *BuiltIn:
		return ip.applyBuiltIn(call, f, env, args, promised)
	}
	return nil, ip.errorf(NotAFunction, call, "attempt to apply non-function")
}

////////////////////////////////////////////////////////////////////////////////
//                                 PRIMITIVES
////////////////////////////////////////////////////////////////////////////////

func (ip *Interpreter) applyBuiltIn(call *Expression, fn *BuiltIn, env *Environment, args *PairList, evaluated bool) (Object, error) {
	var k *Context
	if fn.spec.StackFrame {
		k = ip.pushFunction(call, env, fn)
	} else {
		k = ip.pushPlain(fn.spec.PassBailouts)
	}
	res, err := ip.evaluateBuiltInCall(call, fn, env, args, evaluated)
	k.Pop()
	if err != nil {
		return nil, err
	}
	if fn.spec.Print != SoftOn {
		ip.visible = fn.spec.Print != ForceOff
	}
	return res, nil
}

func (ip *Interpreter) evaluateBuiltInCall(call *Expression, fn *BuiltIn, env *Environment, args *PairList, evaluated bool) (Object, error) {
	c := &Call{ip: ip, expr: call, env: env, fn: fn}
	if fn.spec.Direct != nil {
		if !evaluated && ip.hasDots(args) {
			var err error
			if args, err = ip.evaluateArgs(call, args, env); err != nil {
				return nil, err
			}
			evaluated = true
		}
		vals, tags, err := ip.evaluateToArray(args, env, evaluated)
		if err != nil {
			return nil, err
		}
		if fn.spec.Arity >= 0 && len(vals) != fn.spec.Arity {
			return nil, ip.errorf(InvalidArgument, call,
				"%d argument%s passed to '%s' which requires %d", len(vals), plural(len(vals)), fn.spec.Name, fn.spec.Arity)
		}
		c.Tags = tags
		if fn.spec.Print == SoftOn {
			ip.visible = true
		}
		return fn.spec.Direct(c, vals)
	}

	if !fn.spec.Special && !evaluated {
		var err error
		if args, err = ip.evaluateArgs(call, args, env); err != nil {
			return nil, err
		}
	}
	if fn.spec.Print == SoftOn {
		ip.visible = true
	}
	return fn.spec.Indirect(c, args)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

////////////////////////////////////////////////////////////////////////////////
//                                  CLOSURES
////////////////////////////////////////////////////////////////////////////////

// invokeClosure runs f for call. The whole invocation sits inside one frame
// boundary, so stack roots left behind by an interrupted inner call are torn
// down with it. method, when non-nil, holds supplementary bindings for a
// dispatched method, which also sees the generic's caller as its calling
// environment.
func (ip *Interpreter) invokeClosure(call *Expression, f *Closure, callEnv *Environment, args *PairList, promised bool, method *Frame) (res Object, err error) {
	hp := ip.Heap
	fb := hp.EnterFrame()
	defer fb.Exit()

	if ip.depth >= ip.opts.MaxDepth {
		return nil, ip.errorf(StackOverflow, call,
			"evaluation nested too deeply: infinite recursion / options(expressions=)?")
	}
	ip.depth++
	defer func() { ip.depth-- }()
	if ip.log.Enabled(context.Background(), slog.LevelDebug) {
		ip.log.Debug("rho: invoke closure", "call", Deparse(call), "depth", ip.depth)
	}

	restore := hp.ProtectScope()
	defer restore()
	if !promised {
		if args, err = ip.wrapInPromises(call, args, callEnv); err != nil {
			return nil, err
		}
	}

	env := NewEnvironment(hp, f.Env())
	envRoot := hp.PushRoot(env)
	defer func() {
		// The result counts as a holder (it may be env itself); beyond that
		// the stack root is the only handle the call owns.
		if res != nil {
			hp.Protect(res)
		}
		if env.maybeDetachFrame(1) {
			ip.log.Debug("rho: frame detached", "call", Deparse(call))
		}
		envRoot.Release()
	}()

	k := ip.pushClosure(call, callEnv, f, f.Env(), args)
	err = ip.matchArgs(call, f, env, args)
	k.Pop()
	if err != nil {
		return nil, err
	}

	if method != nil {
		importMethodBindings(method, env.Frame())
		callEnv = ip.methodCallingEnv()
	}

	k = ip.pushClosure(call, callEnv, f, env, args)
	res, err = ip.execute(f, env)
	k.Pop()
	return res, err
}

// execute evaluates f's body in env under a bailout context and resolves a
// return() aimed at env.
func (ip *Interpreter) execute(f *Closure, env *Environment) (Object, error) {
	k := ip.pushBailout(env)
	res, err := ip.eval(f.Body(), env)
	k.Pop()
	if err != nil {
		var rs *returnSignal
		if errors.As(err, &rs) && rs.env == env {
			ip.visible = true
			return rs.value, nil
		}
		return nil, err
	}
	if rb, ok := res.(*ReturnBailout); ok {
		target, v := rb.Env(), rb.Value()
		// The bailout has been consumed; drop its hold on the environment so
		// the frame can be detached.
		rb.DetachReferents()
		if target == env {
			ip.visible = true
			return v, nil
		}
		return nil, &returnSignal{env: target, value: v}
	}
	return res, nil
}

func importMethodBindings(method *Frame, into *Frame) {
	if method == nil || into == nil {
		return
	}
	for _, s := range method.order {
		if into.Binding(s) == nil {
			into.importBinding(method.bindings[s])
		}
	}
}
