// interpreter.go: SINGLE PUBLIC API SURFACE for the rho interpreter.
//
// OVERVIEW
// ========
// An *Interpreter owns one collected heap (gc.Heap), the symbol table, the
// base and global environments and the evaluator's context stack. Nothing is
// process-global: tests and hosts create as many independent interpreters as
// they like and Close each one.
//
// What you get in this file:
//   - Options (heap config, recursion bound, logger) with env overrides.
//   - New / Close (initialize / cleanup).
//   - Evaluate(call, env): the sole entry point for dispatching a call.
//   - Eval / EvalString for arbitrary expressions and source text.
//   - Constructors that allocate and expose heap objects.
//   - RegisterBuiltin for primitives supplied by the host.
//   - Diagnostics: Check, LiveNodes, Visible, Warnings.
//
// PROTECTION
// ----------
// Objects returned by this API are not protected. A host that keeps one
// across a later call that may allocate must root it (Heap.PushRoot for a
// scope, Heap.AddRoot otherwise).
//
// ERRORS
// ------
// Recoverable failures are *Error values (errors.Is(err, rho.ArgumentMatch)
// and friends) or *ReadError values from the reader. Collector failures are
// *gc.FatalError and are delivered through gc.Config.OnFatal; by default they
// panic.
package rho

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/westernmagic/rho/gc"
)

// Version is the interpreter version reported by the shell.
const Version = "0.3.0"

////////////////////////////////////////////////////////////////////////////////
//                                  OPTIONS
////////////////////////////////////////////////////////////////////////////////

// Options configures an Interpreter.
type Options struct {
	GC gc.Config
	// MaxDepth bounds the number of nested closure invocations.
	MaxDepth int
	// Logger receives evaluator records. When nil the heap's logger is used.
	Logger *slog.Logger
}

// DefaultMaxDepth is the recursion bound used when Options.MaxDepth is 0.
const DefaultMaxDepth = 5000

// DefaultOptions returns quiet options with the default heap config.
func DefaultOptions() Options {
	return Options{GC: gc.DefaultConfig(), MaxDepth: DefaultMaxDepth}
}

// OptionsFromEnv is DefaultOptions with overrides from the environment:
// the RHO_GC_* variables read by gc.ConfigFromEnv, and RHO_MAX_DEPTH.
func OptionsFromEnv() Options {
	o := DefaultOptions()
	o.GC = gc.ConfigFromEnv()
	if s := os.Getenv("RHO_MAX_DEPTH"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			o.MaxDepth = n
		}
	}
	return o
}

////////////////////////////////////////////////////////////////////////////////
//                                INTERPRETER
////////////////////////////////////////////////////////////////////////////////

// Interpreter evaluates calls over one heap. It is not safe for concurrent
// use.
type Interpreter struct {
	Heap *gc.Heap
	// Base holds the primitives; Global encloses it and holds user state.
	Base   *Environment
	Global *Environment

	log  *slog.Logger
	opts Options

	syms *symbolTable
	sym  wellKnown

	ctx      *Context
	ctxDepth int
	depth    int

	visible  bool
	warnings []string

	roots     []*gc.HeapRoot
	lastValue *gc.HeapRoot

	due        []*gc.HeapRoot // finalizers whose targets were reclaimed
	finalizing bool
}

// New initializes an interpreter: a fresh heap, the symbol table, the base
// environment with the core primitives and an empty global environment.
func New(opts Options) *Interpreter {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	hp := gc.New(opts.GC)
	log := opts.Logger
	if log == nil {
		log = hp.Logger()
	}
	ip := &Interpreter{Heap: hp, log: log, opts: opts}
	ip.syms = newSymbolTable(hp)
	ip.internWellKnown()

	ip.Base = NewEnvironment(hp, nil)
	ip.Base.name = "base"
	ip.roots = append(ip.roots, hp.AddRoot(ip.Base))
	ip.Global = NewEnvironment(hp, ip.Base)
	ip.Global.name = "R_GlobalEnv"
	ip.roots = append(ip.roots, hp.AddRoot(ip.Global))
	ip.lastValue = hp.AddRoot(nil)

	registerCore(ip)
	return ip
}

// Close tears the heap down. The interpreter must not be used afterwards.
func (ip *Interpreter) Close() {
	if ip.ctx != nil {
		ip.Heap.Abort(gc.InvariantViolation, "Close with %d active contexts", ip.ctxDepth)
	}
	ip.Heap.Cleanup()
	ip.roots = nil
}

// Logger returns the evaluator's logger.
func (ip *Interpreter) Logger() *slog.Logger { return ip.log }

// MaxDepth reports the recursion bound.
func (ip *Interpreter) MaxDepth() int { return ip.opts.MaxDepth }

// Depth reports the number of closure invocations in progress.
func (ip *Interpreter) Depth() int { return ip.depth }

// Visible reports whether the last top-level result should be printed.
func (ip *Interpreter) Visible() bool { return ip.visible }

// Warnings returns and clears the warnings raised since the last call.
func (ip *Interpreter) Warnings() []string {
	w := ip.warnings
	ip.warnings = nil
	return w
}

func (ip *Interpreter) warn(call *Expression, msg string) {
	if call != nil {
		msg = "In " + Deparse(call) + " : " + msg
	}
	ip.warnings = append(ip.warnings, msg)
	ip.log.Warn("rho: warning", "msg", msg)
}

// protect pushes o on the protect stack and returns it.
func (ip *Interpreter) protect(o Object) Object {
	ip.Heap.Protect(o)
	return o
}

////////////////////////////////////////////////////////////////////////////////
//                                 EVALUATION
////////////////////////////////////////////////////////////////////////////////

// Evaluate dispatches call in env and returns its (unprotected) result.
func (ip *Interpreter) Evaluate(call *Expression, env *Environment) (Object, error) {
	if env == nil {
		env = ip.Global
	}
	v, err := ip.evalCall(call, env)
	if err != nil {
		return nil, ip.topLevel(err)
	}
	return v, nil
}

// Eval evaluates any expression in env.
func (ip *Interpreter) Eval(expr Object, env *Environment) (Object, error) {
	if env == nil {
		env = ip.Global
	}
	restore := ip.Heap.ProtectScope()
	defer restore()
	ip.Heap.Protect(expr)
	ip.Heap.Protect(env)
	v, err := ip.eval(expr, env)
	if err != nil {
		return nil, ip.topLevel(err)
	}
	return v, nil
}

// EvalString reads src and evaluates its expressions in the global
// environment, returning the last value. The value stays rooted until the
// next EvalString, so it may be inspected between calls.
func (ip *Interpreter) EvalString(src string) (Object, error) {
	prog, err := ip.Read(src)
	if err != nil {
		return nil, WrapErrorWithSource(err, src)
	}
	root := ip.Heap.PushRoot(prog)
	defer root.Release()

	ip.visible = true
	var last Object
	for p := prog; p != nil; p = p.Tail() {
		v, err := ip.Eval(p.Car(), ip.Global)
		if err != nil {
			return nil, err
		}
		ip.lastValue.Set(v)
		last = v
		ip.runFinalizers()
	}
	return last, nil
}

// topLevel turns a return signal that escaped every closure into an error.
func (ip *Interpreter) topLevel(err error) error {
	var rs *returnSignal
	if errors.As(err, &rs) {
		return ip.errorf(InvalidArgument, nil, "%s", rs.Error())
	}
	return err
}

// Apply calls fn with already-evaluated args (tagged by names, "" for none)
// from env. Arguments are bound as values, not promises.
func (ip *Interpreter) Apply(fn Function, args []Object, names []string, env *Environment) (Object, error) {
	if env == nil {
		env = ip.Global
	}
	defer ip.Heap.ProtectScope()()
	ip.Heap.Protect(fn)
	for _, a := range args {
		ip.Heap.Protect(a)
	}
	b := newListBuilder(ip.Heap)
	for i, a := range args {
		var tag *Symbol
		if i < len(names) && names[i] != "" {
			tag = ip.Symbol(names[i])
		}
		b.add(tag, a)
	}
	list := b.list()
	ip.Heap.Protect(list)
	call := ip.protect(NewExpression(ip.Heap, fn, quoteArgs(ip, list))).(*Expression)
	v, err := ip.applyFunction(call, fn, env, list, true)
	if err != nil {
		return nil, ip.topLevel(err)
	}
	return v, nil
}

// quoteArgs builds the argument list shown in deparsed calls made by Apply:
// language objects are wrapped in quote() so the call reads as it behaves.
func quoteArgs(ip *Interpreter, args *PairList) *PairList {
	b := newListBuilder(ip.Heap)
	for p := args; p != nil; p = p.Tail() {
		v := p.Car()
		switch v.(type) {
		case *Symbol, *Expression:
			q := ip.protect(NewPairList(ip.Heap, v, nil, nil)).(*PairList)
			v = NewExpression(ip.Heap, ip.sym.quote, q)
		}
		b.add(p.Tag(), v)
	}
	return b.list()
}

////////////////////////////////////////////////////////////////////////////////
//                                CONSTRUCTORS
////////////////////////////////////////////////////////////////////////////////

// Call builds the call expression fn(args...). args are protected while the
// list is built.
func (ip *Interpreter) Call(fn string, args ...Object) *Expression {
	defer ip.Heap.ProtectScope()()
	for _, a := range args {
		ip.Heap.Protect(a)
	}
	b := newListBuilder(ip.Heap)
	for _, a := range args {
		b.add(nil, a)
	}
	return NewExpression(ip.Heap, ip.Symbol(fn), b.list())
}

// Arg pairs a tag with a value for TaggedCall.
type Arg struct {
	Name  string
	Value Object
}

// TaggedCall builds fn(name = value, ...); an empty Name means untagged.
func (ip *Interpreter) TaggedCall(fn string, args ...Arg) *Expression {
	defer ip.Heap.ProtectScope()()
	for _, a := range args {
		ip.Heap.Protect(a.Value)
	}
	b := newListBuilder(ip.Heap)
	for _, a := range args {
		var tag *Symbol
		if a.Name != "" {
			tag = ip.Symbol(a.Name)
		}
		b.add(tag, a.Value)
	}
	return NewExpression(ip.Heap, ip.Symbol(fn), b.list())
}

// Real allocates a double vector.
func (ip *Interpreter) Real(vals ...float64) *Real { return NewReal(ip.Heap, vals...) }

// Logical allocates a logical vector.
func (ip *Interpreter) Logical(vals ...bool) *Logical { return NewLogical(ip.Heap, vals...) }

// Str allocates a character vector.
func (ip *Interpreter) Str(vals ...string) *Str { return NewStr(ip.Heap, vals...) }

// NewEnv allocates an environment enclosed by parent (Global when nil).
func (ip *Interpreter) NewEnv(parent *Environment) *Environment {
	if parent == nil {
		parent = ip.Global
	}
	return NewEnvironment(ip.Heap, parent)
}

////////////////////////////////////////////////////////////////////////////////
//                                 PRIMITIVES
////////////////////////////////////////////////////////////////////////////////

// RegisterBuiltin binds a primitive in the base environment.
func (ip *Interpreter) RegisterBuiltin(spec BuiltInSpec) {
	if (spec.Direct == nil) == (spec.Indirect == nil) {
		panic("rho: builtin " + spec.Name + " needs exactly one of Direct and Indirect")
	}
	if spec.Direct != nil && spec.Special {
		panic("rho: special builtin " + spec.Name + " must use the indirect convention")
	}
	sym := ip.Symbol(spec.Name)
	ip.Base.Define(sym, newBuiltIn(ip.Heap, spec))
	if ip.log.Enabled(context.Background(), slog.LevelDebug) {
		ip.log.Debug("rho: builtin registered", "name", spec.Name, "special", spec.Special)
	}
}

////////////////////////////////////////////////////////////////////////////////
//                                DIAGNOSTICS
////////////////////////////////////////////////////////////////////////////////

// RegisterFinalizer arranges for fn to be called without arguments once
// target has been reclaimed, either by a collection or through the moribund
// path. fn is held by a heap root until it has run. The finalizer runs at
// the next safe point: after a top-level expression or inside gc().
func (ip *Interpreter) RegisterFinalizer(target Object, fn Function) *gc.WeakRef {
	hold := ip.Heap.AddRoot(fn)
	return ip.Heap.NewWeakRef(target, func(*gc.WeakRef) {
		ip.due = append(ip.due, hold)
	})
}

// PendingFinalizers reports the finalizers queued but not yet run.
func (ip *Interpreter) PendingFinalizers() int { return len(ip.due) }

func (ip *Interpreter) runFinalizers() {
	if ip.finalizing || len(ip.due) == 0 {
		return
	}
	ip.finalizing = true
	visible := ip.visible
	defer func() {
		ip.finalizing = false
		ip.visible = visible
	}()
	for len(ip.due) > 0 {
		hold := ip.due[0]
		ip.due = ip.due[1:]
		fn := hold.Get().(Function)
		root := ip.Heap.PushRoot(fn)
		hold.Remove()
		_, err := ip.Apply(fn, nil, nil, ip.Global)
		root.Release()
		if err != nil {
			ip.warn(nil, "error in finalizer: "+err.Error())
		}
	}
}

// Check validates the heap's bookkeeping and reports its counts.
func (ip *Interpreter) Check() gc.CheckReport { return ip.Heap.Check() }

// LiveNodes reports the number of live heap nodes.
func (ip *Interpreter) LiveNodes() int { return ip.Heap.LiveNodes() }

// Collect runs a full collection.
func (ip *Interpreter) Collect() bool { return ip.Heap.Collect() }

// DumpStats writes the collector statistics to w.
func (ip *Interpreter) DumpStats(w io.Writer) error {
	s := ip.Heap.Stats()
	_, err := io.WriteString(w, formatStats(s, ip.Heap.LiveNodes(), ip.Heap.Allocator().BytesAllocated()))
	return err
}

func formatStats(s gc.Stats, live int, bytes uintptr) string {
	return "nodes: " + strconv.Itoa(live) +
		"  bytes: " + strconv.FormatUint(uint64(bytes), 10) +
		"  collections: " + strconv.FormatUint(s.Collections, 10) +
		"  lite passes: " + strconv.FormatUint(s.LitePasses, 10) +
		"  deleted: " + strconv.FormatUint(s.Deleted, 10) +
		"  trigger: " + strconv.FormatUint(uint64(s.Trigger), 10) + "\n"
}
