package rho

// ---- environments & the context stack ---------------------------------

func registerIntrospectionBuiltins(ip *Interpreter) {
	// environment(fun = NULL): fun's environment, or the calling one.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "environment", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) == 0 || args[0] == nil {
				return c.env, nil
			}
			if f, ok := args[0].(*Closure); ok {
				return f.Env(), nil
			}
			return nil, nil
		},
	})

	// globalenv(), baseenv()
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "globalenv", Arity: 0,
		Direct: func(c *Call, _ []Object) (Object, error) { return c.ip.Global, nil },
	})
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "baseenv", Arity: 0,
		Direct: func(c *Call, _ []Object) (Object, error) { return c.ip.Base, nil },
	})

	// new.env(parent = <calling environment>)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "new.env", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			parent := c.env
			for i, a := range args {
				if c.Tag(i) == "parent" || (c.Tag(i) == "" && i == 0) {
					e, ok := a.(*Environment)
					if !ok {
						return nil, c.Errorf(InvalidArgument, "'enclos' must be an environment")
					}
					parent = e
				}
			}
			return NewEnvironment(c.Heap(), parent), nil
		},
	})

	// parent.frame(n = 1): the environment the n-th enclosing closure was
	// called from.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "parent.frame", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			n, err := countArg(c, args, 1)
			if err != nil {
				return nil, err
			}
			env := c.env
			for ; n > 0; n-- {
				k := c.ip.closureContextFor(env)
				if k == nil {
					return c.ip.Global, nil
				}
				env = k.callEnv
			}
			return env, nil
		},
	})

	// sys.call(), sys.function(): the call and the closure whose body is
	// being evaluated.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "sys.call", Arity: 0,
		Direct: func(c *Call, _ []Object) (Object, error) {
			if k := c.ip.closureContextFor(c.env); k != nil {
				return k.call, nil
			}
			return nil, nil
		},
	})
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "sys.function", Arity: 0,
		Direct: func(c *Call, _ []Object) (Object, error) {
			if k := c.ip.closureContextFor(c.env); k != nil {
				return k.function, nil
			}
			return nil, c.Errorf(InvalidArgument, "not that many frames on the stack")
		},
	})

	// sys.nframe(): the number of closure frames.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "sys.nframe", Arity: 0, StackFrame: true,
		Direct: func(c *Call, _ []Object) (Object, error) {
			n := 0
			for k := innermostClosure(c.ip.ctx); k != nil; k = innermostClosure(k.next) {
				n++
			}
			return NewReal(c.Heap(), float64(n)), nil
		},
	})

	// assign(x, value, envir = <calling environment>)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "assign", Arity: -1, Print: ForceOff,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) < 2 {
				return nil, c.Errorf(InvalidArgument, "argument \"value\" is missing, with no default")
			}
			name := asStrings(args[0])
			if len(name) != 1 {
				return nil, c.Errorf(InvalidArgument, "invalid first argument")
			}
			env, err := envirArg(c, args, 2)
			if err != nil {
				return nil, err
			}
			if !env.Define(c.ip.Symbol(name[0]), args[1]) {
				return nil, c.Errorf(InvalidArgument, "cannot change value of locked binding for '%s'", name[0])
			}
			return args[1], nil
		},
	})

	// get(x, envir = <calling environment>)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "get", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) < 1 {
				return nil, c.Errorf(InvalidArgument, "argument \"x\" is missing, with no default")
			}
			name := asStrings(args[0])
			if len(name) != 1 {
				return nil, c.Errorf(InvalidArgument, "invalid first argument")
			}
			env, err := envirArg(c, args, 1)
			if err != nil {
				return nil, err
			}
			b, _ := env.Lookup(c.ip.Symbol(name[0]))
			if b == nil {
				return nil, c.Errorf(UnboundVariable, "object '%s' not found", name[0])
			}
			if p, ok := b.Value().(*Promise); ok {
				return c.ip.force(p)
			}
			return b.Value(), nil
		},
	})

	// exists(x, envir = <calling environment>)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "exists", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) < 1 {
				return nil, c.Errorf(InvalidArgument, "argument \"x\" is missing, with no default")
			}
			name := asStrings(args[0])
			env, err := envirArg(c, args, 1)
			if err != nil {
				return nil, err
			}
			found := false
			if len(name) == 1 {
				b, _ := env.Lookup(c.ip.Symbol(name[0]))
				found = b != nil
			}
			return NewLogical(c.Heap(), found), nil
		},
	})

	// do.call(what, args): calls what (a function or its name) with the
	// elements of the list args, tagged by its names.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "do.call", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, c.Errorf(InvalidArgument, "do.call needs a function and an argument list")
			}
			return c.ip.doCall(c, args)
		},
	})

	// gc(): full collection; returns c(nodes, bytes) invisibly.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "gc", Arity: 0, Print: ForceOff,
		Direct: func(c *Call, _ []Object) (Object, error) {
			hp := c.Heap()
			// A host holding an inhibitor has suspended collection.
			if !hp.Inhibited() {
				hp.Collect()
				c.ip.runFinalizers()
			}
			defer hp.ProtectScope()()
			r := c.Protect(NewReal(hp,
				float64(hp.LiveNodes()), float64(hp.Allocator().BytesAllocated()))).(*Real)
			r.setAttr(hp, c.ip.sym.names, c.Protect(NewStr(hp, "nodes", "bytes")))
			return r, nil
		},
	})

	// reg.finalizer(e, f): f() is called once e has been reclaimed.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "reg.finalizer", Arity: 2, Print: ForceOff,
		Direct: func(c *Call, args []Object) (Object, error) {
			if isNull(args[0]) {
				return nil, c.Errorf(InvalidArgument, "cannot register a finalizer for NULL")
			}
			if _, ok := args[0].(*Symbol); ok {
				return nil, c.Errorf(InvalidArgument, "symbols are never reclaimed")
			}
			fn, ok := args[1].(Function)
			if !ok {
				return nil, c.Errorf(InvalidArgument, "second argument must be a function")
			}
			c.ip.RegisterFinalizer(args[0], fn)
			return nil, nil
		},
	})
}

func countArg(c *Call, args []Object, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	v := asReals(args[0])
	if len(v) != 1 || v[0] < 1 {
		return 0, c.Errorf(InvalidArgument, "invalid 'n' value")
	}
	return int(v[0]), nil
}

// envirArg picks the environment argument: tagged envir, or the argument at
// position pos, or the calling environment.
func envirArg(c *Call, args []Object, pos int) (*Environment, error) {
	var v Object
	found := false
	for i := range args {
		if c.Tag(i) == "envir" {
			v, found = args[i], true
		}
	}
	if !found && pos < len(args) && c.Tag(pos) == "" {
		v, found = args[pos], true
	}
	if !found {
		return c.env, nil
	}
	e, ok := v.(*Environment)
	if !ok {
		return nil, c.Errorf(InvalidArgument, "invalid 'envir' argument")
	}
	return e, nil
}

func (ip *Interpreter) doCall(c *Call, args []Object) (Object, error) {
	hp := ip.Heap
	defer hp.ProtectScope()()

	var head Object
	var fn Function
	switch w := args[0].(type) {
	case *Str:
		if w.Len() != 1 {
			return nil, c.Errorf(InvalidArgument, "'what' must be a function or character string")
		}
		sym := ip.Symbol(w.vals[0])
		f, err := ip.findFunction(sym, c.env)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, c.Errorf(NoSuchFunction, "could not find function \"%s\"", w.vals[0])
		}
		head, fn = sym, f
	case Function:
		head, fn = w, w
	default:
		return nil, c.Errorf(InvalidArgument, "'what' must be a function or character string")
	}
	ip.protect(fn)

	b := newListBuilder(hp)
	if len(args) == 2 && args[1] != nil {
		l, ok := args[1].(*List)
		if !ok {
			return nil, c.Errorf(InvalidArgument, "second argument must be a list")
		}
		var names []string
		if nm, ok := l.Attr(ip.sym.names).(*Str); ok {
			names = nm.vals
		}
		for i := 0; i < l.Len(); i++ {
			var tag *Symbol
			if i < len(names) && names[i] != "" {
				tag = ip.Symbol(names[i])
			}
			b.add(tag, l.At(i))
		}
	}
	list := b.list()
	call := ip.protect(NewExpression(hp, head, quoteArgs(ip, list))).(*Expression)
	return ip.applyFunction(call, fn, c.env, list, true)
}
