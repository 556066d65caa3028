package rho

import (
	"strings"

	"github.com/westernmagic/rho/gc"
)

// ---- language built-ins -----------------------------------------------

// registerCore installs every primitive in the base environment.
func registerCore(ip *Interpreter) {
	registerLanguageBuiltins(ip)
	registerConditionBuiltins(ip)
	registerDispatchBuiltins(ip)
	registerVectorBuiltins(ip)
	registerArithBuiltins(ip)
	registerIntrospectionBuiltins(ip)
}

func registerLanguageBuiltins(ip *Interpreter) {
	// quote(expr) -> expr, unevaluated
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "quote", Special: true, Arity: 1,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			if args.Len() != 1 {
				return nil, c.Errorf(InvalidArgument, "%d arguments passed to 'quote' which requires 1", args.Len())
			}
			return args.Car(), nil
		},
	})

	// { e1 e2 ... } -> value of the last expression. A bailout from any
	// operand ends the block.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "{", Special: true, Arity: -1, Print: SoftOn, PassBailouts: true,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			var res Object
			c.ip.visible = true
			for p := args; p != nil; p = p.Tail() {
				v, err := c.ip.eval(p.Car(), c.env)
				if err != nil {
					return nil, err
				}
				if _, ok := v.(*ReturnBailout); ok {
					return v, nil
				}
				res = v
			}
			return res, nil
		},
	})

	// if(cond, yes, no?)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "if", Special: true, Arity: -1, Print: SoftOn, PassBailouts: true,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			n := args.Len()
			if n < 2 || n > 3 {
				return nil, c.Errorf(InvalidArgument, "malformed if: %d operands", n)
			}
			cond, err := c.ip.eval(args.Car(), c.env)
			if err != nil {
				return nil, err
			}
			ok, err := asCondition(c, cond)
			if err != nil {
				return nil, err
			}
			if ok {
				return c.ip.eval(args.Tail().Car(), c.env)
			}
			if n == 3 {
				return c.ip.eval(args.Tail().Tail().Car(), c.env)
			}
			c.ip.visible = false
			return nil, nil
		},
	})

	// x <- value; the target may be a symbol or a string.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "<-", Special: true, Arity: 2, Print: ForceOff,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			if args.Len() != 2 {
				return nil, c.Errorf(InvalidArgument, "invalid assignment")
			}
			sym, err := assignTarget(c, args.Car())
			if err != nil {
				return nil, err
			}
			v, err := c.ip.eval(args.Tail().Car(), c.env)
			if err != nil {
				return nil, err
			}
			if !c.env.Define(sym, v) {
				return nil, c.Errorf(InvalidArgument, "cannot change value of locked binding for '%s'", sym.name)
			}
			return v, nil
		},
	})

	// function(formals, body) -> closure over the calling environment. The
	// reader delivers formals as a tagged pairlist.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "function", Special: true, Arity: 2,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			if args.Len() != 2 {
				return nil, c.Errorf(InvalidArgument, "invalid formal argument list for \"function\"")
			}
			var formals *PairList
			switch f := args.Car().(type) {
			case nil:
			case *PairList:
				formals = f
			default:
				if !isNull(f) {
					return nil, c.Errorf(InvalidArgument, "invalid formal argument list for \"function\"")
				}
			}
			if err := checkFormals(c, formals); err != nil {
				return nil, err
			}
			return NewClosure(c.Heap(), formals, args.Tail().Car(), c.env), nil
		},
	})

	// return(value = NULL)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "return", Special: true, Arity: -1, PassBailouts: true,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			var v Object
			switch args.Len() {
			case 0:
			case 1:
				var err error
				if v, err = c.ip.eval(args.Car(), c.env); err != nil {
					return nil, err
				}
			default:
				return nil, c.Errorf(InvalidArgument, "multi-argument returns are not permitted")
			}
			return c.ip.returnFrom(c.env, v)
		},
	})

	// invisible(x = NULL)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "invisible", Arity: -1, Print: ForceOff,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) > 1 {
				return nil, c.Errorf(InvalidArgument, "%d arguments passed to 'invisible' which requires 0 or 1", len(args))
			}
			if len(args) == 0 {
				return nil, nil
			}
			return args[0], nil
		},
	})

	// identity(x), force(x): the argument, evaluated.
	for _, name := range []string{"identity", "force"} {
		ip.RegisterBuiltin(BuiltInSpec{
			Name: name, Arity: 1,
			Direct: func(c *Call, args []Object) (Object, error) { return args[0], nil },
		})
	}
}

// returnFrom hands v back to the closure running in env: as a bailout when
// the nearest context understands one, as a return signal otherwise.
func (ip *Interpreter) returnFrom(env *Environment, v Object) (Object, error) {
	if ip.bailoutPermitted(env) {
		ip.protect(v)
		return newReturnBailout(ip.Heap, env, v), nil
	}
	return nil, &returnSignal{env: env, value: v}
}

func asCondition(c *Call, v Object) (bool, error) {
	switch x := v.(type) {
	case *Logical:
		if x.Len() > 0 {
			return x.vals[0], nil
		}
	case *Real:
		if x.Len() > 0 {
			return x.vals[0] != 0, nil
		}
	case *Str:
		if x.Len() > 0 {
			switch x.vals[0] {
			case "TRUE", "true", "T", "True":
				return true, nil
			case "FALSE", "false", "F", "False":
				return false, nil
			}
			return false, c.Errorf(InvalidArgument, "argument is not interpretable as logical")
		}
	default:
		if vectorLen(v) != 0 {
			return false, c.Errorf(InvalidArgument, "argument is not interpretable as logical")
		}
	}
	return false, c.Errorf(InvalidArgument, "argument is of length zero")
}

func assignTarget(c *Call, target Object) (*Symbol, error) {
	switch t := target.(type) {
	case *Symbol:
		if t == c.ip.sym.missing || t == c.ip.sym.dots {
			break
		}
		return t, nil
	case *Str:
		if t.Len() == 1 {
			return c.ip.Symbol(t.vals[0]), nil
		}
	}
	return nil, c.Errorf(InvalidArgument, "invalid (do_set) left-hand side to assignment")
}

func checkFormals(c *Call, formals *PairList) error {
	seen := make(map[*Symbol]bool)
	for p := formals; p != nil; p = p.Tail() {
		t := p.Tag()
		if t == nil || t.name == "" {
			return c.Errorf(InvalidArgument, "invalid formal argument list for \"function\"")
		}
		if seen[t] {
			return c.Errorf(InvalidArgument, "repeated formal argument '%s'", t.name)
		}
		seen[t] = true
	}
	return nil
}

// ---- conditions ------------------------------------------------------

func registerConditionBuiltins(ip *Interpreter) {
	// stop(...) raises a condition attributed to the calling closure.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "stop", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			msg := joinMessage(args)
			var call *Expression
			if k := c.ip.closureContextFor(c.env); k != nil {
				call = k.call
			}
			return nil, c.ip.errorf(Condition, call, "%s", msg)
		},
	})

	// warning(...) records a warning and returns its message invisibly.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "warning", Arity: -1, Print: ForceOff,
		Direct: func(c *Call, args []Object) (Object, error) {
			msg := joinMessage(args)
			var call *Expression
			if k := c.ip.closureContextFor(c.env); k != nil {
				call = k.call
			}
			c.ip.warn(call, msg)
			return NewStr(c.Heap(), msg), nil
		},
	})

	// try(expr, silent = FALSE): the value of expr, or an invisible
	// "try-error" string when evaluating it raised an error.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "try", Special: true, Arity: -1, Print: SoftOn,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			if args == nil {
				return nil, c.Errorf(InvalidArgument, "argument \"expr\" is missing, with no default")
			}
			depth, ctx := c.ip.depth, c.ip.ctx
			v, err := c.ip.eval(args.Car(), c.env)
			if err == nil {
				return v, nil
			}
			e, ok := AsError(err)
			if !ok {
				return nil, err
			}
			if c.ip.ctx != ctx || c.ip.depth != depth {
				c.Heap().Abort(gc.InvariantViolation, "context stack not unwound by error %q", e.Msg)
			}
			c.ip.log.Debug("rho: try caught", "kind", e.Kind.String(), "msg", e.Msg)
			silent := false
			if t := args.Tail(); t != nil {
				s, err := c.ip.eval(t.Car(), c.env)
				if err != nil {
					return nil, err
				}
				if silent, err = asCondition(c, s); err != nil {
					return nil, err
				}
			}
			if !silent {
				c.ip.log.Info("rho: " + e.Error())
			}
			hp := c.Heap()
			defer hp.ProtectScope()()
			out := c.Protect(NewStr(hp, e.Error()+"\n")).(*Str)
			cls := c.Protect(NewStr(hp, "try-error"))
			out.setAttr(hp, c.ip.sym.class, cls)
			c.ip.visible = false
			return out, nil
		},
	})
}

func joinMessage(args []Object) string {
	var b strings.Builder
	for _, a := range args {
		for _, s := range asStrings(a) {
			b.WriteString(s)
		}
	}
	return b.String()
}

// closureContextFor finds the context of the closure whose body runs in env.
func (ip *Interpreter) closureContextFor(env *Environment) *Context {
	for k := innermostClosure(ip.ctx); k != nil; k = innermostClosure(k.next) {
		if k.workingEnv == env {
			return k
		}
	}
	return nil
}
