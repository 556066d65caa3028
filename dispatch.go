package rho

import (
	"fmt"
	"strings"
)

// S3-style dispatch. UseMethod(generic, object) looks up generic.<class>
// for each class of object (then generic.default) and invokes the method
// with the generic's own promised arguments. The method sees .Generic and
// .Class, and treats the generic's caller as its calling environment. The
// method's value is returned from the generic.

func registerDispatchBuiltins(ip *Interpreter) {
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "UseMethod", Special: true, Arity: -1, PassBailouts: true,
		Indirect: func(c *Call, args *PairList) (Object, error) {
			return c.ip.useMethod(c, args)
		},
	})

	// class(x) -> character
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "class", Arity: 1,
		Direct: func(c *Call, args []Object) (Object, error) {
			return NewStr(c.Heap(), c.ip.classOf(args[0])...), nil
		},
	})

	// inherits(x, what) -> logical
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "inherits", Arity: 2,
		Direct: func(c *Call, args []Object) (Object, error) {
			want := asStrings(args[1])
			for _, cls := range c.ip.classOf(args[0]) {
				for _, w := range want {
					if cls == w {
						return NewLogical(c.Heap(), true), nil
					}
				}
			}
			return NewLogical(c.Heap(), false), nil
		},
	})
}

func (ip *Interpreter) useMethod(c *Call, args *PairList) (Object, error) {
	hp := ip.Heap
	defer hp.ProtectScope()()

	if args == nil {
		return nil, c.Errorf(InvalidArgument, "'UseMethod' called with no arguments")
	}
	gv, err := ip.eval(args.Car(), c.env)
	if err != nil {
		return nil, err
	}
	names := asStrings(gv)
	if len(names) != 1 || names[0] == "" {
		return nil, c.Errorf(InvalidArgument, "'generic' argument must be a character string")
	}
	generic := names[0]

	k := ip.closureContextFor(c.env)
	if k == nil {
		return nil, c.Errorf(InvalidArgument, "UseMethod called from outside a function")
	}

	var obj Object
	if t := args.Tail(); t != nil {
		if obj, err = ip.eval(t.Car(), c.env); err != nil {
			return nil, err
		}
	} else if obj, err = ip.dispatchObject(k); err != nil {
		return nil, err
	}
	ip.protect(obj)

	classes := ip.classOf(obj)
	candidates := append(append([]string(nil), classes...), "default")
	for i, cls := range candidates {
		fn, err := ip.findFunction(ip.Symbol(generic+"."+cls), c.env)
		if err != nil {
			return nil, err
		}
		if fn == nil {
			continue
		}
		ip.protect(fn)
		rest := []string(nil)
		if i < len(classes) {
			rest = classes[i:]
		}
		method := ip.protect(newFrame(hp)).(*Frame)
		method.define(ip.sym.generic, ip.protect(NewStr(hp, generic)))
		method.define(ip.sym.dotClass, ip.protect(NewStr(hp, rest...)))
		ip.log.Debug("rho: dispatch", "generic", generic, "class", cls)

		var v Object
		switch f := fn.(type) {
		case *Closure:
			v, err = ip.invokeClosure(k.call, f, k.callEnv, k.promiseArgs, true, method)
		case *BuiltIn:
			v, err = ip.applyBuiltIn(k.call, f, k.callEnv, k.promiseArgs, false)
		}
		if err != nil {
			return nil, err
		}
		return ip.returnFrom(c.env, v)
	}
	return nil, c.Errorf(InvalidArgument, "no applicable method for '%s' applied to an object of class \"%s\"",
		generic, describeClasses(classes))
}

// dispatchObject is the object a one-argument UseMethod dispatches on: the
// value of the generic's first argument.
func (ip *Interpreter) dispatchObject(k *Context) (Object, error) {
	p := k.promiseArgs
	for p != nil && p.Car() == Object(ip.sym.missing) {
		p = p.Tail()
	}
	if p == nil {
		return nil, nil
	}
	if pr, ok := p.Car().(*Promise); ok {
		return ip.force(pr)
	}
	return p.Car(), nil
}

// classOf is the class attribute of o or, without one, its implicit class.
func (ip *Interpreter) classOf(o Object) []string {
	if a := attrsOf(o); a != nil {
		if cls, ok := a.Attr(ip.sym.class).(*Str); ok && cls.Len() > 0 {
			return append([]string(nil), cls.vals...)
		}
	}
	switch o.(type) {
	case nil:
		return []string{"NULL"}
	case *Real:
		return []string{"double", "numeric"}
	case *Logical:
		return []string{"logical"}
	case *Str:
		return []string{"character"}
	case *List:
		return []string{"list"}
	case *Closure, *BuiltIn:
		return []string{"function"}
	case *Environment:
		return []string{"environment"}
	case *Symbol:
		return []string{"name"}
	case *Expression:
		return []string{"call"}
	}
	return []string{TypeOf(o).String()}
}

func describeClasses(classes []string) string {
	if len(classes) == 1 {
		return classes[0]
	}
	quoted := make([]string, len(classes))
	for i, c := range classes {
		quoted[i] = fmt.Sprintf("'%s'", c)
	}
	return "c(" + strings.Join(quoted, ", ") + ")"
}
