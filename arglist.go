package rho

// Argument lists travel through a call in one of three states: raw (the
// call's own argument pairlist), evaluated (values, for strict primitives)
// or promised (promises over the calling environment, for closures). Every
// conversion expands ... from the calling environment.

// hasDots reports whether an argument list mentions ... .
func (ip *Interpreter) hasDots(args *PairList) bool {
	for p := args; p != nil; p = p.Tail() {
		if p.Car() == Object(ip.sym.dots) {
			return true
		}
	}
	return false
}

// dotsArgs returns the promises bound to ... in env (nil when ... is bound
// to nothing).
func (ip *Interpreter) dotsArgs(call *Expression, env *Environment) (*PairList, error) {
	b, _ := env.Lookup(ip.sym.dots)
	if b == nil {
		return nil, ip.errorf(InvalidArgument, call, "'...' used in an incorrect context")
	}
	switch d := b.Value().(type) {
	case *Dots:
		return d.Args(), nil
	case nil:
		return nil, nil
	}
	if b.Value() == Object(ip.sym.missing) {
		return nil, nil
	}
	return nil, ip.errorf(InvalidArgument, call, "'...' used in an incorrect context")
}

// evaluateArgs evaluates a raw argument list in env. The result is
// protected until the caller's protect scope ends.
func (ip *Interpreter) evaluateArgs(call *Expression, args *PairList, env *Environment) (*PairList, error) {
	b := newListBuilder(ip.Heap)
	for p := args; p != nil; p = p.Tail() {
		car := p.Car()
		switch {
		case car == Object(ip.sym.dots):
			dots, err := ip.dotsArgs(call, env)
			if err != nil {
				return nil, err
			}
			for d := dots; d != nil; d = d.Tail() {
				v, err := ip.eval(d.Car(), env)
				if err != nil {
					return nil, err
				}
				b.add(d.Tag(), v)
			}
		case car == Object(ip.sym.missing):
			b.add(p.Tag(), car)
		default:
			v, err := ip.eval(car, env)
			if err != nil {
				return nil, err
			}
			b.add(p.Tag(), v)
		}
	}
	return b.list(), nil
}

// evaluateToArray evaluates a raw argument list (or copies an evaluated one)
// into an array for a direct primitive. Every value is protected until the
// caller's protect scope ends.
func (ip *Interpreter) evaluateToArray(args *PairList, env *Environment, evaluated bool) ([]Object, []*Symbol, error) {
	n := args.Len()
	vals := make([]Object, 0, n)
	var tags []*Symbol
	i := 0
	for p := args; p != nil; p = p.Tail() {
		v := p.Car()
		if !evaluated {
			var err error
			if v, err = ip.eval(v, env); err != nil {
				return nil, nil, err
			}
			ip.Heap.Protect(v)
		}
		vals = append(vals, v)
		if t := p.Tag(); t != nil {
			if tags == nil {
				tags = make([]*Symbol, n)
			}
			tags[i] = t
		}
		i++
	}
	return vals, tags, nil
}

// wrapInPromises turns a raw argument list into promises over env. Symbols
// and calls become promises; constants and the missing-argument marker pass
// through; ... is replaced by the caller's own dots promises.
func (ip *Interpreter) wrapInPromises(call *Expression, args *PairList, env *Environment) (*PairList, error) {
	b := newListBuilder(ip.Heap)
	for p := args; p != nil; p = p.Tail() {
		car := p.Car()
		switch x := car.(type) {
		case *Symbol:
			if x == ip.sym.dots {
				dots, err := ip.dotsArgs(call, env)
				if err != nil {
					return nil, err
				}
				for d := dots; d != nil; d = d.Tail() {
					b.add(d.Tag(), d.Car())
				}
				continue
			}
			if x == ip.sym.missing {
				b.add(p.Tag(), x)
				continue
			}
			b.add(p.Tag(), ip.promise(car, env))
		case *Expression, *Promise:
			b.add(p.Tag(), ip.promise(car, env))
		default:
			b.add(p.Tag(), car)
		}
	}
	return b.list(), nil
}

// promise allocates a promise; the result is protected.
func (ip *Interpreter) promise(expr Object, env *Environment) *Promise {
	p := NewPromise(ip.Heap, expr, env)
	ip.Heap.Protect(p)
	return p
}
