package rho

import (
	"math"
	"strconv"
	"strings"

	"github.com/westernmagic/rho/gc"
)

// ---- vectors ----------------------------------------------------------

func registerVectorBuiltins(ip *Interpreter) {
	// c(...) combines atomic vectors; any list argument makes the result a
	// list. Tags become names.
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "c", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			return combine(c, args)
		},
	})

	// list(...)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "list", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			hp := c.Heap()
			defer hp.ProtectScope()()
			l := c.Protect(NewList(hp, args...)).(*List)
			if names := argNames(c, len(args)); names != nil {
				l.setAttr(hp, c.ip.sym.names, c.Protect(NewStr(hp, names...)))
			}
			return l, nil
		},
	})

	// length(x)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "length", Arity: 1,
		Direct: func(c *Call, args []Object) (Object, error) {
			n := vectorLen(args[0])
			if n < 0 {
				n = 1
			}
			return NewReal(c.Heap(), float64(n)), nil
		},
	})

	// names(x)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "names", Arity: 1,
		Direct: func(c *Call, args []Object) (Object, error) {
			if a := attrsOf(args[0]); a != nil {
				return a.Attr(c.ip.sym.names), nil
			}
			if e, ok := args[0].(*Environment); ok {
				return NewStr(c.Heap(), e.LocalNames()...), nil
			}
			return nil, nil
		},
	})

	// attr(x, which)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "attr", Arity: 2,
		Direct: func(c *Call, args []Object) (Object, error) {
			which := asStrings(args[1])
			if len(which) != 1 {
				return nil, c.Errorf(InvalidArgument, "exactly one attribute 'which' must be given")
			}
			if a := attrsOf(args[0]); a != nil {
				return a.Attr(c.ip.Symbol(which[0])), nil
			}
			return nil, nil
		},
	})

	// structure(x, name = value, ...) -> a copy of x with the attributes set
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "structure", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			if len(args) == 0 {
				return nil, c.Errorf(InvalidArgument, "argument \".Data\" is missing, with no default")
			}
			hp := c.Heap()
			defer hp.ProtectScope()()
			out := c.Protect(shallowCopy(hp, args[0]))
			a := attrsOf(out)
			if a == nil {
				if len(args) > 1 {
					return nil, c.Errorf(InvalidArgument, "attempt to set an attribute on a %s", TypeOf(out))
				}
				return out, nil
			}
			for i := 1; i < len(args); i++ {
				tag := c.Tag(i)
				if tag == "" {
					return nil, c.Errorf(InvalidArgument, "attributes must be named")
				}
				if tag == ".Names" {
					tag = "names"
				}
				a.setAttr(hp, c.ip.Symbol(tag), args[i])
			}
			return out, nil
		},
	})

	// paste(..., sep = " ", collapse = NULL)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "paste", Arity: -1,
		Direct: func(c *Call, args []Object) (Object, error) {
			sep, collapse := " ", ""
			hasCollapse := false
			var parts [][]string
			n := 0
			for i, a := range args {
				switch c.Tag(i) {
				case "sep":
					sep = strings.Join(asStrings(a), "")
					continue
				case "collapse":
					if a != nil {
						collapse, hasCollapse = strings.Join(asStrings(a), ""), true
					}
					continue
				}
				s := asStrings(a)
				if len(s) == 0 {
					continue
				}
				parts = append(parts, s)
				if len(s) > n {
					n = len(s)
				}
			}
			out := make([]string, n)
			for i := range out {
				row := make([]string, len(parts))
				for j, p := range parts {
					row[j] = p[i%len(p)]
				}
				out[i] = strings.Join(row, sep)
			}
			if hasCollapse {
				out = []string{strings.Join(out, collapse)}
			}
			return NewStr(c.Heap(), out...), nil
		},
	})
}

// argNames returns the tags of a direct call's arguments, or nil when none
// is tagged.
func argNames(c *Call, n int) []string {
	if c.Tags == nil {
		return nil
	}
	names := make([]string, n)
	for i := range names {
		names[i] = c.Tag(i)
	}
	return names
}

func combine(c *Call, args []Object) (Object, error) {
	hp := c.Heap()
	kind := NilType
	for _, a := range args {
		switch a.(type) {
		case nil:
		case *Logical:
			if kind < LogicalType {
				kind = LogicalType
			}
		case *Real:
			if kind < RealType {
				kind = RealType
			}
		case *Str:
			if kind < StringType {
				kind = StringType
			}
		default:
			kind = ListType
		}
	}

	var names []string
	named := false
	add := func(tag string, a Object, n int) {
		if tag != "" {
			named = true
		}
		existing := names
		if at := attrsOf(a); at != nil {
			if nm, ok := at.Attr(c.ip.sym.names).(*Str); ok {
				named = true
				for i := 0; i < n; i++ {
					switch {
					case tag != "" && n > 1:
						existing = append(existing, tag+strconv.Itoa(i+1))
					case tag != "":
						existing = append(existing, tag)
					case i < len(nm.vals):
						existing = append(existing, nm.vals[i])
					default:
						existing = append(existing, "")
					}
				}
				names = existing
				return
			}
		}
		for i := 0; i < n; i++ {
			switch {
			case tag != "" && n > 1:
				existing = append(existing, tag+strconv.Itoa(i+1))
			default:
				existing = append(existing, tag)
			}
		}
		names = existing
	}

	defer hp.ProtectScope()()
	var out Object
	switch kind {
	case NilType:
		return nil, nil
	case LogicalType:
		var vals []bool
		for i, a := range args {
			if x, ok := a.(*Logical); ok {
				vals = append(vals, x.vals...)
				add(c.Tag(i), a, x.Len())
			}
		}
		out = c.Protect(NewLogical(hp, vals...))
	case RealType:
		var vals []float64
		for i, a := range args {
			v := asReals(a)
			vals = append(vals, v...)
			if a != nil {
				add(c.Tag(i), a, len(v))
			}
		}
		out = c.Protect(NewReal(hp, vals...))
	case StringType:
		var vals []string
		for i, a := range args {
			v := asStrings(a)
			vals = append(vals, v...)
			if a != nil {
				add(c.Tag(i), a, len(v))
			}
		}
		out = c.Protect(NewStr(hp, vals...))
	default:
		var elems []Object
		for i, a := range args {
			if l, ok := a.(*List); ok {
				for j := 0; j < l.Len(); j++ {
					elems = append(elems, l.At(j))
				}
				add(c.Tag(i), a, l.Len())
				continue
			}
			if a == nil {
				continue
			}
			elems = append(elems, a)
			add(c.Tag(i), a, 1)
		}
		out = c.Protect(NewList(hp, elems...))
	}
	if named {
		attrsOf(out).setAttr(hp, c.ip.sym.names, c.Protect(NewStr(hp, names...)))
	}
	return out, nil
}

// asReals coerces an atomic vector to doubles (NaN for unparsable strings).
func asReals(o Object) []float64 {
	switch x := o.(type) {
	case *Real:
		return x.vals
	case *Logical:
		out := make([]float64, len(x.vals))
		for i, b := range x.vals {
			if b {
				out[i] = 1
			}
		}
		return out
	case *Str:
		out := make([]float64, len(x.vals))
		for i, s := range x.vals {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				f = math.NaN()
			}
			out[i] = f
		}
		return out
	}
	return nil
}

// asStrings coerces a value to strings the way paste and stop see it.
func asStrings(o Object) []string {
	switch x := o.(type) {
	case nil:
		return nil
	case *Str:
		return x.vals
	case *Real:
		out := make([]string, len(x.vals))
		for i, f := range x.vals {
			out[i] = formatReal(f)
		}
		return out
	case *Logical:
		out := make([]string, len(x.vals))
		for i, b := range x.vals {
			out[i] = formatLogical(b)
		}
		return out
	case *Symbol:
		return []string{x.name}
	case *List:
		out := make([]string, x.Len())
		for i := range out {
			out[i] = Deparse(x.At(i))
		}
		return out
	}
	return []string{Deparse(o)}
}

// ---- arithmetic --------------------------------------------------------

type arithOp func(a, b float64) float64
type compareOp func(a, b float64) bool

func registerArithBuiltins(ip *Interpreter) {
	arith := map[string]arithOp{
		"+": func(a, b float64) float64 { return a + b },
		"-": func(a, b float64) float64 { return a - b },
		"*": func(a, b float64) float64 { return a * b },
		"/": func(a, b float64) float64 { return a / b },
		"^": math.Pow,
		"%%": func(a, b float64) float64 {
			m := math.Mod(a, b)
			if m != 0 && (m < 0) != (b < 0) {
				m += b
			}
			return m
		},
	}
	for name, op := range arith {
		name, op := name, op
		ip.RegisterBuiltin(BuiltInSpec{
			Name: name, Arity: -1,
			Direct: func(c *Call, args []Object) (Object, error) {
				return arithmetic(c, name, op, args)
			},
		})
	}

	compare := map[string]compareOp{
		"==": func(a, b float64) bool { return a == b },
		"!=": func(a, b float64) bool { return a != b },
		"<":  func(a, b float64) bool { return a < b },
		">":  func(a, b float64) bool { return a > b },
		"<=": func(a, b float64) bool { return a <= b },
		">=": func(a, b float64) bool { return a >= b },
	}
	for name, op := range compare {
		name, op := name, op
		ip.RegisterBuiltin(BuiltInSpec{
			Name: name, Arity: 2,
			Direct: func(c *Call, args []Object) (Object, error) {
				return comparison(c, name, op, args)
			},
		})
	}

	// !x
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "!", Arity: 1,
		Direct: func(c *Call, args []Object) (Object, error) {
			x := asReals(args[0])
			if x == nil && args[0] != nil {
				return nil, c.Errorf(InvalidArgument, "invalid argument type")
			}
			out := make([]bool, len(x))
			for i, f := range x {
				out[i] = f == 0
			}
			return NewLogical(c.Heap(), out...), nil
		},
	})
}

func numericOperand(c *Call, o Object) ([]float64, error) {
	switch o.(type) {
	case nil, *Real, *Logical:
		return asReals(o), nil
	}
	return nil, c.Errorf(InvalidArgument, "non-numeric argument to binary operator")
}

func arithmetic(c *Call, name string, op arithOp, args []Object) (Object, error) {
	switch len(args) {
	case 1:
		x, err := numericOperand(c, args[0])
		if err != nil {
			return nil, err
		}
		switch name {
		case "+":
		case "-":
			neg := make([]float64, len(x))
			for i, f := range x {
				neg[i] = -f
			}
			x = neg
		default:
			return nil, c.Errorf(InvalidArgument, "invalid unary operator")
		}
		return NewReal(c.Heap(), x...), nil
	case 2:
	default:
		return nil, c.Errorf(InvalidArgument, "operator needs one or two arguments")
	}
	a, err := numericOperand(c, args[0])
	if err != nil {
		return nil, err
	}
	b, err := numericOperand(c, args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return NewReal(c.Heap()), nil
	}
	n := max(len(a), len(b))
	if n%len(a) != 0 || n%len(b) != 0 {
		c.ip.warn(c.expr, "longer object length is not a multiple of shorter object length")
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = op(a[i%len(a)], b[i%len(b)])
	}
	return withAttributesOf(c.Heap(), NewReal(c.Heap(), out...), args[0], len(a) == n), nil
}

// withAttributesOf copies the attributes of src onto the fresh result r
// when src has the result's length.
func withAttributesOf(hp *gc.Heap, r *Real, src Object, sameLen bool) *Real {
	a := attrsOf(src)
	if a == nil || !sameLen || a.Attributes() == nil {
		return r
	}
	restore := hp.ProtectScope()
	hp.Protect(r)
	r.copyAttrs(hp, a)
	restore()
	return r
}

func comparison(c *Call, name string, op compareOp, args []Object) (Object, error) {
	_, sa := args[0].(*Str)
	_, sb := args[1].(*Str)
	if sa || sb {
		a, b := asStrings(args[0]), asStrings(args[1])
		if len(a) == 0 || len(b) == 0 {
			return NewLogical(c.Heap()), nil
		}
		n := max(len(a), len(b))
		out := make([]bool, n)
		for i := range out {
			out[i] = compareStrings(name, a[i%len(a)], b[i%len(b)])
		}
		return NewLogical(c.Heap(), out...), nil
	}
	a, err := numericOperand(c, args[0])
	if err != nil {
		return nil, c.Errorf(InvalidArgument, "comparison (%s) is possible only for atomic types", name)
	}
	b, err := numericOperand(c, args[1])
	if err != nil {
		return nil, c.Errorf(InvalidArgument, "comparison (%s) is possible only for atomic types", name)
	}
	if len(a) == 0 || len(b) == 0 {
		return NewLogical(c.Heap()), nil
	}
	n := max(len(a), len(b))
	out := make([]bool, n)
	for i := range out {
		out[i] = op(a[i%len(a)], b[i%len(b)])
	}
	return NewLogical(c.Heap(), out...), nil
}

func compareStrings(name, a, b string) bool {
	switch name {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	}
	return a >= b
}
