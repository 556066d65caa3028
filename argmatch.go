package rho

import (
	"strings"
)

// matchArgs binds the supplied (promised) arguments of a closure call to the
// closure's formals in execEnv's frame. Matching runs in three passes over
// the formals before ... (exact tag, then unambiguous partial tag, then
// position); formals after ... match by exact tag only. Leftover arguments
// go to ... or are an error. Unmatched formals get a promise of their default
// over execEnv; an unmatched formal without a default is an error.
func (ip *Interpreter) matchArgs(call *Expression, f *Closure, execEnv *Environment, supplied *PairList) error {
	type formal struct {
		sym  *Symbol
		def  Object
		dots bool
	}
	var formals []formal
	dotsAt := -1
	for p := f.Formals(); p != nil; p = p.Tail() {
		fm := formal{sym: p.Tag(), def: p.Car()}
		if fm.sym == ip.sym.dots {
			fm.dots = true
			dotsAt = len(formals)
		}
		formals = append(formals, fm)
	}

	type actual struct {
		tag   *Symbol
		value Object
		used  bool
	}
	var actuals []actual
	for p := supplied; p != nil; p = p.Tail() {
		actuals = append(actuals, actual{tag: p.Tag(), value: p.Car()})
	}

	bound := make([]int, len(formals)) // index+1 into actuals, 0 when unmatched
	untagged := func(a *actual) bool { return a.tag == nil || a.tag.name == "" }

	// Exact matching.
	for i, fm := range formals {
		if fm.dots {
			continue
		}
		for j := range actuals {
			a := &actuals[j]
			if untagged(a) || a.tag != fm.sym {
				continue
			}
			if bound[i] != 0 {
				return ip.errorf(ArgumentMatch, call,
					"formal argument \"%s\" matched by multiple actual arguments", fm.sym.name)
			}
			bound[i] = j + 1
			a.used = true
		}
	}

	// Partial matching, only for formals before ... .
	partialLimit := len(formals)
	if dotsAt >= 0 {
		partialLimit = dotsAt
	}
	for j := range actuals {
		a := &actuals[j]
		if a.used || untagged(a) {
			continue
		}
		hit := -1
		for i := 0; i < partialLimit; i++ {
			fm := formals[i]
			if bound[i] != 0 || !strings.HasPrefix(fm.sym.name, a.tag.name) {
				continue
			}
			if hit >= 0 {
				return ip.errorf(ArgumentMatch, call,
					"argument %d matches multiple formal arguments", j+1)
			}
			hit = i
		}
		if hit >= 0 {
			for k := j + 1; k < len(actuals); k++ {
				b := actuals[k]
				if !b.used && !untagged(&b) && b.tag == a.tag {
					return ip.errorf(ArgumentMatch, call,
						"formal argument \"%s\" matched by multiple actual arguments", formals[hit].sym.name)
				}
			}
			bound[hit] = j + 1
			a.used = true
		}
	}

	// Positional matching up to ... .
	next := 0
	for i := 0; i < partialLimit; i++ {
		if bound[i] != 0 {
			continue
		}
		for next < len(actuals) && (actuals[next].used || !untagged(&actuals[next])) {
			next++
		}
		if next == len(actuals) {
			break
		}
		bound[i] = next + 1
		actuals[next].used = true
	}

	// Leftovers.
	var rest []int
	for j := range actuals {
		if !actuals[j].used {
			rest = append(rest, j)
		}
	}
	if len(rest) > 0 && dotsAt < 0 {
		parts := make([]string, len(rest))
		for k, j := range rest {
			parts[k] = deparseArg(actuals[j].tag, actuals[j].value)
		}
		if len(rest) == 1 {
			return ip.errorf(ArgumentMatch, call, "unused argument (%s)", parts[0])
		}
		return ip.errorf(ArgumentMatch, call, "unused arguments (%s)", strings.Join(parts, ", "))
	}

	// Binding. Allocation below may collect: execEnv is rooted by the caller
	// and the supplied values are held by the protected argument list.
	frame := execEnv.Frame()
	for i, fm := range formals {
		if fm.dots {
			b := newListBuilder(ip.Heap)
			for _, j := range rest {
				b.add(actuals[j].tag, actuals[j].value)
			}
			var v Object = ip.sym.missing
			if lst := b.list(); lst != nil {
				v = ip.protect(newDots(ip.Heap, lst))
			}
			frame.define(fm.sym, v)
			continue
		}
		if bound[i] != 0 {
			v := actuals[bound[i]-1].value
			if v != Object(ip.sym.missing) {
				frame.define(fm.sym, v)
				continue
			}
		}
		switch {
		case fm.def == Object(ip.sym.missing):
			return ip.errorf(ArgumentMatch, call, "argument \"%s\" is missing, with no default", fm.sym.name)
		case isNull(fm.def):
			frame.define(fm.sym, nil)
		default:
			frame.define(fm.sym, ip.promise(fm.def, execEnv))
		}
	}
	return nil
}

func deparseArg(tag *Symbol, v Object) string {
	s := deparseValue(v)
	if tag != nil && tag.name != "" {
		return tag.name + " = " + s
	}
	return s
}

// deparseValue shows a supplied argument: the expression of an unforced
// promise, the deparsed value otherwise.
func deparseValue(v Object) string {
	if p, ok := v.(*Promise); ok && !p.Forced() {
		return Deparse(p.Expr())
	}
	if p, ok := v.(*Promise); ok {
		return Deparse(p.Value())
	}
	return Deparse(v)
}
