package rho

import (
	"github.com/westernmagic/rho/gc"
)

// Promise is a lazily evaluated argument: an expression and the environment
// to evaluate it in. Once forced it keeps the value and drops the
// environment.
type Promise struct {
	gc.Header
	expr            gc.Edge[Object]
	env             gc.Edge[*Environment]
	value           gc.Edge[Object]
	forced          bool
	underEvaluation bool
}

// NewPromise allocates an unforced promise. expr and env must be protected
// by the caller.
func NewPromise(hp *gc.Heap, expr Object, env *Environment) *Promise {
	return gc.NewNode(hp, &Promise{}, nodeSize[Promise](0), func(p *Promise) {
		p.expr.Set(expr)
		if env != nil {
			p.env.Set(env)
		}
	})
}

func (*Promise) Type() Type          { return PromiseType }
func (p *Promise) Expr() Object      { return p.expr.Get() }
func (p *Promise) Env() *Environment { return p.env.Get() }
func (p *Promise) Forced() bool      { return p.forced }

// Value returns the forced value (nil before forcing).
func (p *Promise) Value() Object { return p.value.Get() }

func (p *Promise) setValue(v Object) {
	p.value.Set(v)
	p.forced = true
	p.env.Clear()
}

func (p *Promise) VisitReferents(v gc.Visitor) {
	p.expr.Visit(v)
	p.env.Visit(v)
	p.value.Visit(v)
}

func (p *Promise) DetachReferents() {
	p.expr.Detach()
	p.env.Detach()
	p.value.Detach()
}

func (p *Promise) Label() string {
	if p.forced {
		return "promise (forced)"
	}
	return "promise"
}

// force evaluates p once. Forcing a promise from inside its own evaluation
// is an error.
func (ip *Interpreter) force(p *Promise) (Object, error) {
	if p.forced {
		return p.Value(), nil
	}
	if p.underEvaluation {
		return nil, ip.errorf(InvalidArgument, nil,
			"promise already under evaluation: recursive default argument reference or earlier problems?")
	}
	p.underEvaluation = true
	restore := ip.Heap.ProtectScope()
	ip.Heap.Protect(p)
	v, err := ip.eval(p.Expr(), p.Env())
	p.underEvaluation = false
	if err == nil {
		p.setValue(v)
	}
	restore()
	if err != nil {
		return nil, err
	}
	return v, nil
}
