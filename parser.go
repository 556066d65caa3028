// parser.go
//
// The reader: a small S-expression syntax for building call expressions.
//
//	(f x 1 "s")            f(x, 1, "s")
//	(f :b 1 2)             f(b = 1, 2)
//	'x                     quote(x)
//	(function (a :b 2 ...) body)
//	                       function(a, b = 2, ...) body
//	TRUE FALSE NULL        logical constants and NULL
//	; comment              to end of line ('#' works too)
//
// Inside a call the symbol `_` is an empty argument: (f _ 2) is f(, 2).
//
// Everything the reader allocates is protected until Read returns; the
// returned program is unprotected and must be rooted by the caller before it
// allocates again.
package rho

import (
	"fmt"

	"github.com/westernmagic/rho/gc"
)

type parser struct {
	ip     *Interpreter
	hp     *gc.Heap
	tokens []Token
	pos    int
}

// Read parses src into a pairlist of top-level expressions.
func (ip *Interpreter) Read(src string) (*PairList, error) {
	toks, err := NewLexer(src).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{ip: ip, hp: ip.Heap, tokens: toks}
	defer ip.Heap.ProtectScope()()
	b := newListBuilder(ip.Heap)
	for p.peek().Type != EOF {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		b.add(nil, e)
	}
	return b.list(), nil
}

// ReadOne parses src, which must hold exactly one expression.
func (ip *Interpreter) ReadOne(src string) (Object, error) {
	prog, err := ip.Read(src)
	if err != nil {
		return nil, err
	}
	if prog.Len() != 1 {
		return nil, &ReadError{Line: 1, Col: 1, Msg: fmt.Sprintf("expected one expression, found %d", prog.Len())}
	}
	return prog.Car(), nil
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Type != EOF {
		p.pos++
	}
	return t
}

func (p *parser) errAt(t Token, format string, args ...any) error {
	return &ReadError{Line: t.Line, Col: t.Col + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) incomplete(t Token, msg string) error {
	return &ReadError{Line: t.Line, Col: t.Col + 1, Msg: msg, Incomplete: true}
}

func (p *parser) unexpected(t Token) error {
	switch t.Type {
	case EOF:
		return p.incomplete(t, "unexpected end of input")
	case RROUND:
		return p.errAt(t, "unexpected ')'")
	}
	return p.errAt(t, "unexpected %s '%s'", t.Type, t.Lexeme)
}

// expr parses one expression. The result is protected.
func (p *parser) expr() (Object, error) {
	t := p.next()
	var o Object
	switch t.Type {
	case NUMBER:
		o = NewReal(p.hp, t.Literal.(float64))
	case STRING:
		o = NewStr(p.hp, t.Literal.(string))
	case BOOLEAN:
		o = NewLogical(p.hp, t.Literal.(bool))
	case NULL:
		return nil, nil
	case SYMBOL:
		return p.ip.Symbol(t.Literal.(string)), nil
	case QUOTE:
		q, err := p.expr()
		if err != nil {
			return nil, err
		}
		args := NewPairList(p.hp, q, nil, nil)
		p.hp.Protect(args)
		o = NewExpression(p.hp, p.ip.sym.quote, args)
	case LROUND:
		return p.call(t)
	default:
		return nil, p.unexpected(t)
	}
	p.hp.Protect(o)
	return o, nil
}

// call parses the rest of a parenthesised form after its '('.
func (p *parser) call(open Token) (Object, error) {
	if p.peek().Type == RROUND {
		return nil, p.errAt(open, "empty call")
	}
	head, err := p.expr()
	if err != nil {
		return nil, err
	}
	if head == Object(p.ip.sym.function) {
		return p.function()
	}
	b := newListBuilder(p.hp)
	for {
		t := p.peek()
		switch t.Type {
		case RROUND:
			p.next()
			e := NewExpression(p.hp, head, b.list())
			p.hp.Protect(e)
			return e, nil
		case EOF:
			return nil, p.incomplete(open, "unbalanced '('")
		}
		var tag *Symbol
		if t.Type == TAG {
			p.next()
			tag = p.ip.Symbol(t.Literal.(string))
		}
		v, err := p.arg()
		if err != nil {
			return nil, err
		}
		b.add(tag, v)
	}
}

// arg parses an argument; `_` is the empty argument.
func (p *parser) arg() (Object, error) {
	if t := p.peek(); t.Type == SYMBOL && t.Literal.(string) == "_" {
		p.next()
		return p.ip.sym.missing, nil
	}
	return p.expr()
}

// function parses (function (formals) body) after the head.
func (p *parser) function() (Object, error) {
	t := p.next()
	var formals *PairList
	switch t.Type {
	case NULL:
	case LROUND:
		b := newListBuilder(p.hp)
		for {
			f := p.next()
			switch f.Type {
			case RROUND:
				formals = b.list()
			case SYMBOL:
				b.add(p.ip.Symbol(f.Literal.(string)), p.ip.sym.missing)
				continue
			case TAG:
				def, err := p.expr()
				if err != nil {
					return nil, err
				}
				b.add(p.ip.Symbol(f.Literal.(string)), def)
				continue
			default:
				return nil, p.errAt(f, "invalid formal argument list for \"function\"")
			}
			break
		}
	default:
		return nil, p.errAt(t, "invalid formal argument list for \"function\"")
	}
	body, err := p.expr()
	if err != nil {
		return nil, err
	}
	if c := p.next(); c.Type != RROUND {
		return nil, p.errAt(c, "function takes formals and one body expression")
	}
	b := newListBuilder(p.hp)
	b.add(nil, formals)
	b.add(nil, body)
	e := NewExpression(p.hp, p.ip.sym.function, b.list())
	p.hp.Protect(e)
	return e, nil
}
