package rho

import (
	"math"
	"strconv"
	"strings"
)

/* ---------- globals & tiny helpers ---------- */

var EnableColor = false // REPL-only; tests can leave this false
var MaxInlineWidth = 80 // width at which FormatValue wraps vector output

const (
	colorReset = "\033[0m"
	colorBlue  = "\033[34m"
)

func colorize(s, c string) string {
	if !EnableColor {
		return s
	}
	return c + s + colorReset
}

// isSyntacticName reports whether s can be written without backquotes.
func isSyntacticName(s string) bool {
	if s == "" || s == "..." {
		return s == "..."
	}
	if _, reserved := keywords[s]; reserved {
		return false
	}
	c := s[0]
	if !(c == '.' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80) {
		return false
	}
	if c == '.' && len(s) > 1 && isDigit(s[1]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c == '.' || c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80) {
			return false
		}
	}
	return true
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func formatReal(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}

func formatLogical(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func deparseName(s string) string {
	if isSyntacticName(s) {
		return s
	}
	return "`" + s + "`"
}

/* ---------- deparse ---------- */

var binaryOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "^": true, "%%": true,
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"<-": true,
}

// Deparse renders o as source text in the conventional infix syntax
// (f(x, b = 1), a + b, function(x) body).
func Deparse(o Object) string {
	var b strings.Builder
	deparseTo(&b, o)
	return b.String()
}

func deparseTo(b *strings.Builder, o Object) {
	if isNull(o) {
		b.WriteString("NULL")
		return
	}
	if a := attrsOf(o); a != nil && hasNonNameAttrs(a) {
		deparseStructure(b, o, a)
		return
	}
	deparsePlain(b, o)
}

func hasNonNameAttrs(a *attributed) bool {
	for p := a.Attributes(); p != nil; p = p.Tail() {
		if t := p.Tag(); t == nil || t.name != "names" {
			return true
		}
	}
	return false
}

func deparseStructure(b *strings.Builder, o Object, a *attributed) {
	b.WriteString("structure(")
	deparsePlain(b, o)
	for p := a.Attributes(); p != nil; p = p.Tail() {
		if p.Tag().name == "names" {
			continue
		}
		b.WriteString(", ")
		b.WriteString(deparseName(p.Tag().name))
		b.WriteString(" = ")
		deparseTo(b, p.Car())
	}
	b.WriteByte(')')
}

func namesOf(o Object) []string {
	if a := attrsOf(o); a != nil {
		for p := a.Attributes(); p != nil; p = p.Tail() {
			if t := p.Tag(); t != nil && t.name == "names" {
				if s, ok := p.Car().(*Str); ok {
					return s.vals
				}
			}
		}
	}
	return nil
}

func deparseElems(b *strings.Builder, n int, names []string, elem func(i int) string) {
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if i < len(names) && names[i] != "" {
			b.WriteString(deparseName(names[i]))
			b.WriteString(" = ")
		}
		b.WriteString(elem(i))
	}
}

func deparseVector(b *strings.Builder, empty string, n int, names []string, elem func(i int) string) {
	switch {
	case n == 0:
		b.WriteString(empty)
	case n == 1 && names == nil:
		b.WriteString(elem(0))
	default:
		b.WriteString("c(")
		deparseElems(b, n, names, elem)
		b.WriteByte(')')
	}
}

func deparsePlain(b *strings.Builder, o Object) {
	switch x := o.(type) {
	case *Symbol:
		if x.name != "" {
			b.WriteString(deparseName(x.name))
		}
	case *Real:
		deparseVector(b, "numeric(0)", x.Len(), namesOf(x), func(i int) string { return formatReal(x.vals[i]) })
	case *Logical:
		deparseVector(b, "logical(0)", x.Len(), namesOf(x), func(i int) string { return formatLogical(x.vals[i]) })
	case *Str:
		deparseVector(b, "character(0)", x.Len(), namesOf(x), func(i int) string { return quoteString(x.vals[i]) })
	case *List:
		b.WriteString("list(")
		deparseElems(b, x.Len(), namesOf(x), func(i int) string { return Deparse(x.At(i)) })
		b.WriteByte(')')
	case *PairList:
		b.WriteString("pairlist(")
		deparseArgs(b, x)
		b.WriteByte(')')
	case *Expression:
		deparseCall(b, x)
	case *Closure:
		b.WriteString("function(")
		deparseFormals(b, x.Formals())
		b.WriteString(") ")
		deparseTo(b, x.Body())
	case *BuiltIn:
		b.WriteString(".Primitive(")
		b.WriteString(quoteString(x.spec.Name))
		b.WriteByte(')')
	case *Environment:
		if x.name != "" {
			b.WriteString("<environment: " + x.name + ">")
		} else {
			b.WriteString("<environment>")
		}
	case *Promise:
		b.WriteString("<promise>")
	case *Dots:
		b.WriteString("<...>")
	case *ReturnBailout:
		b.WriteString("<bailout>")
	case *Frame:
		b.WriteString("<frame>")
	default:
		b.WriteString("<" + TypeOf(o).String() + ">")
	}
}

func deparseArgs(b *strings.Builder, args *PairList) {
	first := true
	for p := args; p != nil; p = p.Tail() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		if t := p.Tag(); t != nil && t.name != "" {
			b.WriteString(deparseName(t.name))
			b.WriteString(" = ")
		}
		deparseTo(b, p.Car())
	}
}

func deparseFormals(b *strings.Builder, formals *PairList) {
	first := true
	for p := formals; p != nil; p = p.Tail() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(deparseName(p.Tag().name))
		if s, ok := p.Car().(*Symbol); ok && s.name == "" {
			continue
		}
		b.WriteString(" = ")
		deparseTo(b, p.Car())
	}
}

func untaggedArgs(args *PairList) []Object {
	var out []Object
	for p := args; p != nil; p = p.Tail() {
		if t := p.Tag(); t != nil && t.name != "" {
			return nil
		}
		out = append(out, p.Car())
	}
	return out
}

func deparseCall(b *strings.Builder, e *Expression) {
	args := e.Args()
	if s, ok := e.Head().(*Symbol); ok {
		ops := untaggedArgs(args)
		switch {
		case binaryOps[s.name] && len(ops) == 2:
			deparseTo(b, ops[0])
			b.WriteString(" " + s.name + " ")
			deparseTo(b, ops[1])
			return
		case (s.name == "-" || s.name == "+" || s.name == "!") && len(ops) == 1:
			b.WriteString(s.name)
			deparseTo(b, ops[0])
			return
		case s.name == "{":
			if len(ops) == 0 {
				b.WriteString("{\n}")
				return
			}
			b.WriteString("{ ")
			for i, o := range ops {
				if i > 0 {
					b.WriteString("; ")
				}
				deparseTo(b, o)
			}
			b.WriteString(" }")
			return
		case s.name == "if" && (len(ops) == 2 || len(ops) == 3):
			b.WriteString("if (")
			deparseTo(b, ops[0])
			b.WriteString(") ")
			deparseTo(b, ops[1])
			if len(ops) == 3 {
				b.WriteString(" else ")
				deparseTo(b, ops[2])
			}
			return
		case s.name == "function" && len(ops) == 2:
			f, _ := ops[0].(*PairList)
			b.WriteString("function(")
			deparseFormals(b, f)
			b.WriteString(") ")
			deparseTo(b, ops[1])
			return
		}
		b.WriteString(deparseName(s.name))
	} else {
		switch h := e.Head().(type) {
		case *Expression:
			b.WriteByte('(')
			deparseCall(b, h)
			b.WriteByte(')')
		default:
			deparseTo(b, h)
		}
	}
	b.WriteByte('(')
	deparseArgs(b, args)
	b.WriteByte(')')
}

/* ---------- printing ---------- */

// FormatValue renders a value the way the shell prints it:
//
//	[1] 1 2 3
//	[1] "a" "b"
//	NULL
func FormatValue(o Object) string {
	var b strings.Builder
	formatTo(&b, o, "")
	return strings.TrimRight(b.String(), "\n")
}

func formatTo(b *strings.Builder, o Object, prefix string) {
	switch x := o.(type) {
	case *Real:
		formatAtomic(b, x.Len(), namesOf(x), func(i int) string { return formatReal(x.vals[i]) }, "numeric(0)")
	case *Logical:
		formatAtomic(b, x.Len(), namesOf(x), func(i int) string { return formatLogical(x.vals[i]) }, "logical(0)")
	case *Str:
		formatAtomic(b, x.Len(), namesOf(x), func(i int) string { return quoteString(x.vals[i]) }, "character(0)")
	case *List:
		if x.Len() == 0 {
			b.WriteString("list()\n")
			break
		}
		names := namesOf(x)
		for i := 0; i < x.Len(); i++ {
			tag := prefix + "[[" + strconv.Itoa(i+1) + "]]"
			if i < len(names) && names[i] != "" {
				tag = prefix + "$" + deparseName(names[i])
			}
			b.WriteString(tag + "\n")
			formatTo(b, x.At(i), tag)
			b.WriteString("\n")
		}
	default:
		if isNull(o) {
			b.WriteString("NULL\n")
			return
		}
		b.WriteString(Deparse(o) + "\n")
	}
	if a := attrsOf(o); a != nil {
		for p := a.Attributes(); p != nil; p = p.Tail() {
			if n := p.Tag().name; n != "names" {
				b.WriteString("attr(,\"" + n + "\")\n")
				formatTo(b, p.Car(), "")
			}
		}
	}
}

func formatAtomic(b *strings.Builder, n int, names []string, elem func(int) string, empty string) {
	if n == 0 {
		b.WriteString(empty + "\n")
		return
	}
	cells := make([]string, n)
	width := 0
	for i := range cells {
		cells[i] = elem(i)
		width = max(width, len(cells[i]))
	}
	if names != nil {
		for i := range cells {
			if i < len(names) {
				width = max(width, len(names[i]))
			}
		}
		perLine := max(1, MaxInlineWidth/(width+1))
		for start := 0; start < n; start += perLine {
			end := min(n, start+perLine)
			var top, bottom []string
			for i := start; i < end; i++ {
				name := ""
				if i < len(names) {
					name = names[i]
				}
				top = append(top, pad(name, width))
				bottom = append(bottom, pad(cells[i], width))
			}
			b.WriteString(strings.Join(top, " ") + "\n")
			b.WriteString(strings.Join(bottom, " ") + "\n")
		}
		return
	}
	label := len("[" + strconv.Itoa(n) + "]")
	perLine := max(1, (MaxInlineWidth-label)/(width+1))
	for start := 0; start < n; start += perLine {
		end := min(n, start+perLine)
		idx := "[" + strconv.Itoa(start+1) + "]"
		b.WriteString(pad(idx, label))
		for i := start; i < end; i++ {
			b.WriteString(" " + pad(cells[i], width))
		}
		b.WriteString("\n")
	}
}

// pad right-aligns s in width columns.
func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// HighlightPrompt colours a prompt for the shell.
func HighlightPrompt(s string) string { return colorize(s, colorBlue) }
