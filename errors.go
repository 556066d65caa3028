// errors.go: evaluation errors and caret-snippet rendering of read errors
//
// What this file does
// -------------------
// Two families of recoverable errors reach callers of the interpreter:
//
//   - *Error: a condition raised while evaluating a call. It carries an
//     ErrorKind (so callers can write errors.Is(err, rho.NoSuchFunction)),
//     the message, the deparsed call it is attributed to, and a traceback
//     of the function frames that were active when it was raised. Error()
//     renders the familiar one-liner:
//
//     Error in f(x) : could not find function "g"
//
//   - *ReadError: a lexical or syntax error from the reader. WrapErrorWithSource
//     turns it into a snippet with a caret under the offending column:
//
//     READ ERROR at 1:9: unexpected ')'
//
//     1 | (f (g 1)))
//     |         ^
//
// Fatal collector failures are *gc.FatalError panics and never pass through
// here.
package rho

import (
	"errors"
	"fmt"
	"strings"
)

/* ===========================
   EVALUATION ERRORS
   =========================== */

// ErrorKind classifies recoverable evaluation errors. It implements error so
// it can be used as an errors.Is target.
type ErrorKind int

const (
	NoSuchFunction ErrorKind = iota + 1
	NotAFunction
	ArgumentMatch
	StackOverflow
	UnboundVariable
	InvalidArgument
	// Condition is a user-level error raised by stop().
	Condition
)

var errorKindNames = map[ErrorKind]string{
	NoSuchFunction:  "NoSuchFunction",
	NotAFunction:    "NotAFunction",
	ArgumentMatch:   "ArgumentMatchError",
	StackOverflow:   "StackOverflow",
	UnboundVariable: "UnboundVariable",
	InvalidArgument: "InvalidArgument",
	Condition:       "Condition",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Error() string { return k.String() }

// Error is a recoverable evaluation error.
type Error struct {
	Kind      ErrorKind
	Msg       string
	Call      string   // deparsed call the error is attributed to ("" at top level)
	Traceback []string // deparsed calls, innermost first
}

func (e *Error) Error() string {
	if e.Call == "" {
		return "Error: " + e.Msg
	}
	return fmt.Sprintf("Error in %s : %s", e.Call, e.Msg)
}

// Is matches an ErrorKind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// Format renders the error followed by its traceback.
func (e *Error) Format() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if len(e.Traceback) > 0 {
		b.WriteString("\nTraceback:\n")
		for i, c := range e.Traceback {
			fmt.Fprintf(&b, "%d: %s\n", len(e.Traceback)-i, c)
		}
	}
	return b.String()
}

// errorf builds an *Error attributed to call (nil: no call) and captures the
// traceback from the current context stack.
func (ip *Interpreter) errorf(kind ErrorKind, call *Expression, format string, args ...any) *Error {
	e := &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Traceback: ip.traceback()}
	if call != nil {
		e.Call = Deparse(call)
	}
	ip.log.Debug("rho: error", "kind", kind.String(), "msg", e.Msg, "call", e.Call)
	return e
}

// AsError extracts the evaluation error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

/* ===========================
   READ ERRORS
   =========================== */

// ReadError is a lexical or syntax error from the reader. Line and Col are
// 1-based.
type ReadError struct {
	Line int
	Col  int
	Msg  string
	// Incomplete is set when the input ended inside a form, so more text
	// could complete it.
	Incomplete bool
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("READ ERROR at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// IsIncomplete reports whether err is a read error caused by input that
// ended too early.
func IsIncomplete(err error) bool {
	var re *ReadError
	return errors.As(err, &re) && re.Incomplete
}

// WrapErrorWithSource returns an error whose message is a caret-annotated
// snippet of src when err is a *ReadError, and err unchanged otherwise.
func WrapErrorWithSource(err error, src string) error {
	var re *ReadError
	if !errors.As(err, &re) {
		return err
	}
	return errors.New(prettyErrorString(src, "READ ERROR", re.Line, re.Col, re.Msg))
}

// prettyErrorString builds a snippet with a header and a caret, showing at
// most one line of context on each side. Coordinates are clamped to the
// source.
func prettyErrorString(src, header string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
