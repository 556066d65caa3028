package rho

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func mustContain(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("expected output to contain %q\n--- output ---\n%s", sub, s)
	}
}

func Test_Error_Message_Forms(t *testing.T) {
	e := &Error{Kind: NoSuchFunction, Msg: `could not find function "g"`, Call: "f(x)"}
	if e.Error() != `Error in f(x) : could not find function "g"` {
		t.Fatalf("Error() = %q", e.Error())
	}
	top := &Error{Kind: Condition, Msg: "boom"}
	if top.Error() != "Error: boom" {
		t.Fatalf("Error() = %q", top.Error())
	}
}

func Test_Error_Is_Kind(t *testing.T) {
	var err error = &Error{Kind: ArgumentMatch, Msg: "x"}
	wrapped := fmt.Errorf("while loading: %w", err)
	if !errors.Is(wrapped, ArgumentMatch) || errors.Is(wrapped, StackOverflow) {
		t.Fatalf("errors.Is does not follow the kind")
	}
	e, ok := AsError(wrapped)
	if !ok || e.Kind != ArgumentMatch {
		t.Fatalf("AsError = %v, %v", e, ok)
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatalf("AsError matched a plain error")
	}
}

func Test_Error_Kind_Names(t *testing.T) {
	if ArgumentMatch.String() != "ArgumentMatchError" || StackOverflow.Error() != "StackOverflow" {
		t.Fatalf("kind names: %s %s", ArgumentMatch, StackOverflow)
	}
	if ErrorKind(99).String() != "ErrorKind(99)" {
		t.Fatalf("unknown kind = %s", ErrorKind(99))
	}
}

func Test_Error_Format_Traceback(t *testing.T) {
	e := &Error{Kind: Condition, Msg: "deep", Call: "h()", Traceback: []string{"h()", "g()", "f()"}}
	got := e.Format()
	want := "Error in h() : deep\nTraceback:\n3: h()\n2: g()\n1: f()\n"
	if got != want {
		t.Fatalf("Format =\n%s\nwant\n%s", got, want)
	}
	if (&Error{Msg: "x"}).Format() != "Error: x" {
		t.Fatalf("Format without traceback added lines")
	}
}

func Test_ErrorWrap_Read_ShowsCaretAndContext(t *testing.T) {
	src := "(f 1)\n(g (h 2)))\n(k)"
	err := WrapErrorWithSource(&ReadError{Line: 2, Col: 10, Msg: "unexpected ')'"}, src)
	msg := err.Error()
	mustContain(t, msg, "READ ERROR at 2:10: unexpected ')'")
	mustContain(t, msg, "   1 | (f 1)")
	mustContain(t, msg, "   2 | (g (h 2)))")
	mustContain(t, msg, "     |          ^")
	mustContain(t, msg, "   3 | (k)")
}

func Test_ErrorWrap_ClampsCoordinates(t *testing.T) {
	err := WrapErrorWithSource(&ReadError{Line: 9, Col: 0, Msg: "unexpected end of input"}, "(f")
	msg := err.Error()
	mustContain(t, msg, "READ ERROR at 1:1")
	mustContain(t, msg, "   1 | (f")
	mustContain(t, msg, "     | ^")
}

func Test_ErrorWrap_PassesOtherErrors(t *testing.T) {
	plain := errors.New("io")
	if WrapErrorWithSource(plain, "x") != plain {
		t.Fatalf("non-read error was rewritten")
	}
	e := &Error{Kind: Condition, Msg: "m"}
	if WrapErrorWithSource(e, "x") != error(e) {
		t.Fatalf("evaluation error was rewritten")
	}
}

func Test_Error_Traceback_Includes_StackFrame_Builtins(t *testing.T) {
	ip := newTestInterp(t)
	ip.RegisterBuiltin(BuiltInSpec{
		Name: "fail.here", Arity: 0, StackFrame: true,
		Direct: func(c *Call, _ []Object) (Object, error) {
			return nil, c.Errorf(InvalidArgument, "from a primitive")
		},
	})
	mustEval(t, ip, `(<- f (function () (fail.here)))`)
	e := mustFail(t, ip, `(f)`, InvalidArgument)
	if got := strings.Join(e.Traceback, ","); got != "fail.here(),f()" {
		t.Fatalf("traceback = %q", got)
	}
	if e.Call != "fail.here()" {
		t.Fatalf("call = %q", e.Call)
	}
}
