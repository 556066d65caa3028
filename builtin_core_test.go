package rho

import (
	"strings"
	"testing"
)

func Test_Builtin_Core_quote(t *testing.T) {
	ip := newTestInterp(t)
	v := mustEval(t, ip, `(quote (f x :b 1))`)
	if got := Deparse(v); got != "f(x, b = 1)" {
		t.Fatalf("quote = %q", got)
	}
	if s, ok := mustEval(t, ip, `'x`).(*Symbol); !ok || s.Name() != "x" {
		t.Fatalf("'x did not yield the symbol")
	}
	mustFail(t, ip, `(quote)`, InvalidArgument)
}

func Test_Builtin_Core_block(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `({ 1 2 3)`), 3)
	wantNull(t, mustEval(t, ip, `({)`))
}

func Test_Builtin_Core_if(t *testing.T) {
	ip := newTestInterp(t)
	wantStr(t, mustEval(t, ip, `(if TRUE "y" "n")`), "y")
	wantStr(t, mustEval(t, ip, `(if 0 "y" "n")`), "n")
	wantStr(t, mustEval(t, ip, `(if "T" "y" "n")`), "y")
	wantNull(t, mustEval(t, ip, `(if FALSE "y")`))

	e := mustFail(t, ip, `(if NULL 1)`, InvalidArgument)
	wantErrContains(t, e, "argument is of length zero")
	e = mustFail(t, ip, `(if "maybe" 1)`, InvalidArgument)
	wantErrContains(t, e, "argument is not interpretable as logical")
	mustFail(t, ip, `(if TRUE)`, InvalidArgument)
}

func Test_Builtin_Core_assign(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(<- "x" 5) x`), 5)
	wantReal(t, mustEval(t, ip, `(<- `+"`odd name`"+` 6) `+"`odd name`"), 6)
	e := mustFail(t, ip, `(<- 1 2)`, InvalidArgument)
	wantErrContains(t, e, "invalid (do_set) left-hand side to assignment")
}

func Test_Builtin_Core_function(t *testing.T) {
	ip := newTestInterp(t)
	v := mustEval(t, ip, `(function (a :b 2 ...) (+ a b))`)
	if _, ok := v.(*Closure); !ok {
		t.Fatalf("want closure, got %s", Deparse(v))
	}
	if got := Deparse(v); got != "function(a, b = 2, ...) a + b" {
		t.Fatalf("deparse = %q", got)
	}
	wantReal(t, mustEval(t, ip, `((function () 7))`), 7)
	wantReal(t, mustEval(t, ip, `((function NULL 8))`), 8)

	e := mustFail(t, ip, `(function (a a) 1)`, InvalidArgument)
	wantErrContains(t, e, "repeated formal argument 'a'")
}

func Test_Builtin_Core_invisible_and_identity(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(invisible 3)`), 3)
	wantNull(t, mustEval(t, ip, `(invisible)`))
	wantReal(t, mustEval(t, ip, `(force (+ 1 1))`), 2)
	wantReal(t, mustEval(t, ip, `(identity 4)`), 4)
	mustFail(t, ip, `(invisible 1 2)`, InvalidArgument)
}

func Test_Builtin_Core_return_arguments(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `(<- f (function () (return 1 2)))`)
	e := mustFail(t, ip, `(f)`, InvalidArgument)
	wantErrContains(t, e, "multi-argument returns are not permitted")
}

func Test_Builtin_Core_stop(t *testing.T) {
	ip := newTestInterp(t)
	e := mustFail(t, ip, `(stop "plain")`, Condition)
	if e.Error() != "Error: plain" {
		t.Fatalf("top-level stop = %q", e.Error())
	}

	mustEval(t, ip, `(<- f (function (x) (stop "bad value " x)))`)
	e = mustFail(t, ip, `(f 3)`, Condition)
	if e.Error() != "Error in f(3) : bad value 3" {
		t.Fatalf("stop in closure = %q", e.Error())
	}
	wantUnwound(t, ip)
}

func Test_Builtin_Core_warning(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `(<- w (function () ({ (warning "careful") 3)))`)
	wantReal(t, mustEval(t, ip, `(w)`), 3)
	got := ip.Warnings()
	if len(got) != 1 || got[0] != "In w() : careful" {
		t.Fatalf("warnings = %q", got)
	}
	if len(ip.Warnings()) != 0 {
		t.Fatalf("Warnings did not clear")
	}
	wantStr(t, mustEval(t, ip, `(warning "top")`), "top")
	if got := ip.Warnings(); len(got) != 1 || got[0] != "top" {
		t.Fatalf("warnings = %q", got)
	}
}

func Test_Builtin_Core_try(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(try (+ 1 2))`), 3)

	mustEval(t, ip, `(<- f (function () (stop "bad " 1)))`)
	v := mustEval(t, ip, `(try (f) TRUE)`)
	wantStr(t, v, "Error in f() : bad 1\n")
	if ip.Visible() {
		t.Fatalf("try-error should be invisible")
	}
	if cls := ip.classOf(v); len(cls) != 1 || cls[0] != "try-error" {
		t.Fatalf("class = %q", cls)
	}
	wantUnwound(t, ip)

	// The program continues after a caught error.
	v = mustEval(t, ip, `
		(<- r (try (nosuch) TRUE))
		(c (inherits r "try-error") (== 1 1))
	`)
	wantLogical(t, v, true, true)
}

func Test_Builtin_Core_try_does_not_catch_return(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `(<- f (function () ({ (try (return "out")) "after")))`)
	wantStr(t, mustEval(t, ip, `(f)`), "out")
	wantUnwound(t, ip)
}

func Test_Builtin_Core_try_nested_in_closures(t *testing.T) {
	ip := newTestInterp(t)
	v := mustEval(t, ip, `
		(<- inner (function (n) (if (> n 0) (inner (- n 1)) (stop "bottom"))))
		(<- outer (function () (try (inner 5) TRUE)))
		(outer)
	`)
	s, ok := v.(*Str)
	if !ok || !strings.Contains(s.vals[0], "bottom") {
		t.Fatalf("want try-error about bottom, got %s", Deparse(v))
	}
	wantUnwound(t, ip)
}
