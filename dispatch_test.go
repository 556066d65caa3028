package rho

import "testing"

const shapes = `
	(<- area (function (s ...) (UseMethod "area")))
	(<- area.square (function (s ...) (* (attr s "side") (attr s "side"))))
	(<- area.default (function (s ...) -1))
`

func Test_Dispatch_ByClassAttribute(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, shapes)
	wantReal(t, mustEval(t, ip, `(area (structure 1 :side 3 :class "square"))`), 9)
	wantReal(t, mustEval(t, ip, `(area 1)`), -1)
	wantUnwound(t, ip)
}

func Test_Dispatch_GenericAndClassBindings(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- desc (function (x) (UseMethod "desc")))
		(<- desc.b (function (x) (paste .Generic .Class)))
		(<- desc.default (function (x) (paste .Generic "default" (length .Class))))
	`)
	wantStr(t, mustEval(t, ip, `(desc (structure 1 :class (c "a" "b")))`), "desc b")
	wantStr(t, mustEval(t, ip, `(desc (structure 1 :class "z"))`), "desc default 0")
}

func Test_Dispatch_ImplicitClass(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- kind (function (x) (UseMethod "kind")))
		(<- kind.numeric (function (x) "number"))
		(<- kind.character (function (x) "text"))
		(<- kind.function (function (x) "fn"))
		(<- kind.NULL (function (x) "nothing"))
	`)
	wantStr(t, mustEval(t, ip, `(kind 1)`), "number")
	wantStr(t, mustEval(t, ip, `(kind "a")`), "text")
	wantStr(t, mustEval(t, ip, `(kind c)`), "fn")
	wantStr(t, mustEval(t, ip, `(kind NULL)`), "nothing")
}

func Test_Dispatch_MethodSeesGenericCaller(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- who (function (x) (UseMethod "who")))
		(<- who.default (function (x) (parent.frame)))
		(<- caller (function () (list (environment) (who 1))))
	`)
	v := mustEval(t, ip, `(caller)`)
	l := v.(*List)
	if l.At(0) != l.At(1) {
		t.Fatalf("method's parent.frame is not the generic's caller: %s", Deparse(v))
	}
	if mustEval(t, ip, `(who 1)`) != Object(ip.Global) {
		t.Fatalf("method called from top level should see the global environment")
	}
}

func Test_Dispatch_ReturnsFromGeneric(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- g2 (function (x) ({ (UseMethod "g2") "after")))
		(<- g2.default (function (x) "method"))
	`)
	wantStr(t, mustEval(t, ip, `(g2 1)`), "method")
	wantUnwound(t, ip)
}

func Test_Dispatch_ArgumentsNotReevaluated(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- n 0)
		(<- tick (function () ({ (assign "n" (+ n 1) (globalenv)) n)))
		(<- show (function (x) (UseMethod "show")))
		(<- show.default (function (x) (c x x)))
	`)
	wantReal(t, mustEval(t, ip, `(show (tick))`), 1, 1)
	wantReal(t, mustEval(t, ip, `n`), 1)
}

func Test_Dispatch_ExplicitObject(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- g (function (x y) (UseMethod "g" y)))
		(<- g.character (function (x y) (paste "on y" y)))
		(<- g.default (function (x y) "default"))
	`)
	wantStr(t, mustEval(t, ip, `(g 1 "s")`), "on y s")
}

func Test_Dispatch_BuiltinMethod(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- len (function (x) (UseMethod "len")))
		(<- len.default length)
	`)
	wantReal(t, mustEval(t, ip, `(len (c 1 2 3))`), 3)
}

func Test_Dispatch_Errors(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `
		(<- nm (function (x) (UseMethod "nm")))
		(<- bad (function (x) (UseMethod 1)))
		(<- none (function () (UseMethod)))
	`)
	e := mustFail(t, ip, `(nm "s")`, InvalidArgument)
	wantErrContains(t, e, `no applicable method for 'nm' applied to an object of class "character"`)
	e = mustFail(t, ip, `(nm (structure 1 :class (c "p" "q")))`, InvalidArgument)
	wantErrContains(t, e, `applied to an object of class "c('p', 'q')"`)

	mustFail(t, ip, `(bad 1)`, InvalidArgument)
	e = mustFail(t, ip, `(none)`, InvalidArgument)
	wantErrContains(t, e, "'UseMethod' called with no arguments")
	e = mustFail(t, ip, `(UseMethod "x")`, InvalidArgument)
	wantErrContains(t, e, "UseMethod called from outside a function")
	wantUnwound(t, ip)
}

func Test_Dispatch_class_and_inherits(t *testing.T) {
	ip := newTestInterp(t)
	wantStr(t, mustEval(t, ip, `(class 1)`), "double", "numeric")
	wantStr(t, mustEval(t, ip, `(class (list))`), "list")
	wantStr(t, mustEval(t, ip, `(class 'x)`), "name")
	wantStr(t, mustEval(t, ip, `(class '(f))`), "call")
	wantStr(t, mustEval(t, ip, `(class (structure 1 :class (c "a" "b")))`), "a", "b")
	wantLogical(t, mustEval(t, ip, `(inherits (structure 1 :class (c "a" "b")) "b")`), true)
	wantLogical(t, mustEval(t, ip, `(inherits 1 "character")`), false)
}
