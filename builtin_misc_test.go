package rho

import (
	"math"
	"testing"
)

func Test_Builtin_Misc_c_coercion(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(c 1 2 3)`), 1, 2, 3)
	wantReal(t, mustEval(t, ip, `(c TRUE 2)`), 1, 2)
	wantLogical(t, mustEval(t, ip, `(c TRUE FALSE)`), true, false)
	wantStr(t, mustEval(t, ip, `(c 1 "a" TRUE)`), "1", "a", "TRUE")
	wantReal(t, mustEval(t, ip, `(c 1 NULL (c 2 3))`), 1, 2, 3)
	wantNull(t, mustEval(t, ip, `(c)`))

	v := mustEval(t, ip, `(c 1 (list 2 "x"))`)
	l, ok := v.(*List)
	if !ok || l.Len() != 3 {
		t.Fatalf("want list of 3, got %s", Deparse(v))
	}
}

func Test_Builtin_Misc_c_names(t *testing.T) {
	ip := newTestInterp(t)
	wantStr(t, mustEval(t, ip, `(names (c :a 1 :b 2))`), "a", "b")
	wantStr(t, mustEval(t, ip, `(names (c :a 1 2))`), "a", "")
	wantStr(t, mustEval(t, ip, `(names (c :x (c 1 2)))`), "x1", "x2")
	wantStr(t, mustEval(t, ip, `(names (c (c :p 1) 2))`), "p", "")
	wantNull(t, mustEval(t, ip, `(names (c 1 2))`))
}

func Test_Builtin_Misc_list(t *testing.T) {
	ip := newTestInterp(t)
	v := mustEval(t, ip, `(list 1 "a" NULL)`)
	l := v.(*List)
	if l.Len() != 3 || !isNull(l.At(2)) {
		t.Fatalf("list = %s", Deparse(v))
	}
	wantStr(t, mustEval(t, ip, `(names (list :a 1 2))`), "a", "")
	wantReal(t, mustEval(t, ip, `(length (list 1 2 (list 3 4)))`), 3)
}

func Test_Builtin_Misc_length(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(length NULL)`), 0)
	wantReal(t, mustEval(t, ip, `(length "abc")`), 1)
	wantReal(t, mustEval(t, ip, `(length '(f 1 2))`), 3)
	wantReal(t, mustEval(t, ip, `(length c)`), 1)
}

func Test_Builtin_Misc_structure_and_attr(t *testing.T) {
	ip := newTestInterp(t)
	mustEval(t, ip, `(<- x (c 1 2))`)
	v := mustEval(t, ip, `(structure x :unit "cm" :.Names (c "a" "b"))`)
	if got := Deparse(v); got != `structure(c(a = 1, b = 2), unit = "cm")` {
		t.Fatalf("deparse = %q", got)
	}
	// The original is untouched.
	wantNull(t, mustEval(t, ip, `(attr x "unit")`))
	wantStr(t, mustEval(t, ip, `(attr (structure x :unit "cm") "unit")`), "cm")

	mustEval(t, ip, `(<- y (structure x :unit "cm"))`)
	mustEval(t, ip, `(<- z (structure y :unit "mm"))`)
	wantStr(t, mustEval(t, ip, `(attr y "unit")`), "cm")
	wantStr(t, mustEval(t, ip, `(attr z "unit")`), "mm")

	e := mustFail(t, ip, `(structure 1 2)`, InvalidArgument)
	wantErrContains(t, e, "attributes must be named")
	mustFail(t, ip, `(structure NULL :a 1)`, InvalidArgument)
	mustFail(t, ip, `(attr x (c "a" "b"))`, InvalidArgument)
}

func Test_Builtin_Misc_paste(t *testing.T) {
	ip := newTestInterp(t)
	wantStr(t, mustEval(t, ip, `(paste "a" 1 TRUE)`), "a 1 TRUE")
	wantStr(t, mustEval(t, ip, `(paste "x" (c 1 2) :sep "")`), "x1", "x2")
	wantStr(t, mustEval(t, ip, `(paste (c "a" "b") :collapse "+")`), "a+b")
	wantStr(t, mustEval(t, ip, `(paste 'sym)`), "sym")
	wantStr(t, mustEval(t, ip, `(paste)`))
}

func Test_Builtin_Misc_arithmetic(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(+ 1 2)`), 3)
	wantReal(t, mustEval(t, ip, `(- 5)`), -5)
	wantReal(t, mustEval(t, ip, `(+ 5)`), 5)
	wantReal(t, mustEval(t, ip, `(* (c 1 2 3) 2)`), 2, 4, 6)
	wantReal(t, mustEval(t, ip, `(/ 1 4)`), 0.25)
	wantReal(t, mustEval(t, ip, `(^ 2 10)`), 1024)
	wantReal(t, mustEval(t, ip, `(%% -7 3)`), 2)
	wantReal(t, mustEval(t, ip, `(%% 7 -3)`), -2)
	wantReal(t, mustEval(t, ip, `(+ TRUE TRUE)`), 2)
	wantReal(t, mustEval(t, ip, `(+ NULL 1)`))

	v := mustEval(t, ip, `(/ 1 0)`).(*Real)
	if !math.IsInf(v.vals[0], 1) {
		t.Fatalf("1/0 = %v", v.vals[0])
	}

	e := mustFail(t, ip, `(+ "a" 1)`, InvalidArgument)
	wantErrContains(t, e, "non-numeric argument to binary operator")
	mustFail(t, ip, `(* 2)`, InvalidArgument)
	mustFail(t, ip, `(+ 1 2 3)`, InvalidArgument)
}

func Test_Builtin_Misc_arithmetic_recycling_warns(t *testing.T) {
	ip := newTestInterp(t)
	wantReal(t, mustEval(t, ip, `(+ (c 1 2 3 4) (c 10 20))`), 11, 22, 13, 24)
	if w := ip.Warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings %q", w)
	}
	wantReal(t, mustEval(t, ip, `(+ (c 1 2 3) (c 10 20))`), 11, 22, 13)
	w := ip.Warnings()
	if len(w) != 1 {
		t.Fatalf("want one warning, got %q", w)
	}
}

func Test_Builtin_Misc_arithmetic_keeps_attributes(t *testing.T) {
	ip := newTestInterp(t)
	wantStr(t, mustEval(t, ip, `(names (* (c :a 1 :b 2) 10))`), "a", "b")
	wantNull(t, mustEval(t, ip, `(names (* 10 (c :a 1 :b 2)))`))
	wantStr(t, mustEval(t, ip, `(attr (+ (structure 1 :unit "cm") 1) "unit")`), "cm")
}

func Test_Builtin_Misc_comparison(t *testing.T) {
	ip := newTestInterp(t)
	wantLogical(t, mustEval(t, ip, `(< 1 2)`), true)
	wantLogical(t, mustEval(t, ip, `(>= (c 1 2 3) 2)`), false, true, true)
	wantLogical(t, mustEval(t, ip, `(== "a" "a")`), true)
	wantLogical(t, mustEval(t, ip, `(< "a" "b")`), true)
	wantLogical(t, mustEval(t, ip, `(!= 1 "1")`), false)
	wantLogical(t, mustEval(t, ip, `(== NULL 1)`))
	e := mustFail(t, ip, `(== (list 1) 1)`, InvalidArgument)
	wantErrContains(t, e, "comparison (==) is possible only for atomic types")
}

func Test_Builtin_Misc_not(t *testing.T) {
	ip := newTestInterp(t)
	wantLogical(t, mustEval(t, ip, `(! TRUE)`), false)
	wantLogical(t, mustEval(t, ip, `(! (c 0 1))`), true, false)
	mustFail(t, ip, `(! (list 1))`, InvalidArgument)
}
