package main

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/westernmagic/rho"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	ip := rho.New(rho.DefaultOptions())
	t.Cleanup(ip.Close)
	var out, errw bytes.Buffer
	sh := newShell(ip, &out, &errw)
	t.Cleanup(sh.close)
	return sh, &out, &errw
}

func Test_Shell_Eval_Prints_Visible_Values(t *testing.T) {
	sh, out, errw := newTestShell(t)
	if fatal := sh.eval(`(<- x (c 1 2)) (+ x 1)`); fatal != nil {
		t.Fatal(fatal)
	}
	if got := strings.TrimSpace(out.String()); got != "[1] 2 3" {
		t.Fatalf("out = %q", got)
	}
	out.Reset()
	sh.eval(`(<- y 1)`)
	if out.Len() != 0 {
		t.Fatalf("invisible result printed: %q", out.String())
	}
	if errw.Len() != 0 {
		t.Fatalf("unexpected stderr: %q", errw.String())
	}
}

func Test_Shell_Eval_Reports_Errors(t *testing.T) {
	sh, out, errw := newTestShell(t)
	sh.eval(`(nosuch 1)`)
	if !strings.Contains(errw.String(), `could not find function "nosuch"`) {
		t.Fatalf("stderr = %q", errw.String())
	}
	errw.Reset()
	sh.eval(`(f 1))`)
	if !strings.Contains(errw.String(), "READ ERROR at 1:6") {
		t.Fatalf("stderr = %q", errw.String())
	}
	if out.Len() != 0 {
		t.Fatalf("stdout = %q", out.String())
	}
}

func Test_Shell_Commands(t *testing.T) {
	sh, out, errw := newTestShell(t)
	if sh.command(":collect") || !strings.Contains(out.String(), "collections: 1") {
		t.Fatalf(":collect output = %q", out.String())
	}
	out.Reset()
	sh.command(":check")
	if !strings.Contains(out.String(), "moribund=") {
		t.Fatalf(":check output = %q", out.String())
	}
	out.Reset()
	sh.command(":roots")
	if !strings.Contains(out.String(), "roots,") {
		t.Fatalf(":roots output = %q", out.String())
	}
	sh.command(":bogus")
	if !strings.Contains(errw.String(), `unknown command "bogus"`) {
		t.Fatalf("stderr = %q", errw.String())
	}
	if !sh.command(":quit") {
		t.Fatalf(":quit did not ask to exit")
	}
}

func Test_Shell_Root_Unroot(t *testing.T) {
	sh, out, errw := newTestShell(t)
	sh.eval(`(<- keep (list 1 2))`)
	before := sh.ip.Heap.HeapRoots()
	sh.command(":root keep")
	if sh.ip.Heap.HeapRoots() != before+1 {
		t.Fatalf("heap roots = %d, want %d", sh.ip.Heap.HeapRoots(), before+1)
	}
	var id uint64
	if _, err := fmt.Sscanf(out.String(), "rooted #%d", &id); err != nil {
		t.Fatalf("output = %q", out.String())
	}
	sh.command(":root keep")
	if sh.ip.Heap.HeapRoots() != before+1 {
		t.Fatalf("second :root added another root")
	}
	sh.command(fmt.Sprintf(":unroot #%d", id))
	if sh.ip.Heap.HeapRoots() != before {
		t.Fatalf("heap roots after unroot = %d", sh.ip.Heap.HeapRoots())
	}
	if errw.Len() != 0 {
		t.Fatalf("stderr = %q", errw.String())
	}
	sh.command(fmt.Sprintf(":unroot %d", id))
	sh.command(":root nothere")
	if !strings.Contains(errw.String(), "is not held by the shell") || !strings.Contains(errw.String(), "object 'nothere' not found") {
		t.Fatalf("stderr = %q", errw.String())
	}
}

func Test_Shell_Weak_Reports_Clearing(t *testing.T) {
	sh, out, errw := newTestShell(t)
	// A self-referencing environment is only reclaimed by a full collection.
	sh.eval(`(<- e (new.env)) (assign "me" e e)`)
	sh.command(":weak e")
	var id uint64
	if _, err := fmt.Sscanf(out.String(), "watching #%d", &id); err != nil {
		t.Fatalf("output = %q", out.String())
	}
	if sh.ip.Heap.WeakRefs() != 1 {
		t.Fatalf("weak refs = %d", sh.ip.Heap.WeakRefs())
	}
	sh.eval(`(<- e NULL)`)
	out.Reset()
	sh.command(":collect")
	if !strings.Contains(out.String(), fmt.Sprintf("#%d cleared", id)) {
		t.Fatalf(":collect output = %q", out.String())
	}
	if sh.ip.Heap.WeakRefs() != 0 {
		t.Fatalf("weak refs after clearing = %d", sh.ip.Heap.WeakRefs())
	}
	sh.eval(`(<- s (quote a))`)
	sh.command(":weak s")
	sh.command(":weak")
	if !strings.Contains(errw.String(), "never reclaimed") || !strings.Contains(errw.String(), "usage: :weak") {
		t.Fatalf("stderr = %q", errw.String())
	}
}

func Test_Shell_Inhibit(t *testing.T) {
	sh, out, errw := newTestShell(t)
	sh.command(":inhibit on")
	if !sh.ip.Heap.Inhibited() {
		t.Fatalf("heap not inhibited")
	}
	before := sh.ip.Heap.Stats().Collections
	sh.eval(`(<- x (list 1 2 3)) (<- x NULL) (gc)`)
	sh.command(":collect")
	if !strings.Contains(errw.String(), "collection is inhibited") {
		t.Fatalf("stderr = %q", errw.String())
	}
	if sh.ip.Heap.Stats().Collections != before {
		t.Fatalf("collected while inhibited")
	}
	if sh.ip.Check().Moribund == 0 {
		t.Fatalf("dropped list was reclaimed while inhibited")
	}

	// A second :inhibit on keeps the single inhibitor.
	sh.command(":inhibit on")
	sh.command(":inhibit off")
	if sh.ip.Heap.Inhibited() {
		t.Fatalf("heap still inhibited")
	}
	out.Reset()
	sh.command(":collect")
	if !strings.Contains(out.String(), "collections:") {
		t.Fatalf(":collect output = %q", out.String())
	}
	errw.Reset()
	sh.command(":inhibit maybe")
	if !strings.Contains(errw.String(), "usage: :inhibit") {
		t.Fatalf("stderr = %q", errw.String())
	}
}

func Test_Shell_Render(t *testing.T) {
	sh, _, errw := newTestShell(t)
	sh.eval(`(<- f (function (x) (+ x 1)))`)
	path := filepath.Join(t.TempDir(), "heap.png")
	sh.command(":render " + path)
	if errw.Len() != 0 {
		t.Fatalf("stderr = %q", errw.String())
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("rendered file is not a PNG: %v", err)
	}
	sh.command(":render")
	if !strings.Contains(errw.String(), "usage: :render") {
		t.Fatalf("stderr = %q", errw.String())
	}
}

func Test_Run_File(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.r")
	if err := os.WriteFile(src, []byte(`(<- x 1)`), 0o644); err != nil {
		t.Fatal(err)
	}
	img := filepath.Join(dir, "out.png")
	if code := run([]string{"-torture", "-render", img, src}); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if _, err := os.Stat(img); err != nil {
		t.Fatalf("render output missing: %v", err)
	}
	if code := run([]string{filepath.Join(dir, "missing.r")}); code != 1 {
		t.Fatalf("missing file exit code %d", code)
	}
}
