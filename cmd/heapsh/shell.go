package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/westernmagic/rho"
	"github.com/westernmagic/rho/gc"
	"github.com/westernmagic/rho/heapviz"
)

const helpText = `
Shell commands:
  :collect          Run a full collection and print the statistics
  :check            Validate the heap and print the consistency report
  :stats            Print collector statistics
  :roots            List the rooted nodes
  :root <name>      Hold the value of a global variable with a heap root
  :unroot <id>      Release a heap root taken with :root
  :weak <name>      Watch the value of a global variable with a weak reference
  :inhibit on|off   Suspend or resume garbage collection
  :render <file>    Write the heap graph to a PNG file
  :help             Show this text
  :quit             Exit the shell
Anything else is read and evaluated in the global environment.
`

func red(s string) string  { return "\x1b[31m" + s + "\x1b[0m" }
func blue(s string) string { return "\x1b[94m" + s + "\x1b[0m" }

// shell holds one interpreter and the streams its commands report to.
type shell struct {
	ip    *rho.Interpreter
	out   io.Writer
	err   io.Writer
	color bool
	held  map[uint64]*gc.HeapRoot // roots taken with :root, by node id

	inhibit func() // non-nil while :inhibit on holds the collector
}

func newShell(ip *rho.Interpreter, out, errw io.Writer) *shell {
	return &shell{ip: ip, out: out, err: errw, held: make(map[uint64]*gc.HeapRoot)}
}

func (s *shell) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if s.color {
		msg = red(msg)
	}
	fmt.Fprintln(s.err, msg)
}

// command runs a ":" command line. It reports whether the shell should exit.
func (s *shell) command(line string) (quit bool) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), ":"))
	if len(fields) == 0 {
		s.errorf("empty command. Type :help for the list.")
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "q":
		return true
	case "help":
		fmt.Fprint(s.out, helpText)
	case "collect":
		if s.ip.Heap.Inhibited() {
			s.errorf("collection is inhibited. Use :inhibit off first.")
			return false
		}
		s.ip.Collect()
		_ = s.ip.DumpStats(s.out)
	case "check":
		fmt.Fprintln(s.out, s.ip.Check())
	case "stats":
		_ = s.ip.DumpStats(s.out)
	case "roots":
		s.printRoots()
	case "root":
		if len(fields) != 2 {
			s.errorf("usage: :root <name>")
			return false
		}
		s.root(fields[1])
	case "unroot":
		if len(fields) != 2 {
			s.errorf("usage: :unroot <id>")
			return false
		}
		s.unroot(fields[1])
	case "weak":
		if len(fields) != 2 {
			s.errorf("usage: :weak <name>")
			return false
		}
		s.weak(fields[1])
	case "inhibit":
		if len(fields) != 2 {
			s.errorf("usage: :inhibit on|off")
			return false
		}
		s.setInhibit(fields[1])
	case "render":
		if len(fields) != 2 {
			s.errorf("usage: :render <file.png>")
			return false
		}
		if err := s.render(fields[1]); err != nil {
			s.errorf("render: %v", err)
		}
	default:
		s.errorf("unknown command %q. Type :help for the list.", fields[0])
	}
	return false
}

func (s *shell) printRoots() {
	snap := s.ip.Heap.Snapshot()
	for _, id := range snap.Roots {
		n, _ := snap.Find(id)
		fmt.Fprintf(s.out, "#%d  %s  refs=%d\n", id, n.Kind, n.Refs)
	}
	fmt.Fprintf(s.out, "%d roots, %d nodes\n", len(snap.Roots), len(snap.Nodes))
}

// global returns the value bound to name in the global environment and its
// node id, reporting an error when there is none.
func (s *shell) global(name string) (rho.Object, uint64, bool) {
	b, _ := s.ip.Global.Lookup(s.ip.Symbol(name))
	if b == nil {
		s.errorf("object '%s' not found", name)
		return nil, 0, false
	}
	v := b.Value()
	hd := gc.HeaderOf(v)
	if hd == nil {
		s.errorf("'%s' is NULL", name)
		return nil, 0, false
	}
	return v, hd.ID(), true
}

func (s *shell) root(name string) {
	v, id, ok := s.global(name)
	if !ok {
		return
	}
	if _, ok := s.held[id]; !ok {
		s.held[id] = s.ip.Heap.AddRoot(v)
	}
	fmt.Fprintf(s.out, "rooted #%d\n", id)
}

func (s *shell) unroot(arg string) {
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		s.errorf("invalid node id %q", arg)
		return
	}
	r, ok := s.held[id]
	if !ok {
		s.errorf("#%d is not held by the shell", id)
		return
	}
	r.Remove()
	delete(s.held, id)
	fmt.Fprintf(s.out, "released #%d\n", id)
}

func (s *shell) weak(name string) {
	v, id, ok := s.global(name)
	if !ok {
		return
	}
	if _, isSym := v.(*rho.Symbol); isSym {
		s.errorf("'%s' is a symbol, which is never reclaimed", name)
		return
	}
	s.ip.Heap.NewWeakRef(v, func(*gc.WeakRef) {
		fmt.Fprintf(s.out, "#%d cleared\n", id)
	})
	fmt.Fprintf(s.out, "watching #%d\n", id)
}

func (s *shell) setInhibit(arg string) {
	switch strings.ToLower(arg) {
	case "on":
		if s.inhibit == nil {
			s.inhibit = s.ip.Heap.Inhibit()
		}
		fmt.Fprintln(s.out, "collection inhibited")
	case "off":
		if s.inhibit != nil {
			s.inhibit()
			s.inhibit = nil
		}
		fmt.Fprintln(s.out, "collection enabled")
	default:
		s.errorf("usage: :inhibit on|off")
	}
}

// close releases what the shell holds on the heap.
func (s *shell) close() {
	if s.inhibit != nil {
		s.inhibit()
		s.inhibit = nil
	}
	for id, r := range s.held {
		r.Remove()
		delete(s.held, id)
	}
}

// closeUnlessFatal runs close unless *code reports a collector fatal error,
// after which the heap must not be touched.
func (s *shell) closeUnlessFatal(code *int) {
	if *code != exitFatal {
		s.close()
	}
}

func (s *shell) render(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := heapviz.Render(s.ip.Heap.Snapshot(), f, heapviz.DefaultOptions()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %s\n", path)
	return nil
}

// eval evaluates src and prints the visible result and any warnings. A
// collector fatal error is returned; evaluation errors are printed.
func (s *shell) eval(src string) (fatal error) {
	defer func() {
		if r := recover(); r != nil {
			var fe *gc.FatalError
			if err, ok := r.(error); ok && errors.As(err, &fe) {
				fatal = fe
				return
			}
			panic(r)
		}
	}()
	v, err := s.ip.EvalString(src)
	for _, w := range s.ip.Warnings() {
		fmt.Fprintln(s.err, "Warning message:\n"+w)
	}
	if err != nil {
		var e *rho.Error
		if errors.As(err, &e) {
			s.errorf("%s", strings.TrimRight(e.Format(), "\n"))
		} else {
			s.errorf("%v", err)
		}
		return nil
	}
	if v != nil && s.ip.Visible() {
		out := rho.FormatValue(v)
		if s.color {
			out = blue(out)
		}
		fmt.Fprintln(s.out, out)
	}
	return nil
}
