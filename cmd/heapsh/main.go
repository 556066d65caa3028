// Command heapsh is an interactive shell over one rho interpreter. It reads
// calls, evaluates them and lets the user drive and inspect the collector.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/westernmagic/rho"
)

const (
	appName     = "heapsh"
	historyFile = ".rho_history"
	promptMain  = "> "
	promptCont  = "+ "
	exitFatal   = 3
)

var banner = fmt.Sprintf("rho %s heap shell\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands.", rho.Version)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	torture := fs.Bool("torture", false, "collect at every allocation")
	trigger := fs.Uint64("trigger", 0, "initial collection trigger in bytes (0: default)")
	verbose := fs.Bool("v", false, "log collector and evaluator activity to stderr")
	renderTo := fs.String("render", "", "after running a file, write the heap graph to this PNG")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]            Start the shell.\n  %s [flags] <file>     Evaluate a file.\n\nFlags:\n", appName, appName)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := rho.OptionsFromEnv()
	if *torture {
		opts.GC.Torture = true
	}
	if *trigger > 0 {
		opts.GC.TriggerBytes = uintptr(*trigger)
	}
	if *verbose {
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts.GC.Logger = log
		opts.Logger = log
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return 2
	}
	ip := rho.New(opts)
	var code int
	if fs.NArg() == 0 {
		code = repl(ip)
	} else {
		code = runFile(ip, fs.Arg(0), *renderTo)
	}
	// After a collector fatal error the heap is not fit to be torn down.
	if code != exitFatal {
		ip.Close()
	}
	return code
}

func runFile(ip *rho.Interpreter, path, renderTo string) (code int) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, path, err)
		return 1
	}
	sh := newShell(ip, os.Stdout, os.Stderr)
	defer sh.closeUnlessFatal(&code)
	if fatal := sh.eval(string(src)); fatal != nil {
		fmt.Fprintln(os.Stderr, fatal)
		return exitFatal
	}
	if renderTo != "" {
		if err := sh.render(renderTo); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			return 1
		}
	}
	return 0
}

func repl(ip *rho.Interpreter) (code int) {
	fmt.Println(banner)
	rho.EnableColor = true

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	sh := newShell(ip, os.Stdout, os.Stderr)
	sh.color = true
	defer sh.closeUnlessFatal(&code)
	for {
		src, ok := readUntilComplete(ln, ip, rho.HighlightPrompt(promptMain), promptCont)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(src)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		if strings.HasPrefix(trimmed, ":") {
			if sh.command(trimmed) {
				return 0
			}
			continue
		}
		if fatal := sh.eval(src); fatal != nil {
			fmt.Fprintln(os.Stderr, red(fatal.Error()))
			return exitFatal
		}
	}
}

// readUntilComplete keeps prompting while the text so far ends inside a form.
func readUntilComplete(ln *liner.State, ip *rho.Interpreter, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		p := prompt
		if b.Len() > 0 {
			p = cont
		}
		line, err := ln.Prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := ip.Read(src); rho.IsIncomplete(err) {
			continue
		}
		return src, true
	}
}
