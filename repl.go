package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/stuck"

	"github.com/peterh/liner"
)

const (
	historyFile = ".stuck_history"
	promptMain  = "stuck :> "
	promptCont  = "... "
)

const replHelp = `REPL commands:
  :quit    Exit the REPL
  :stack   Print the value stack
  :reset   Forget all variables and values
  :help    Print this text
`

func cmdRepl() int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	// Ctrl+C only reaches us as a signal while a program runs; at the prompt
	// liner reports it as ErrPromptAborted.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)

	vm := stuck.NewVM(os.Stdin, os.Stdout, stuck.OptionsFromConfig())
	logger.Info(logger.AreaREPL, "REPL started")

	for {
		source, ok := readEntry(ln, os.Stderr)
		if !ok {
			fmt.Println()
			return exitOK
		}
		entry := strings.TrimSpace(source)
		if entry == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(source, "\n", " "))

		if strings.HasPrefix(entry, ":") {
			if entry == ":quit" {
				return exitOK
			}
			replCommand(vm, entry, os.Stdout)
			continue
		}

		program, err := stuck.Compile(source)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		vm.Extend(program)
		if err := runEntry(vm, sigc); errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted.")
		} else if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// readEntry reads lines until the collected source no longer leaves blocks
// open. It returns false at end of input.
func readEntry(ln *liner.State, stderr io.Writer) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if !needsMore(b.String()) {
			b.WriteByte('\n')
			return b.String(), true
		}
	}
}

// needsMore reports whether source compiles but still has blocks open.
// Sources that fail to compile are complete: the error is reported when the
// entry runs.
func needsMore(source string) bool {
	if strings.HasPrefix(strings.TrimSpace(source), ":") {
		return false
	}
	program, err := stuck.Compile(source)
	return err == nil && program.Incomplete()
}

func runEntry(vm *stuck.VM, sigc <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigc:
			cancel()
		case <-done:
		}
	}()

	return vm.Run(ctx)
}

func replCommand(vm *stuck.VM, command string, out io.Writer) {
	switch command {
	case ":stack":
		values := vm.Stack()
		if len(values) == 0 {
			fmt.Fprintln(out, "(empty)")
			return
		}
		for i := len(values) - 1; i >= 0; i-- {
			fmt.Fprintln(out, stuck.Describe(values[i]))
		}
	case ":reset":
		vm.LoadProgram(&stuck.Program{})
		fmt.Fprintln(out, "State cleared.")
	case ":help":
		fmt.Fprint(out, replHelp)
	default:
		fmt.Fprintln(out, "unknown command. Type :help for a list.")
	}
}
