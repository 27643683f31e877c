package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/stuck"
)

const appName = "stuck"

const (
	exitOK         = 0
	exitFailure    = 1
	exitSourceRead = 2
)

const usageText = `program: stuck
usage:
commands:
        stuck                     :   runs a stuck repl.
        stuck [subcommands] [options]
subcommands:
        [source_file]             :   interprets the file.
        [source_file] -i          :   interprets the file.
        [source_file] -c          :   compiles the file (not supported).
        check [suite.yaml ...]    :   runs conformance suites.
        watch [source_file]       :   interprets the file again on every save.
        serve                     :   starts the playground server.
        help                      :   prints this page.
`

func main() {
	configPath := configuration.Path()
	if err := configuration.Initialize(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
	}
	logger.ConfigInfo("Configuration loaded from: %s", configPath)

	code := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	logger.Close()
	os.Exit(code)
}

// run dispatches the command line and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return cmdRepl()
	}

	switch args[0] {
	case "help", "-h", "--help":
		if len(args) > 1 {
			return help(stdout, stderr, "invalid subcommands")
		}
		return help(stdout, stderr, "")
	case "check":
		return cmdCheck(args[1:], stdout, stderr)
	case "watch":
		return cmdWatch(args[1:], stdout, stderr)
	case "serve":
		return cmdServe(args[1:], stderr)
	}

	switch len(args) {
	case 1:
		return runFile(args[0], stdin, stdout, stderr)
	case 2:
		switch args[1] {
		case "-i":
			return runFile(args[0], stdin, stdout, stderr)
		case "-c":
			fmt.Fprintln(stderr, "Error: compilation is not supported.")
			return exitFailure
		default:
			return help(stdout, stderr, fmt.Sprintf("invalid flag `%s`", args[1]))
		}
	}
	return help(stdout, stderr, "invalid subcommands")
}

// help prints the usage page; with a message it also reports an error.
func help(stdout, stderr io.Writer, message string) int {
	fmt.Fprint(stdout, usageText)
	if message != "" {
		fmt.Fprintf(stderr, "Error: %s.\n", message)
		return exitFailure
	}
	return exitOK
}

// readSource loads a program file. A trailing newline is added so the last
// line is always terminated.
func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func runFile(path string, stdin io.Reader, stdout, stderr io.Writer) int {
	source, err := readSource(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSourceRead
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := interpret(ctx, source, stdin, stdout, stderr); err != nil {
		return exitFailure
	}
	return exitOK
}

// interpret runs source once and reports a failure on stderr.
func interpret(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
	err := stuck.Execute(ctx, source, stdin, stdout, stuck.OptionsFromConfig())
	if err != nil {
		fmt.Fprintln(stderr, err)
		logger.Debug(logger.AreaGeneral, "Run failed: %v", err)
	}
	return err
}
