package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/antibyte/stuck/pkg/fixtures"
)

// cmdCheck runs YAML conformance suites and fails if any case fails.
func cmdCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "print passing cases too")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "usage: %s check [-v] <suite.yaml>...\n", appName)
		return exitFailure
	}

	code := exitOK
	totalPassed, totalFailed := 0, 0
	for _, path := range fs.Args() {
		suite, err := fixtures.Load(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			code = exitFailure
			continue
		}

		results := suite.Run(context.Background())
		for _, r := range results {
			if *verbose || !r.Passed {
				fmt.Fprintln(stdout, r)
			}
		}
		passed, failed := fixtures.Summary(results)
		fmt.Fprintf(stdout, "%s: %d passed, %d failed\n", suite.Name, passed, failed)
		totalPassed += passed
		totalFailed += failed
	}

	if fs.NArg() > 1 {
		fmt.Fprintf(stdout, "total: %d passed, %d failed\n", totalPassed, totalFailed)
	}
	if totalFailed > 0 {
		code = exitFailure
	}
	return code
}
