// Package fixtures runs YAML conformance suites against the interpreter.
package fixtures

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/stuck/pkg/stuck"

	"gopkg.in/yaml.v3"
)

const defaultCaseTimeout = 5 * time.Second

// Suite is a named list of cases.
type Suite struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`

	Path string `yaml:"-"`
}

// Case runs Source with Input and expects Output, and Error when set.
type Case struct {
	Name    string         `yaml:"name"`
	Source  string         `yaml:"source"`
	Input   string         `yaml:"input,omitempty"`
	Output  string         `yaml:"output"`
	Error   *ExpectedError `yaml:"error,omitempty"`
	Options *CaseOptions   `yaml:"options,omitempty"`
}

// ExpectedError matches an interpreter error. An empty Message matches any message.
type ExpectedError struct {
	Kind    string `yaml:"kind"`
	Line    int    `yaml:"line"`
	Message string `yaml:"message,omitempty"`
}

// CaseOptions maps onto stuck.Options.
type CaseOptions struct {
	MaxCallDepth int   `yaml:"max_call_depth,omitempty"`
	MaxSteps     int64 `yaml:"max_steps,omitempty"`
	StrictBlocks bool  `yaml:"strict_blocks,omitempty"`
}

// Result is the outcome of one case.
type Result struct {
	Case    string
	Passed  bool
	Output  string
	Err     error
	Failure string
}

func (r Result) String() string {
	if r.Passed {
		return "PASS " + r.Case
	}
	return fmt.Sprintf("FAIL %s: %s", r.Case, r.Failure)
}

// Load reads a suite file. Unknown keys are errors.
func Load(path string) (*Suite, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("fixtures: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	suite, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("fixtures: parse %s: %w", abs, err)
	}
	suite.Path = abs
	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	return suite, nil
}

// Parse decodes a suite and checks that every case has a name and a source.
func Parse(r io.Reader) (*Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(suite.Cases))
	for i, c := range suite.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("case %d has no name", i+1)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate case %q", c.Name)
		}
		seen[c.Name] = true
		if c.Error != nil && c.Error.Kind == "" {
			return nil, fmt.Errorf("case %q: error without kind", c.Name)
		}
	}
	return &suite, nil
}

// Run executes every case in order.
func (s *Suite) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.Cases))
	for _, c := range s.Cases {
		results = append(results, c.Run(ctx))
	}
	return results
}

// Run executes the case and compares output and error.
func (c Case) Run(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, defaultCaseTimeout)
	defer cancel()

	var opts stuck.Options
	if c.Options != nil {
		opts = stuck.Options{
			MaxCallDepth: c.Options.MaxCallDepth,
			MaxSteps:     c.Options.MaxSteps,
			StrictBlocks: c.Options.StrictBlocks,
		}
	}

	var out bytes.Buffer
	err := stuck.Execute(ctx, c.Source, strings.NewReader(c.Input), &out, opts)
	result := Result{Case: c.Name, Output: out.String(), Err: err}

	if result.Output != c.Output {
		result.Failure = fmt.Sprintf("output %q, want %q", result.Output, c.Output)
		return result
	}
	if failure := c.checkError(err); failure != "" {
		result.Failure = failure
		return result
	}
	result.Passed = true
	return result
}

func (c Case) checkError(err error) string {
	if c.Error == nil {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}
	if err == nil {
		return fmt.Sprintf("expected %s in line %d, got no error", c.Error.Kind, c.Error.Line)
	}
	se, ok := stuck.AsError(err)
	if !ok {
		return fmt.Sprintf("expected %s, got %v", c.Error.Kind, err)
	}
	if string(se.Kind) != c.Error.Kind || se.Line != c.Error.Line {
		return fmt.Sprintf("expected %s in line %d, got %v", c.Error.Kind, c.Error.Line, err)
	}
	if c.Error.Message != "" && se.Message != c.Error.Message {
		return fmt.Sprintf("message %q, want %q", se.Message, c.Error.Message)
	}
	return ""
}

// Summary counts passed and failed results.
func Summary(results []Result) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}
