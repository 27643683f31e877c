package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antibyte/stuck/pkg/stuck"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommandLine(t *testing.T) {
	program := writeFile(t, "sum.stuck", "read read + writeln")
	broken := writeFile(t, "broken.stuck", "1\n+")

	tests := []struct {
		name       string
		args       []string
		stdin      string
		wantCode   int
		wantOut    string
		wantErrSub string
	}{
		{"interprets a file", []string{program}, "2\n3\n", exitOK, "5\n", ""},
		{"interprets with -i", []string{program, "-i"}, "40\n2\n", exitOK, "42\n", ""},
		{"program error", []string{broken}, "", exitFailure, "", "StackUnderflow: "},
		{"error line", []string{broken}, "", exitFailure, "", "in line 2."},
		{"missing file", []string{filepath.Join(t.TempDir(), "nope.stuck")}, "", exitSourceRead, "", "Error: "},
		{"compile flag", []string{program, "-c"}, "", exitFailure, "", "compilation is not supported"},
		{"invalid flag", []string{program, "-x"}, "", exitFailure, usageText, "invalid flag `-x`"},
		{"too many arguments", []string{program, "-i", "extra"}, "", exitFailure, usageText, "invalid subcommands"},
		{"help", []string{"help"}, "", exitOK, usageText, ""},
		{"check without suites", []string{"check"}, "", exitFailure, "", "usage:"},
		{"watch without file", []string{"watch"}, "", exitFailure, "", "usage:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, strings.NewReader(tt.stdin), &stdout, &stderr)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr %q)", code, tt.wantCode, stderr.String())
			}
			if stdout.String() != tt.wantOut {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantOut)
			}
			if !strings.Contains(stderr.String(), tt.wantErrSub) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.wantErrSub)
			}
		})
	}
}

func TestCheckCommand(t *testing.T) {
	passing := writeFile(t, "ok.yaml", `name: ok
cases:
  - name: addition
    source: "2 3 + writeln"
    output: "5\n"
`)
	failing := writeFile(t, "bad.yaml", `name: bad
cases:
  - name: wrong output
    source: "1 writeln"
    output: "2\n"
`)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"check", "-v", passing}, nil, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "PASS addition") || !strings.Contains(stdout.String(), "ok: 1 passed, 0 failed") {
		t.Errorf("unexpected report %q", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"check", passing, failing}, nil, &stdout, &stderr); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	report := stdout.String()
	if strings.Contains(report, "PASS") {
		t.Errorf("passing cases should be quiet without -v: %q", report)
	}
	if !strings.Contains(report, "FAIL wrong output") || !strings.Contains(report, "total: 1 passed, 1 failed") {
		t.Errorf("unexpected report %q", report)
	}

	stderr.Reset()
	if code := run([]string{"check", filepath.Join(t.TempDir(), "missing.yaml")}, nil, &stdout, &stderr); code != exitFailure {
		t.Errorf("missing suite: exit code = %d", code)
	}
}

func TestConformanceSuite(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"check", "pkg/fixtures/testdata/conformance.yaml"}, nil, &stdout, &stderr); code != exitOK {
		t.Fatalf("conformance suite failed:\n%s%s", stdout.String(), stderr.String())
	}
}

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"1 2 + writeln", false},
		{"while i 5 < do", true},
		{"while i 5 < do\ni 1 + @ i\nend", false},
		{"fn x 2 *", true},
		{"if true then", true},
		{`"unterminated`, false},
		{"end", false},
		{":quit", false},
	}
	for _, tt := range tests {
		if got := needsMore(tt.source); got != tt.want {
			t.Errorf("needsMore(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestReplCommands(t *testing.T) {
	vm := stuck.NewVM(nil, nil, stuck.Options{})
	program, err := stuck.Compile(`1 "two"`)
	if err != nil {
		t.Fatal(err)
	}
	vm.Extend(program)
	if err := vm.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	replCommand(vm, ":stack", &out)
	if out.String() != "String(\"two\")\nNumber(1)\n" {
		t.Errorf(":stack printed %q", out.String())
	}

	out.Reset()
	replCommand(vm, ":reset", &out)
	replCommand(vm, ":stack", &out)
	if !strings.HasSuffix(out.String(), "(empty)\n") {
		t.Errorf("stack not cleared: %q", out.String())
	}

	out.Reset()
	replCommand(vm, ":nope", &out)
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("unexpected reply %q", out.String())
	}
}

// syncBuffer is written by the watch loop while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("output %q never contained %q", b.String(), want)
}

func TestWatchReruns(t *testing.T) {
	path := writeFile(t, "watched.stuck", `"first" writeln`)

	ctx, cancel := context.WithCancel(context.Background())
	var stdout, stderr syncBuffer
	done := make(chan error, 1)
	go func() { done <- watchFile(ctx, path, &stdout, &stderr) }()

	waitFor(t, &stdout, "first\n")
	// Let the watcher settle before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`"second" writeln`), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &stdout, "changed ---\nsecond\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchFile returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchFile did not stop")
	}
}

func TestWatchMissingFile(t *testing.T) {
	var stdout, stderr syncBuffer
	if err := watchFile(context.Background(), filepath.Join(t.TempDir(), "gone.stuck"), &stdout, &stderr); err == nil {
		t.Error("expected an error for a missing file")
	}
}
