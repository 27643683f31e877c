package terminal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/stuck"
)

var errOutputLimit = errors.New("output limit exceeded")

// RunRequest is the body of POST /api/run.
type RunRequest struct {
	Source string `json:"source"`
	Input  string `json:"input,omitempty"`
}

// RunError describes why a program stopped.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// RunResponse is the result of a bounded run.
type RunResponse struct {
	Output     string    `json:"output"`
	Error      *RunError `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
}

// serverOptions are the interpreter options of playground runs. A server run
// is always step bounded.
func serverOptions() stuck.Options {
	opts := stuck.OptionsFromConfig()
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 50_000_000
	}
	return opts
}

// limitedWriter fails writes once limit bytes have been written.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func newLimitedWriter(w io.Writer, limit int64) *limitedWriter {
	return &limitedWriter{w: w, limit: limit}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limit <= 0 {
		return lw.w.Write(p)
	}
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return 0, errOutputLimit
	}
	if int64(len(p)) > remaining {
		n, err := lw.w.Write(p[:remaining])
		lw.written += int64(n)
		if err == nil {
			err = errOutputLimit
		}
		return n, err
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}

// toRunError converts an interpreter error into its wire form.
func toRunError(err error) *RunError {
	if err == nil {
		return nil
	}
	if se, ok := stuck.AsError(err); ok {
		return &RunError{Kind: string(se.Kind), Message: se.Message, Line: se.Line}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &RunError{Kind: "Timeout", Message: "program exceeded the time limit"}
	case errors.Is(err, context.Canceled):
		return &RunError{Kind: "Stopped", Message: "program was stopped"}
	}
	return &RunError{Kind: "Internal", Message: err.Error()}
}

// runProgram executes source with input under the [Server] limits.
func runProgram(ctx context.Context, source, input string) RunResponse {
	timeout := configuration.GetDuration("Server", "run_timeout", 10*time.Second)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var output bytes.Buffer
	out := newLimitedWriter(&output, configuration.GetInt64("Server", "max_output_bytes", 1<<20))

	start := time.Now()
	err := stuck.Execute(ctx, source, strings.NewReader(input), out, serverOptions())
	elapsed := time.Since(start)

	if err != nil {
		logger.Debug(logger.AreaTerminal, "Run finished with error after %v: %v", elapsed, err)
	}
	return RunResponse{
		Output:     output.String(),
		Error:      toRunError(err),
		DurationMS: elapsed.Milliseconds(),
	}
}
