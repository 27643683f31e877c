package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antibyte/stuck/pkg/configuration"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"FATAL":   ERROR,
		"bogus":   INFO,
	}
	for input, want := range tests {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLoggerWritesEnabledAreas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stuck.log")
	configuration.SetString("Debug", "enable_debug_logging", "true")
	configuration.SetString("Debug", "log_level", "DEBUG")
	configuration.SetString("Debug", "log_file", path)
	configuration.SetString("Debug", "log_interpreter", "true")
	configuration.SetString("Debug", "log_repl", "false")
	defer configuration.SetString("Debug", "enable_debug_logging", "false")

	l, err := newLogger()
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	previous := globalLogger
	globalLogger = l
	defer func() {
		Close()
		globalLogger = previous
	}()

	Debug(AreaInterpreter, "PC=%d", 7)
	Debug(AreaREPL, "should not appear")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log failed: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "[INTERPRETER] PC=7") {
		t.Errorf("log is missing the interpreter entry:\n%s", text)
	}
	if strings.Contains(text, "should not appear") {
		t.Error("disabled area was written")
	}

	EnableArea(AreaREPL)
	if !GetAreaStatus(AreaREPL) {
		t.Error("EnableArea did not switch the area on")
	}
	DisableArea(AreaREPL)
	if GetAreaStatus(AreaREPL) {
		t.Error("DisableArea did not switch the area off")
	}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")
	l := &Logger{
		logPath:       path,
		rotationCount: 2,
	}
	if err := l.openLogFile(); err != nil {
		t.Fatal(err)
	}
	defer func() { l.file.Close() }()

	l.file.WriteString("first\n")
	l.mutex.Lock()
	err := l.rotateLocked()
	l.mutex.Unlock()
	if err != nil {
		t.Fatalf("rotateLocked failed: %v", err)
	}

	data, err := os.ReadFile(path + ".1")
	if err != nil || string(data) != "first\n" {
		t.Errorf("rotated file = %q, %v", data, err)
	}
	if l.currentSize != 0 {
		t.Errorf("currentSize = %d after rotation", l.currentSize)
	}
}

func TestDisabledLoggerOpensNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.log")
	configuration.SetString("Debug", "enable_debug_logging", "false")
	configuration.SetString("Debug", "log_file", path)

	l, err := newLogger()
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	if l.file != nil {
		t.Error("disabled logger opened a file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("disabled logger created its file")
	}
}
