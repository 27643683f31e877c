package terminal

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antibyte/stuck/pkg/configuration"
)

// SecurityValidator checks client supplied values before they reach the interpreter or the database.
type SecurityValidator struct {
	maxSourceBytes int
	maxInputBytes  int
}

func NewSecurityValidator() *SecurityValidator {
	return &SecurityValidator{
		maxSourceBytes: configuration.GetInt("Server", "max_source_bytes", 65536),
		maxInputBytes:  4096,
	}
}

// ValidateSource checks a program text.
func (sv *SecurityValidator) ValidateSource(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("source is empty")
	}
	if sv.maxSourceBytes > 0 && len(source) > sv.maxSourceBytes {
		return fmt.Errorf("source too long: maximum %d bytes allowed", sv.maxSourceBytes)
	}
	if !utf8.ValidString(source) {
		return fmt.Errorf("source is not valid UTF-8")
	}
	if strings.ContainsRune(source, 0) {
		return fmt.Errorf("source contains NUL bytes")
	}
	return nil
}

// ValidateInput checks one line of program input.
func (sv *SecurityValidator) ValidateInput(line string) error {
	if len(line) > sv.maxInputBytes {
		return fmt.Errorf("input line too long: maximum %d bytes allowed", sv.maxInputBytes)
	}
	if !utf8.ValidString(line) {
		return fmt.Errorf("input is not valid UTF-8")
	}
	if strings.ContainsAny(line, "\n\r\x00") {
		return fmt.Errorf("input must be a single line")
	}
	return nil
}

// ValidateProgramName checks the name a program is stored under.
func (sv *SecurityValidator) ValidateProgramName(name string) error {
	if name == "" {
		return fmt.Errorf("program name is empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("program name too long")
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-_. ", r) {
			return fmt.Errorf("program name contains invalid characters")
		}
	}
	return nil
}

// ValidateSessionID checks a session id
func (sv *SecurityValidator) ValidateSessionID(sessionID string) error {
	if len(sessionID) == 0 {
		return fmt.Errorf("session ID is empty")
	}

	if len(sessionID) > 128 {
		return fmt.Errorf("session ID too long")
	}

	for _, r := range sessionID {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return fmt.Errorf("session ID contains invalid characters")
		}
	}

	return nil
}
