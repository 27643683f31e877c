package stuck

import (
	"errors"
	"fmt"
)

// Package-level failures that are not tied to a source line.
var (
	ErrNoProgram      = errors.New("no program loaded")
	ErrProgramRunning = errors.New("program already running")
)

// ErrorKind classifies a language error. The string value is what gets
// printed in front of the message.
type ErrorKind string

const (
	// Runtime
	KindStackUnderflow      ErrorKind = "StackUnderflow"
	KindInvalidType         ErrorKind = "InvalidType"
	KindInvalidReference    ErrorKind = "InvalidReference"
	KindUndefinedVariable   ErrorKind = "UndefinedVariable"
	KindInvalidVariableType ErrorKind = "InvalidVariableType"

	// Tokenizer
	KindUnterminatedString ErrorKind = "UnterminatedString"
	KindInvalidNumber      ErrorKind = "InvalidNumber"
	KindInvalidToken       ErrorKind = "InvalidToken"

	// Cross-referencer
	KindPendingBlock         ErrorKind = "PendingBlock"
	KindUnexpectedBlockClose ErrorKind = "UnexpectedBlockClose"

	// Host limits and I/O
	KindIOError           ErrorKind = "IOError"
	KindCallDepthExceeded ErrorKind = "CallDepthExceeded"
	KindStepLimitExceeded ErrorKind = "StepLimitExceeded"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrStackUnderflow       = &Error{Kind: KindStackUnderflow}
	ErrInvalidType          = &Error{Kind: KindInvalidType}
	ErrInvalidReference     = &Error{Kind: KindInvalidReference}
	ErrUndefinedVariable    = &Error{Kind: KindUndefinedVariable}
	ErrInvalidVariableType  = &Error{Kind: KindInvalidVariableType}
	ErrUnterminatedString   = &Error{Kind: KindUnterminatedString}
	ErrInvalidNumber        = &Error{Kind: KindInvalidNumber}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
	ErrPendingBlock         = &Error{Kind: KindPendingBlock}
	ErrUnexpectedBlockClose = &Error{Kind: KindUnexpectedBlockClose}
)

// Error is a fatal language error attributed to a 1-based source line.
type Error struct {
	Kind    ErrorKind
	Message string
	Line    int
}

func newError(kind ErrorKind, line int, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	}
}

// Error renders `<Kind>: <message> in line <N>.`
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s in line %d.", e.Kind, e.Message, e.Line)
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// AsError extracts a language error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
