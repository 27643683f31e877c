package stuck

import (
	"strconv"
	"strings"
	"unicode"
)

// keywords maps reserved words to their operation kind.
var keywords = map[string]OperationKind{
	"true":    OpTrue,
	"false":   OpFalse,
	"read":    OpRead,
	"write":   OpWrite,
	"writeln": OpWriteln,
	"if":      OpIf,
	"then":    OpThen,
	"else":    OpElse,
	"while":   OpWhile,
	"do":      OpDo,
	"end":     OpEnd,
	"fn":      OpFunction,
	"ret":     OpFunction,
}

// Structural tags of the two function markers before cross-referencing.
const (
	markerOpen  = Identifier("fn")
	markerClose = Identifier("ret")
)

// operators maps single-character operators to their operation kind.
var operators = map[rune]OperationKind{
	'+': OpPlus,
	'-': OpMinus,
	'*': OpMultiplication,
	'/': OpDivision,
	'%': OpModulus,
	'=': OpEqual,
	'>': OpGreater,
	'<': OpLess,
	'!': OpNot,
	'&': OpAnd,
	'|': OpOr,
	'@': OpAssignment,
}

// Tokenizer turns source text into unresolved operations.
type Tokenizer struct {
	input []rune
	pos   int
	line  int
	ops   []Operation
}

// NewTokenizer creates a tokenizer over source.
func NewTokenizer(source string) *Tokenizer {
	return &Tokenizer{
		input: []rune(source),
		line:  1,
	}
}

// Tokenize scans source in one call.
func Tokenize(source string) ([]Operation, error) {
	return NewTokenizer(source).Scan()
}

// isSpace reports whether ch separates tokens without producing one.
func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\r'
}

// isDigit reports whether ch is an ASCII digit.
func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}

func (t *Tokenizer) peek() (rune, bool) {
	if t.pos >= len(t.input) {
		return 0, false
	}
	return t.input[t.pos], true
}

func (t *Tokenizer) emit(kind OperationKind, operand Value) {
	t.ops = append(t.ops, Operation{Kind: kind, Operand: operand, Line: t.line})
}

// Scan runs the tokenizer to the end of the input. The first lexical error
// stops the scan.
func (t *Tokenizer) Scan() ([]Operation, error) {
	for {
		ch, ok := t.peek()
		if !ok {
			break
		}

		switch {
		case isSpace(ch):
			t.pos++
		case ch == '\n':
			t.pos++
			t.line++
		case ch == '#':
			t.skipComment()
		case ch == '"':
			t.pos++
			if err := t.scanString(); err != nil {
				return nil, err
			}
		case isDigit(ch):
			if err := t.scanNumber(); err != nil {
				return nil, err
			}
		case isIdentStart(ch):
			t.scanIdentifier()
		default:
			kind, isOp := operators[ch]
			if !isOp {
				return nil, newError(KindInvalidToken, t.line, "invalid token `%c`", ch)
			}
			t.pos++
			t.emit(kind, nil)
		}
	}

	debugLog("tokenized %d operations over %d lines", len(t.ops), t.line)
	return t.ops, nil
}

// skipComment discards everything up to, not including, the newline.
func (t *Tokenizer) skipComment() {
	for {
		ch, ok := t.peek()
		if !ok || ch == '\n' {
			return
		}
		t.pos++
	}
}

func (t *Tokenizer) scanString() error {
	var sb strings.Builder
	for {
		ch, ok := t.peek()
		if !ok || ch == '\n' {
			return newError(KindUnterminatedString, t.line, "unterminated string")
		}
		t.pos++
		if ch == '"' {
			break
		}
		if ch == '\\' {
			if next, ok := t.peek(); ok {
				switch next {
				case 'n':
					t.pos++
					sb.WriteRune('\n')
					continue
				case 't':
					t.pos++
					sb.WriteRune('\t')
					continue
				}
			}
		}
		sb.WriteRune(ch)
	}
	t.emit(OpString, String(sb.String()))
	return nil
}

func (t *Tokenizer) scanNumber() error {
	start := t.pos
	dots := 0
	for {
		ch, ok := t.peek()
		if !ok || !(isDigit(ch) || ch == '.') {
			break
		}
		if ch == '.' {
			dots++
		}
		t.pos++
	}

	text := string(t.input[start:t.pos])
	if dots > 1 {
		return newError(KindInvalidNumber, t.line, "can't convert `%s` to a number", text)
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return newError(KindInvalidNumber, t.line, "can't convert `%s` to a number", text)
	}
	t.emit(OpNumber, Number(n))
	return nil
}

func (t *Tokenizer) scanIdentifier() {
	start := t.pos
	for {
		ch, ok := t.peek()
		if !ok || !isIdentPart(ch) {
			break
		}
		t.pos++
	}

	word := string(t.input[start:t.pos])
	if kind, isKeyword := keywords[word]; isKeyword {
		if kind == OpFunction {
			// Both markers share a kind; the word tags which one this is
			// until the cross-referencer resolves it.
			t.emit(kind, Identifier(word))
			return
		}
		t.emit(kind, nil)
		return
	}
	t.emit(OpIdentifier, Identifier(word))
}
