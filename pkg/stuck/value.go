// Package stuck implements the stuck stack language: a tokenizer, a
// cross-referencing pass that resolves block jumps, and a stack VM.
package stuck

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a runtime value. The set of implementations is closed: Identifier,
// Number, String, Boolean, Function and Reference.
type Value interface {
	// Tag names the variant, e.g. "Number".
	Tag() string
	value()
}

// Identifier is the operand of an identifier operation.
type Identifier string

// Number is the only numeric type of the language.
type Number float64

// String is a text value.
type String string

// Boolean is true or false.
type Boolean bool

// Function is a first-class function value. Opening is the index of its
// `fn` marker; Return is zero for a plain function value and the return
// address for a call record pushed by an invocation.
type Function struct {
	Opening int
	Return  int
}

// Reference is a resolved jump target. It only appears as an operand.
type Reference int

func (Identifier) Tag() string { return "Identifier" }
func (Number) Tag() string     { return "Number" }
func (String) Tag() string     { return "String" }
func (Boolean) Tag() string    { return "Boolean" }
func (Function) Tag() string   { return "Function" }
func (Reference) Tag() string  { return "Reference" }

func (Identifier) value() {}
func (Number) value()     {}
func (String) value()     {}
func (Boolean) value()    {}
func (Function) value()   {}
func (Reference) value()  {}

// Describe renders a value with its tag, for diagnostics.
func Describe(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nothing"
	case Identifier:
		return fmt.Sprintf("Identifier(%s)", string(v))
	case Number:
		return fmt.Sprintf("Number(%s)", FormatNumber(float64(v)))
	case String:
		return fmt.Sprintf("String(%q)", string(v))
	case Boolean:
		if v {
			return "Boolean(True)"
		}
		return "Boolean(False)"
	case Function:
		return fmt.Sprintf("Function(%d, %d)", v.Opening, v.Return)
	case Reference:
		return fmt.Sprintf("Reference(%d)", int(v))
	}
	return fmt.Sprintf("%v", v)
}

// Text returns the printed form of a printable value. ok is false for
// identifiers, functions and references.
func Text(v Value) (text string, ok bool) {
	switch v := v.(type) {
	case Number:
		return FormatNumber(float64(v)), true
	case String:
		return string(v), true
	case Boolean:
		if v {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

// FormatNumber prints n in its shortest round-trip form: 5, 2.5, inf, NaN.
func FormatNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case math.IsNaN(n):
		return "NaN"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
