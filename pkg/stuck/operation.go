package stuck

import "fmt"

// OperationKind identifies what an operation does.
type OperationKind byte

const (
	// Literal pushes
	OpNumber OperationKind = iota
	OpString
	OpTrue
	OpFalse

	// Names and functions
	OpIdentifier // read or bind
	OpFunction   // `fn` (definition) and `ret` (capture/return)
	OpAssignment // `@`

	// Arithmetic
	OpPlus
	OpMinus
	OpMultiplication
	OpDivision
	OpModulus

	// Comparison
	OpEqual
	OpGreater
	OpLess

	// Boolean algebra
	OpNot
	OpAnd
	OpOr

	// Control markers
	OpIf
	OpThen
	OpElse
	OpWhile
	OpDo
	OpEnd

	// I/O
	OpRead
	OpWrite
	OpWriteln

	opKindCount
)

var kindNames = [...]string{
	OpNumber:         "Number",
	OpString:         "String",
	OpTrue:           "True",
	OpFalse:          "False",
	OpIdentifier:     "Identifier",
	OpFunction:       "Function",
	OpAssignment:     "Assignment",
	OpPlus:           "Plus",
	OpMinus:          "Minus",
	OpMultiplication: "Multiplication",
	OpDivision:       "Division",
	OpModulus:        "Modulus",
	OpEqual:          "Equal",
	OpGreater:        "Greater",
	OpLess:           "Less",
	OpNot:            "Not",
	OpAnd:            "And",
	OpOr:             "Or",
	OpIf:             "If",
	OpThen:           "Then",
	OpElse:           "Else",
	OpWhile:          "While",
	OpDo:             "Do",
	OpEnd:            "End",
	OpRead:           "Read",
	OpWrite:          "Write",
	OpWriteln:        "Writeln",
}

func (k OperationKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("OperationKind(%d)", int(k))
}

// Operation is one decoded instruction. Operand is nil when absent.
type Operation struct {
	Kind    OperationKind
	Operand Value
	Line    int
}

// String returns a readable representation of the operation for debugging.
func (op Operation) String() string {
	if op.Operand == nil {
		return fmt.Sprintf("%s@%d", op.Kind, op.Line)
	}
	return fmt.Sprintf("%s %s@%d", op.Kind, Describe(op.Operand), op.Line)
}

// target returns the resolved jump index of a control-flow operation.
func (op Operation) target() (int, bool) {
	ref, ok := op.Operand.(Reference)
	return int(ref), ok
}
