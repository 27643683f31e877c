package stuck

import (
	"io"
	"math"
	"strconv"
	"strings"
)

// Operator symbols used in diagnostics.
var symbols = map[OperationKind]string{
	OpPlus:           "+",
	OpMinus:          "-",
	OpMultiplication: "*",
	OpDivision:       "/",
	OpModulus:        "%",
	OpEqual:          "=",
	OpGreater:        ">",
	OpLess:           "<",
	OpNot:            "!",
	OpAnd:            "&",
	OpOr:             "|",
	OpAssignment:     "@",
	OpThen:           "then",
	OpDo:             "do",
	OpWrite:          "write",
	OpWriteln:        "writeln",
}

func (vm *VM) underflow(op *Operation, n int) *Error {
	operands := "one operand"
	if n == 2 {
		operands = "two operands"
	}
	return newError(KindStackUnderflow, op.Line, "`%s` operation requires %s", symbols[op.Kind], operands)
}

// popPair pops the right-hand operand first, then the left-hand one.
func (vm *VM) popPair(op *Operation) (left, right Value, err error) {
	if !vm.stack.HasItems(2) {
		return nil, nil, vm.underflow(op, 2)
	}
	right, _ = vm.stack.Pop()
	left, _ = vm.stack.Pop()
	return left, right, nil
}

func (vm *VM) handlePush(op *Operation) error {
	switch op.Kind {
	case OpTrue:
		vm.stack.Push(Boolean(true))
	case OpFalse:
		vm.stack.Push(Boolean(false))
	case OpNumber:
		n, ok := op.Operand.(Number)
		if !ok {
			return newError(KindInvalidType, op.Line, "number literal holds %s", Describe(op.Operand))
		}
		vm.stack.Push(n)
	case OpString:
		s, ok := op.Operand.(String)
		if !ok {
			return newError(KindInvalidType, op.Line, "string literal holds %s", Describe(op.Operand))
		}
		vm.stack.Push(s)
	}
	vm.pc++
	return nil
}

func (vm *VM) handleNop(op *Operation) error {
	vm.pc++
	return nil
}

// handleIdentifier binds the pending value to the name if there is one,
// otherwise reads the variable. Reading a function calls it.
func (vm *VM) handleIdentifier(op *Operation) error {
	name, ok := op.Operand.(Identifier)
	if !ok {
		return newError(KindInvalidType, op.Line, "identifier holds %s", Describe(op.Operand))
	}

	if n := len(vm.pending); n > 0 {
		v := vm.pending[n-1]
		vm.pending = vm.pending[:n-1]
		vm.variables[string(name)] = v
		debugLog("[VM] bound %s = %s", name, Describe(v))
		vm.pc++
		return nil
	}

	v, found := vm.variables[string(name)]
	if !found {
		return newError(KindUndefinedVariable, op.Line, "undefined variable `%s`", name)
	}

	switch v := v.(type) {
	case Number, String, Boolean:
		vm.stack.Push(v)
		vm.pc++
		return nil
	case Function:
		return vm.call(op, name, v)
	}
	return newError(KindInvalidVariableType, op.Line, "variable `%s` holds %s", name, Describe(v))
}

// call pushes a call record and enters the function body.
func (vm *VM) call(op *Operation, name Identifier, fn Function) error {
	if fn.Opening < 0 || fn.Opening >= len(vm.ops) || vm.ops[fn.Opening].Kind != OpFunction {
		return newError(KindInvalidReference, op.Line, "`%s` does not point at a function", name)
	}
	if vm.opts.MaxCallDepth > 0 && vm.callDepth >= vm.opts.MaxCallDepth {
		return newError(KindCallDepthExceeded, op.Line, "calling `%s` exceeds %d nested calls", name, vm.opts.MaxCallDepth)
	}
	vm.stack.Push(Function{Opening: fn.Opening, Return: vm.pc + 1})
	vm.callDepth++
	debugLog("[VM] call %s at %d, depth %d", name, fn.Opening, vm.callDepth)
	return vm.jump(op, fn.Opening+1)
}

func isCallRecord(v Value) bool {
	fn, ok := v.(Function)
	return ok && fn.Return != 0
}

// handleFunction runs both function markers. A resolved `fn` skips its body
// and remembers where it opened; `ret` either captures that definition as a
// value or returns from the innermost active call.
func (vm *VM) handleFunction(op *Operation) error {
	switch operand := op.Operand.(type) {
	case Reference:
		vm.callReturn = append(vm.callReturn, vm.pc)
		return vm.jump(op, int(operand))

	case nil:
		if n := len(vm.callReturn); n > 0 {
			opening := vm.callReturn[n-1]
			vm.callReturn = vm.callReturn[:n-1]
			vm.stack.Push(Function{Opening: opening})
			vm.pc++
			return nil
		}
		record, ok := vm.stack.removeTopmost(isCallRecord)
		if !ok {
			return newError(KindInvalidReference, op.Line, "`ret` outside of a function call")
		}
		vm.callDepth--
		debugLog("[VM] return to %d, depth %d", record.(Function).Return, vm.callDepth)
		return vm.jump(op, record.(Function).Return)
	}
	return newError(KindInvalidReference, op.Line, "`fn` has no matching `ret`")
}

func (vm *VM) handleAssignment(op *Operation) error {
	v, ok := vm.stack.Pop()
	if !ok {
		return vm.underflow(op, 1)
	}
	vm.pending = append(vm.pending, v)
	vm.pc++
	return nil
}

func (vm *VM) handleArithmetic(op *Operation) error {
	left, right, err := vm.popPair(op)
	if err != nil {
		return err
	}
	a, okA := left.(Number)
	b, okB := right.(Number)
	if !okA || !okB {
		return newError(KindInvalidType, op.Line, "`%s` expects two numbers, found %s and %s",
			symbols[op.Kind], Describe(left), Describe(right))
	}

	var result float64
	switch op.Kind {
	case OpPlus:
		result = float64(a) + float64(b)
	case OpMinus:
		result = float64(a) - float64(b)
	case OpMultiplication:
		result = float64(a) * float64(b)
	case OpDivision:
		result = float64(a) / float64(b)
	case OpModulus:
		result = math.Mod(float64(a), float64(b))
	}
	vm.stack.Push(Number(result))
	vm.pc++
	return nil
}

func (vm *VM) handleEqual(op *Operation) error {
	left, right, err := vm.popPair(op)
	if err != nil {
		return err
	}

	var equal bool
	switch l := left.(type) {
	case Number:
		r, ok := right.(Number)
		if !ok {
			return vm.mixedTypes(op, left, right)
		}
		equal = l == r
	case String:
		r, ok := right.(String)
		if !ok {
			return vm.mixedTypes(op, left, right)
		}
		equal = l == r
	case Boolean:
		r, ok := right.(Boolean)
		if !ok {
			return vm.mixedTypes(op, left, right)
		}
		equal = l == r
	case Function:
		r, ok := right.(Function)
		if !ok {
			return vm.mixedTypes(op, left, right)
		}
		equal = l.Opening == r.Opening
	default:
		return vm.mixedTypes(op, left, right)
	}
	vm.stack.Push(Boolean(equal))
	vm.pc++
	return nil
}

func (vm *VM) mixedTypes(op *Operation, left, right Value) *Error {
	return newError(KindInvalidType, op.Line, "can't compare %s with %s", Describe(left), Describe(right))
}

func (vm *VM) handleCompare(op *Operation) error {
	left, right, err := vm.popPair(op)
	if err != nil {
		return err
	}
	a, okA := left.(Number)
	b, okB := right.(Number)
	if !okA || !okB {
		return newError(KindInvalidType, op.Line, "`%s` expects two numbers, found %s and %s",
			symbols[op.Kind], Describe(left), Describe(right))
	}
	if op.Kind == OpGreater {
		vm.stack.Push(Boolean(a > b))
	} else {
		vm.stack.Push(Boolean(a < b))
	}
	vm.pc++
	return nil
}

func (vm *VM) handleNot(op *Operation) error {
	v, ok := vm.stack.Pop()
	if !ok {
		return vm.underflow(op, 1)
	}
	b, ok := v.(Boolean)
	if !ok {
		return newError(KindInvalidType, op.Line, "`!` expects a boolean, found %s", Describe(v))
	}
	vm.stack.Push(!b)
	vm.pc++
	return nil
}

func (vm *VM) handleLogic(op *Operation) error {
	left, right, err := vm.popPair(op)
	if err != nil {
		return err
	}
	a, okA := left.(Boolean)
	b, okB := right.(Boolean)
	if !okA || !okB {
		return newError(KindInvalidType, op.Line, "`%s` expects two booleans, found %s and %s",
			symbols[op.Kind], Describe(left), Describe(right))
	}
	if op.Kind == OpAnd {
		vm.stack.Push(a && b)
	} else {
		vm.stack.Push(a || b)
	}
	vm.pc++
	return nil
}

// handleConditional pops the condition of a `then` or `do` and leaves the
// block when it is false.
func (vm *VM) handleConditional(op *Operation) error {
	v, ok := vm.stack.Pop()
	if !ok {
		return vm.underflow(op, 1)
	}
	target, resolved := op.target()
	if !resolved {
		return newError(KindInvalidReference, op.Line, "`%s` has no matching `end`", symbols[op.Kind])
	}
	cond, ok := v.(Boolean)
	if !ok {
		return newError(KindInvalidType, op.Line, "`%s` expects a boolean, found %s", symbols[op.Kind], Describe(v))
	}
	if cond {
		vm.pc++
		return nil
	}
	return vm.jump(op, target)
}

func (vm *VM) handleElse(op *Operation) error {
	target, resolved := op.target()
	if !resolved {
		return newError(KindInvalidReference, op.Line, "`else` has no matching `end`")
	}
	return vm.jump(op, target)
}

func (vm *VM) handleEnd(op *Operation) error {
	if target, resolved := op.target(); resolved {
		return vm.jump(op, target)
	}
	vm.pc++
	return nil
}

// handleRead reads one line of input. Numeric text becomes a Number,
// anything else a String; end of input yields an empty String.
func (vm *VM) handleRead(op *Operation) error {
	if err := vm.out.Flush(); err != nil {
		return newError(KindIOError, op.Line, "can't write output: %v", err)
	}

	line, err := vm.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return newError(KindIOError, op.Line, "can't read input: %v", err)
	}
	text := strings.TrimSpace(line)

	if n, convErr := strconv.ParseFloat(text, 64); convErr == nil {
		vm.stack.Push(Number(n))
	} else {
		vm.stack.Push(String(text))
	}
	vm.pc++
	return nil
}

func (vm *VM) handleWrite(op *Operation) error {
	v, ok := vm.stack.Pop()
	if !ok {
		return vm.underflow(op, 1)
	}
	text, printable := Text(v)
	if !printable {
		return newError(KindInvalidType, op.Line, "can't print %s", Describe(v))
	}
	if _, err := vm.out.WriteString(text); err != nil {
		return newError(KindIOError, op.Line, "can't write output: %v", err)
	}
	if op.Kind == OpWriteln {
		if err := vm.out.WriteByte('\n'); err != nil {
			return newError(KindIOError, op.Line, "can't write output: %v", err)
		}
	}
	vm.pc++
	return nil
}
