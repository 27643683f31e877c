package stuck

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Options bounds an execution. Zero values mean unbounded.
type Options struct {
	MaxCallDepth int   // active function calls
	MaxSteps     int64 // dispatched operations
	StrictBlocks bool  // reject programs with unclosed blocks
}

// VM executes a resolved program. A VM is single-threaded and owns all of
// its state; build a new one (or Reset) per execution.
type VM struct {
	program    *Program
	ops        []Operation
	pc         int              // instruction pointer
	stack      *Stack           // value stack
	variables  map[string]Value // flat variable table
	pending    []Value          // pending-bind register
	callReturn []int            // open `fn` definitions awaiting their `ret`
	callDepth  int
	steps      int64
	in         *bufio.Reader
	out        *bufio.Writer
	opts       Options
	running    bool
	ctx        context.Context
}

// NewVM creates a VM reading `read` input from in and writing output to
// out. A nil in behaves as an empty input.
func NewVM(in io.Reader, out io.Writer, opts Options) *VM {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}
	return &VM{
		stack:      NewStack(64),
		variables:  make(map[string]Value),
		pending:    make([]Value, 0, 1),
		callReturn: make([]int, 0, 4),
		in:         bufio.NewReader(in),
		out:        bufio.NewWriter(out),
		opts:       opts,
	}
}

// LoadProgram loads a compiled program and resets the VM.
func (vm *VM) LoadProgram(p *Program) {
	vm.Reset()
	vm.program = p
	if p != nil {
		vm.ops = p.Operations
	}
}

// Extend appends p to the loaded program and points the instruction pointer
// at its first operation. The stack and variables are kept, and function
// values bound earlier stay valid since existing operations keep their
// indices.
func (vm *VM) Extend(p *Program) {
	base := len(vm.ops)
	ops := make([]Operation, 0, base+len(p.Operations))
	ops = append(ops, vm.ops...)
	for _, op := range p.Operations {
		if ref, ok := op.Operand.(Reference); ok {
			op.Operand = ref + Reference(base)
		}
		ops = append(ops, op)
	}
	unclosed := make([]int, len(p.Unclosed))
	for i, idx := range p.Unclosed {
		unclosed[i] = idx + base
	}

	vm.program = &Program{Operations: ops, Unclosed: unclosed}
	vm.ops = ops
	vm.pc = base
	vm.pending = vm.pending[:0]
	vm.callReturn = vm.callReturn[:0]
	vm.callDepth = 0
	vm.steps = 0
}

// Reset clears all execution state but keeps the loaded program.
func (vm *VM) Reset() {
	vm.pc = 0
	vm.stack.Clear()
	vm.variables = make(map[string]Value)
	vm.pending = vm.pending[:0]
	vm.callReturn = vm.callReturn[:0]
	vm.callDepth = 0
	vm.steps = 0
	vm.running = false
}

// Run executes the loaded program until the instruction pointer passes the
// last operation, the first error, or ctx is done. Buffered output is
// flushed before Run returns.
func (vm *VM) Run(ctx context.Context) (err error) {
	if vm.program == nil {
		return ErrNoProgram
	}
	if vm.running {
		return ErrProgramRunning
	}
	if vm.opts.StrictBlocks {
		if err := vm.program.CheckClosed(); err != nil {
			return err
		}
	}

	vm.ctx = ctx
	vm.running = true
	defer func() {
		vm.running = false
		if flushErr := vm.out.Flush(); flushErr != nil && err == nil {
			err = newError(KindIOError, vm.lastLine(), "can't write output: %v", flushErr)
		}
	}()

	debugLog("[VM] starting execution with %d operations", len(vm.ops))

	for vm.pc < len(vm.ops) {
		select {
		case <-ctx.Done():
			debugLog("[VM] context cancelled at PC=%d", vm.pc)
			return ctx.Err()
		default:
		}

		vm.steps++
		if vm.opts.MaxSteps > 0 && vm.steps > vm.opts.MaxSteps {
			return newError(KindStepLimitExceeded, vm.ops[vm.pc].Line,
				"execution exceeded %d steps", vm.opts.MaxSteps)
		}

		if err := vm.executeOperation(); err != nil {
			debugLog("[VM] execution error at PC=%d: %v", vm.pc, err)
			return err
		}
	}

	debugLog("[VM] execution finished after %d steps, stack size %d", vm.steps, vm.stack.Size())
	return nil
}

// operationHandler executes one operation and sets the instruction pointer.
type operationHandler func(*VM, *Operation) error

// handlers is the dispatch table, indexed by OperationKind.
var handlers = [...]operationHandler{
	OpNumber:         (*VM).handlePush,
	OpString:         (*VM).handlePush,
	OpTrue:           (*VM).handlePush,
	OpFalse:          (*VM).handlePush,
	OpIdentifier:     (*VM).handleIdentifier,
	OpFunction:       (*VM).handleFunction,
	OpAssignment:     (*VM).handleAssignment,
	OpPlus:           (*VM).handleArithmetic,
	OpMinus:          (*VM).handleArithmetic,
	OpMultiplication: (*VM).handleArithmetic,
	OpDivision:       (*VM).handleArithmetic,
	OpModulus:        (*VM).handleArithmetic,
	OpEqual:          (*VM).handleEqual,
	OpGreater:        (*VM).handleCompare,
	OpLess:           (*VM).handleCompare,
	OpNot:            (*VM).handleNot,
	OpAnd:            (*VM).handleLogic,
	OpOr:             (*VM).handleLogic,
	OpIf:             (*VM).handleNop,
	OpThen:           (*VM).handleConditional,
	OpElse:           (*VM).handleElse,
	OpWhile:          (*VM).handleNop,
	OpDo:             (*VM).handleConditional,
	OpEnd:            (*VM).handleEnd,
	OpRead:           (*VM).handleRead,
	OpWrite:          (*VM).handleWrite,
	OpWriteln:        (*VM).handleWrite,
}

func (vm *VM) executeOperation() error {
	op := &vm.ops[vm.pc]
	debugLog("[VM] PC=%d: %s", vm.pc, op)

	if int(op.Kind) >= len(handlers) || handlers[op.Kind] == nil {
		return newError(KindInvalidType, op.Line, "unknown operation `%s`", op.Kind)
	}
	return handlers[op.Kind](vm, op)
}

// jump moves the instruction pointer to target. The end of the program is
// a valid target.
func (vm *VM) jump(op *Operation, target int) error {
	if target < 0 || target > len(vm.ops) {
		return newError(KindInvalidReference, op.Line, "`%s` jumps outside the program (%d)", op.Kind, target)
	}
	vm.pc = target
	return nil
}

func (vm *VM) lastLine() int {
	if len(vm.ops) == 0 {
		return 0
	}
	if vm.pc < len(vm.ops) {
		return vm.ops[vm.pc].Line
	}
	return vm.ops[len(vm.ops)-1].Line
}

// Stack returns a copy of the value stack, bottom first.
func (vm *VM) Stack() []Value {
	return vm.stack.Values()
}

// Variable looks up a bound variable.
func (vm *VM) Variable(name string) (Value, bool) {
	v, ok := vm.variables[name]
	return v, ok
}

// Execute compiles source and runs it on a fresh VM.
func Execute(ctx context.Context, source string, in io.Reader, out io.Writer, opts Options) error {
	program, err := Compile(source)
	if err != nil {
		return err
	}
	vm := NewVM(in, out, opts)
	vm.LoadProgram(program)
	return vm.Run(ctx)
}
