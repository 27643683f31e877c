package stuck

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// runSource executes source on a fresh VM and returns its output and stack.
func runSource(t *testing.T, source, input string, opts Options) (string, []Value, error) {
	t.Helper()
	program, err := Compile(source)
	if err != nil {
		return "", nil, err
	}
	var out strings.Builder
	vm := NewVM(strings.NewReader(input), &out, opts)
	vm.LoadProgram(program)
	err = vm.Run(context.Background())
	return out.String(), vm.Stack(), err
}

func TestRunOutput(t *testing.T) {
	tests := []struct {
		name   string
		source string
		input  string
		want   string
	}{
		{"addition", "2 3 + writeln", "", "5\n"},
		{"bind then read", "5 @ x x x * writeln", "", "25\n"},
		{
			name: "while counts to four",
			source: `0 @ i
				while i 5 < do
					i writeln
					i 1 + @ i
				end`,
			want: "0\n1\n2\n3\n4\n",
		},
		{"if takes then branch", `if 1 2 < then "yes" else "no" end writeln`, "", "yes\n"},
		{"if takes else branch", `if 2 1 < then "yes" else "no" end writeln`, "", "no\n"},
		{"if without else skips", `if false then "skipped" writeln end "after" writeln`, "", "after\n"},
		{"write has no newline", `"a" write 1 write true writeln`, "", "a1true\n"},
		{"fractions", "1 4 / writeln", "", "0.25\n"},
		{"division by zero", "1 0 / writeln 0 0 / writeln", "", "inf\nNaN\n"},
		{"negative infinity", "0 1 - 0 / writeln", "", "-inf\n"},
		{"string equality", `"a" "a" = writeln "a" "b" = writeln`, "", "true\nfalse\n"},
		{"boolean algebra", "true false & writeln true false | writeln false ! writeln", "", "false\ntrue\ntrue\n"},
		{"rebinding overwrites", `1 @ x "two" @ x x writeln`, "", "two\n"},
		{"read number", "read 1 + writeln", "41\n", "42\n"},
		{"read text", "read writeln", "  hello world \n", "hello world\n"},
		{"read order", "read read writeln writeln", "first\nsecond\n", "second\nfirst\n"},
		{"read at eof", `read "" = writeln`, "", "true\n"},
		{"read without trailing newline", "read writeln", "7", "7\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := runSource(t, tt.source, tt.input, Options{})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArithmeticOrder(t *testing.T) {
	tests := []struct {
		source string
		want   Value
	}{
		{"2 3 +", Number(5)},
		{"10 4 -", Number(6)},
		{"10 4 *", Number(40)},
		{"10 4 /", Number(2.5)},
		{"10 4 %", Number(2)},
		{"3 5 >", Boolean(false)},
		{"3 5 <", Boolean(true)},
		{"3 3 =", Boolean(true)},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, stack, err := runSource(t, tt.source, "", Options{})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if want := []Value{tt.want}; !reflect.DeepEqual(stack, want) {
				t.Errorf("stack = %v, want %v", stack, want)
			}
		})
	}
}

func TestEmptyProgram(t *testing.T) {
	out, stack, err := runSource(t, "  # nothing here\n", "", Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "" {
		t.Errorf("output = %q, want none", out)
	}
	if len(stack) != 0 {
		t.Errorf("stack = %v, want empty", stack)
	}
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "call twice",
			source: `fn "hi" writeln ret @ greet greet greet`,
			want:   "hi\nhi\n",
		},
		{
			name:   "definition does not run the body",
			source: `fn "body" writeln ret "after" writeln`,
			want:   "after\n",
		},
		{
			name:   "results stay on the stack",
			source: "fn x 2 * ret @ double 21 @ x double writeln",
			want:   "42\n",
		},
		{
			name: "recursion through a variable",
			source: `3 @ n
				fn
					if n 0 > then
						n writeln
						n 1 - @ n
						countdown
					end
				ret @ countdown
				countdown "done" writeln`,
			want: "3\n2\n1\ndone\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := runSource(t, tt.source, "", Options{})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFunctionValueEquality(t *testing.T) {
	program, err := Compile("fn ret fn ret")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	vm := NewVM(nil, nil, Options{})
	vm.LoadProgram(program)
	if err := vm.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := []Value{Function{Opening: 0}, Function{Opening: 2}}
	if !reflect.DeepEqual(vm.Stack(), want) {
		t.Fatalf("stack = %v, want %v", vm.Stack(), want)
	}

	vm.stack.Push(Function{Opening: 0})
	vm.stack.Push(Function{Opening: 0, Return: 9})
	op := Operation{Kind: OpEqual, Line: 1}
	if err := vm.handleEqual(&op); err != nil {
		t.Fatalf("handleEqual failed: %v", err)
	}
	if top, _ := vm.stack.Peek(); top != Boolean(true) {
		t.Errorf("same definition compared %s, want Boolean(True)", Describe(top))
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		want    *Error
		line    int
		message string
	}{
		{"undefined variable", "1 writeln\ny writeln", ErrUndefinedVariable, 2, "undefined variable `y`"},
		{"plus underflow", "1 +", ErrStackUnderflow, 1, "`+` operation requires two operands"},
		{"assignment underflow", "@ x", ErrStackUnderflow, 1, "`@` operation requires one operand"},
		{"writeln underflow", "\n\nwriteln", ErrStackUnderflow, 3, "`writeln` operation requires one operand"},
		{"then underflow", "if then end", ErrStackUnderflow, 1, "`then` operation requires one operand"},
		{"number plus string", `1 "a" +`, ErrInvalidType, 1, "`+` expects two numbers, found Number(1) and String(\"a\")"},
		{"compare strings", `"a" "b" <`, ErrInvalidType, 1, ""},
		{"mixed equality", `1 "1" =`, ErrInvalidType, 1, ""},
		{"not a number", "1 !", ErrInvalidType, 1, ""},
		{"and with number", "true 1 &", ErrInvalidType, 1, ""},
		{"number condition", "if 1 then end", ErrInvalidType, 1, ""},
		{"loop condition", "while 0 do end", ErrInvalidType, 1, ""},
		{"print a function", "fn ret writeln", ErrInvalidType, 1, "can't print Function(0, 0)"},
		{"unclosed then", "if true then 1", ErrInvalidReference, 1, ""},
		{"unclosed fn", "fn 1 2", ErrInvalidReference, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runSource(t, tt.source, "", Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want.Kind, err)
			}
			se, _ := AsError(err)
			if se.Line != tt.line {
				t.Errorf("line = %d, want %d", se.Line, tt.line)
			}
			if tt.message != "" && se.Message != tt.message {
				t.Errorf("message = %q, want %q", se.Message, tt.message)
			}
		})
	}
}

func TestErrorHaltsBeforeLaterOutput(t *testing.T) {
	out, _, err := runSource(t, `"before" writeln missing "after" writeln`, "", Options{})
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("expected UndefinedVariable, got %v", err)
	}
	if out != "before\n" {
		t.Errorf("output = %q, want %q", out, "before\n")
	}
	if got, want := err.Error(), "UndefinedVariable: undefined variable `missing` in line 1."; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestInvalidReferenceAtRuntime(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
	}{
		{"else without target", []Operation{{Kind: OpElse, Line: 1}}},
		{"do without target", []Operation{{Kind: OpTrue, Line: 1}, {Kind: OpDo, Line: 1}}},
		{"ret outside a call", []Operation{{Kind: OpFunction, Line: 1}}},
		{"jump past the end", []Operation{{Kind: OpEnd, Operand: Reference(5), Line: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := NewVM(nil, nil, Options{})
			vm.LoadProgram(&Program{Operations: tt.ops})
			if err := vm.Run(context.Background()); !errors.Is(err, ErrInvalidReference) {
				t.Errorf("expected InvalidReference, got %v", err)
			}
		})
	}
}

func TestInvalidVariableType(t *testing.T) {
	program, err := Compile("x")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	vm := NewVM(nil, nil, Options{})
	vm.LoadProgram(program)
	vm.variables["x"] = Reference(3)

	if err := vm.Run(context.Background()); !errors.Is(err, ErrInvalidVariableType) {
		t.Errorf("expected InvalidVariableType, got %v", err)
	}
}

func TestVariablesAfterRun(t *testing.T) {
	program, err := Compile(`2 @ a "b" @ b`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	vm := NewVM(nil, nil, Options{})
	vm.LoadProgram(program)
	if err := vm.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if v, ok := vm.Variable("a"); !ok || v != Number(2) {
		t.Errorf("a = %s, want Number(2)", Describe(v))
	}
	if v, ok := vm.Variable("b"); !ok || v != String("b") {
		t.Errorf("b = %s, want String(\"b\")", Describe(v))
	}
	if len(vm.Stack()) != 0 {
		t.Errorf("stack = %v, want empty", vm.Stack())
	}
}

func TestLimits(t *testing.T) {
	t.Run("call depth", func(t *testing.T) {
		_, _, err := runSource(t, "fn f ret @ f f", "", Options{MaxCallDepth: 16})
		se, ok := AsError(err)
		if !ok || se.Kind != KindCallDepthExceeded {
			t.Fatalf("expected CallDepthExceeded, got %v", err)
		}
	})

	t.Run("steps", func(t *testing.T) {
		_, _, err := runSource(t, "while true do end", "", Options{MaxSteps: 100})
		se, ok := AsError(err)
		if !ok || se.Kind != KindStepLimitExceeded {
			t.Fatalf("expected StepLimitExceeded, got %v", err)
		}
	})

	t.Run("strict blocks", func(t *testing.T) {
		out, _, err := runSource(t, "1 writeln if", "", Options{})
		if err != nil || out != "1\n" {
			t.Fatalf("lenient run = (%q, %v), want (\"1\\n\", nil)", out, err)
		}
		_, _, err = runSource(t, "1 writeln if", "", Options{StrictBlocks: true})
		if !errors.Is(err, ErrPendingBlock) {
			t.Fatalf("expected PendingBlock, got %v", err)
		}
	})
}

func TestRunCancelled(t *testing.T) {
	program, err := Compile("while true do end")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vm := NewVM(nil, nil, Options{})
	vm.LoadProgram(program)
	if err := vm.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtendKeepsState(t *testing.T) {
	var out strings.Builder
	vm := NewVM(nil, &out, Options{})

	entries := []string{
		"fn x 2 * ret @ double",
		"21 @ x",
		"double writeln",
		"if x 20 > then \"big\" writeln end",
		"x double",
	}
	for _, src := range entries {
		program, err := Compile(src)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		vm.Extend(program)
		if err := vm.Run(context.Background()); err != nil {
			t.Fatalf("Run(%q): %v", src, err)
		}
	}

	if out.String() != "42\nbig\n" {
		t.Errorf("output = %q", out.String())
	}
	if got := vm.Stack(); !reflect.DeepEqual(got, []Value{Number(21), Number(42)}) {
		t.Errorf("stack = %v", got)
	}
}

func TestRunWithoutProgram(t *testing.T) {
	vm := NewVM(nil, nil, Options{})
	if err := vm.Run(context.Background()); !errors.Is(err, ErrNoProgram) {
		t.Errorf("expected ErrNoProgram, got %v", err)
	}
}

func TestExecute(t *testing.T) {
	var out strings.Builder
	if err := Execute(context.Background(), "read 2 * writeln", strings.NewReader("21"), &out, Options{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.String() != "42\n" {
		t.Errorf("output = %q, want %q", out.String(), "42\n")
	}

	if err := Execute(context.Background(), "1 2 $", nil, &out, Options{}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected InvalidToken, got %v", err)
	}
}
