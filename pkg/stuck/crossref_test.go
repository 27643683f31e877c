package stuck

import (
	"errors"
	"reflect"
	"testing"
)

func resolve(t *testing.T, source string) []Operation {
	t.Helper()
	ops, err := Tokenize(source)
	if err != nil {
		t.Fatalf("Tokenize(%q) failed: %v", source, err)
	}
	resolved, unclosed, err := CrossReference(ops)
	if err != nil {
		t.Fatalf("CrossReference(%q) failed: %v", source, err)
	}
	if len(unclosed) != 0 {
		t.Fatalf("CrossReference(%q) left blocks open: %v", source, unclosed)
	}
	return resolved
}

func TestCrossReferenceTargets(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		targets map[int]Value // index -> expected operand
	}{
		{
			// 0 if, 1 true, 2 then, 3 1, 4 writeln, 5 end
			name:    "if without else",
			source:  "if true then 1 writeln end",
			targets: map[int]Value{0: nil, 2: Reference(6), 5: nil},
		},
		{
			// 0 if, 1 true, 2 then, 3 1, 4 else, 5 2, 6 end
			name:    "if with else",
			source:  "if true then 1 else 2 end",
			targets: map[int]Value{2: Reference(5), 4: Reference(7), 6: nil},
		},
		{
			// 0 while, 1 true, 2 do, 3 1, 4 end
			name:    "while loop",
			source:  "while true do 1 end",
			targets: map[int]Value{0: nil, 2: Reference(5), 4: Reference(0)},
		},
		{
			// 0 fn, 1 1, 2 ret
			name:    "function",
			source:  "fn 1 ret",
			targets: map[int]Value{0: Reference(2), 2: nil},
		},
		{
			// 0 while, 1 x, 2 do, 3 if, 4 y, 5 then, 6 1, 7 else, 8 2, 9 end, 10 end
			name:    "if nested in while",
			source:  "while x do if y then 1 else 2 end end",
			targets: map[int]Value{2: Reference(11), 5: Reference(8), 7: Reference(10), 9: nil, 10: Reference(0)},
		},
		{
			// 0 fn, 1 while, 2 x, 3 do, 4 end, 5 ret
			name:    "loop inside function",
			source:  "fn while x do end ret",
			targets: map[int]Value{0: Reference(5), 3: Reference(5), 4: Reference(1), 5: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := resolve(t, tt.source)
			for i, want := range tt.targets {
				if got := ops[i].Operand; got != want {
					t.Errorf("operation %d (%s): operand = %s, want %s", i, ops[i].Kind, Describe(got), Describe(want))
				}
			}
		})
	}
}

func TestCrossReferenceTargetsInRange(t *testing.T) {
	ops := resolve(t, `
		0 @ i
		while i 3 < do
			if i 2 % 0 = then "even" else "odd" end writeln
			i 1 + @ i
		end`)

	for i, op := range ops {
		if target, ok := op.target(); ok {
			if target < 0 || target > len(ops) {
				t.Errorf("operation %d (%s) targets %d outside [0, %d]", i, op.Kind, target, len(ops))
			}
		}
	}
}

func TestCrossReferenceWithoutControlFlow(t *testing.T) {
	ops, err := Tokenize(`1 2.5 "s" true x @ y + writeln`)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	resolved, unclosed, err := CrossReference(ops)
	if err != nil {
		t.Fatalf("CrossReference failed: %v", err)
	}
	if len(unclosed) != 0 {
		t.Errorf("unclosed = %v, want none", unclosed)
	}
	if !reflect.DeepEqual(resolved, ops) {
		t.Errorf("resolved = %v, want %v", resolved, ops)
	}
}

func TestCrossReferenceLeavesInputAlone(t *testing.T) {
	ops, err := Tokenize("if true then end")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if _, _, err := CrossReference(ops); err != nil {
		t.Fatalf("CrossReference failed: %v", err)
	}
	if ops[2].Operand != nil {
		t.Errorf("input operation was modified: %s", ops[2])
	}
}

func TestCrossReferenceUnclosed(t *testing.T) {
	ops, err := Tokenize("1 writeln\nif true then 1")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	_, unclosed, err := CrossReference(ops)
	if err != nil {
		t.Fatalf("CrossReference failed: %v", err)
	}
	if want := []int{2, 4}; !reflect.DeepEqual(unclosed, want) {
		t.Errorf("unclosed = %v, want %v", unclosed, want)
	}
}

func TestCrossReferenceErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   *Error
		line   int
	}{
		{"end without opener", "1\nend", ErrUnexpectedBlockClose, 2},
		{"else without opener", "else", ErrUnexpectedBlockClose, 1},
		{"ret without fn", "1 ret", ErrUnexpectedBlockClose, 1},
		{"else after do", "while true do else end", ErrPendingBlock, 1},
		{"end closing while", "while true\nend", ErrPendingBlock, 2},
		{"then without if", "true then end", ErrPendingBlock, 1},
		{"ret closing if", "fn if true then ret", ErrPendingBlock, 1},
		{"do without while", "true do end", ErrPendingBlock, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := Tokenize(tt.source)
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			_, _, err = CrossReference(ops)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want.Kind, err)
			}
			se, _ := AsError(err)
			if se.Line != tt.line {
				t.Errorf("line = %d, want %d", se.Line, tt.line)
			}
		})
	}
}

func TestProgramCheckClosed(t *testing.T) {
	p, err := Compile("1 writeln\nwhile true do")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !p.Incomplete() {
		t.Fatal("expected an incomplete program")
	}
	err = p.CheckClosed()
	if got, want := err.Error(), "PendingBlock: unclosed `while` block in line 2."; got != want {
		t.Errorf("CheckClosed() = %q, want %q", got, want)
	}

	p, err = Compile("while true do end")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if p.Incomplete() || p.CheckClosed() != nil {
		t.Error("closed program reported as incomplete")
	}
	if p.Len() != 4 {
		t.Errorf("Len() = %d, want 4", p.Len())
	}
}
