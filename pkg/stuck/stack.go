package stuck

// Stack is the VM's unbounded LIFO operand stack.
type Stack struct {
	data []Value
}

// NewStack creates an empty stack with room for capacity values.
func NewStack(capacity int) *Stack {
	return &Stack{data: make([]Value, 0, capacity)}
}

// Push pushes a value.
func (s *Stack) Push(v Value) {
	s.data = append(s.data, v)
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (Value, bool) {
	if len(s.data) == 0 {
		return nil, false
	}
	v := s.data[len(s.data)-1]
	s.data[len(s.data)-1] = nil
	s.data = s.data[:len(s.data)-1]
	return v, true
}

// Peek returns the top value without removing it.
func (s *Stack) Peek() (Value, bool) {
	if len(s.data) == 0 {
		return nil, false
	}
	return s.data[len(s.data)-1], true
}

// HasItems reports whether at least n values are on the stack.
func (s *Stack) HasItems(n int) bool {
	return len(s.data) >= n
}

// Size returns the number of values.
func (s *Stack) Size() int {
	return len(s.data)
}

// Clear drops every value.
func (s *Stack) Clear() {
	for i := range s.data {
		s.data[i] = nil
	}
	s.data = s.data[:0]
}

// Values returns a copy of the stack, bottom first.
func (s *Stack) Values() []Value {
	out := make([]Value, len(s.data))
	copy(out, s.data)
	return out
}

// removeTopmost deletes the highest value matching pred, keeping the values
// above it in order.
func (s *Stack) removeTopmost(pred func(Value) bool) (Value, bool) {
	for i := len(s.data) - 1; i >= 0; i-- {
		if pred(s.data[i]) {
			v := s.data[i]
			copy(s.data[i:], s.data[i+1:])
			s.data[len(s.data)-1] = nil
			s.data = s.data[:len(s.data)-1]
			return v, true
		}
	}
	return nil, false
}
