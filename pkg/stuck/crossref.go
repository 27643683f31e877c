package stuck

// blockRefs is the stack of pending opening-block indices.
type blockRefs []int

func (b *blockRefs) push(i int) { *b = append(*b, i) }

func (b *blockRefs) pop() (int, bool) {
	if len(*b) == 0 {
		return 0, false
	}
	i := (*b)[len(*b)-1]
	*b = (*b)[:len(*b)-1]
	return i, true
}

// CrossReference resolves the jump operands of control-flow and function
// markers in one pass. It returns a new slice of the same length; the input
// is not modified. unclosed lists the opening indices still pending at the
// end, in source order.
func CrossReference(ops []Operation) (resolved []Operation, unclosed []int, err error) {
	resolved = make([]Operation, len(ops))
	copy(resolved, ops)

	var refs blockRefs
	for i, op := range ops {
		switch op.Kind {
		case OpIf, OpThen, OpWhile, OpDo:
			refs.push(i)

		case OpFunction:
			if op.Operand == markerClose {
				if err := closeFunction(resolved, &refs, i); err != nil {
					return nil, nil, err
				}
				continue
			}
			refs.push(i)

		case OpElse:
			then, ok := refs.pop()
			if !ok {
				return nil, nil, newError(KindUnexpectedBlockClose, op.Line, "unexpected `else`")
			}
			if resolved[then].Kind != OpThen {
				return nil, nil, mismatch("else", resolved[then], op.Line)
			}
			if err := popOpener(resolved, &refs, OpIf, "then", op.Line); err != nil {
				return nil, nil, err
			}
			resolved[then].Operand = Reference(i + 1)
			refs.push(i)

		case OpEnd:
			if err := closeBlock(resolved, &refs, i); err != nil {
				return nil, nil, err
			}
		}
	}

	unclosed = append(unclosed, refs...)
	return resolved, unclosed, nil
}

func closeBlock(ops []Operation, refs *blockRefs, i int) error {
	line := ops[i].Line
	opening, ok := refs.pop()
	if !ok {
		return newError(KindUnexpectedBlockClose, line, "unexpected `end`")
	}

	switch ops[opening].Kind {
	case OpThen:
		if err := popOpener(ops, refs, OpIf, "then", line); err != nil {
			return err
		}
		ops[opening].Operand = Reference(i + 1)
	case OpElse:
		ops[opening].Operand = Reference(i + 1)
	case OpDo:
		ops[opening].Operand = Reference(i + 1)
		while, ok := refs.pop()
		if !ok {
			return newError(KindPendingBlock, line, "`do` has no matching `while`")
		}
		if ops[while].Kind != OpWhile {
			return mismatch("do", ops[while], line)
		}
		ops[i].Operand = Reference(while)
	default:
		return mismatch("end", ops[opening], line)
	}
	return nil
}

func closeFunction(ops []Operation, refs *blockRefs, i int) error {
	line := ops[i].Line
	opening, ok := refs.pop()
	if !ok {
		return newError(KindUnexpectedBlockClose, line, "unexpected `ret`")
	}
	if ops[opening].Kind != OpFunction {
		return mismatch("ret", ops[opening], line)
	}
	ops[opening].Operand = Reference(i)
	ops[i].Operand = nil
	return nil
}

// popOpener pops the marker that must sit under a `then` or `do`.
func popOpener(ops []Operation, refs *blockRefs, want OperationKind, closer string, line int) error {
	opening, ok := refs.pop()
	if !ok {
		return newError(KindPendingBlock, line, "`%s` has no matching `%s`", closer, keywordOf(want))
	}
	if ops[opening].Kind != want {
		return mismatch(closer, ops[opening], line)
	}
	return nil
}

func mismatch(closer string, opening Operation, line int) *Error {
	return newError(KindPendingBlock, line, "can't close `%s` with `%s` from line %d",
		keywordOfOp(opening), closer, opening.Line)
}

func keywordOf(kind OperationKind) string {
	for word, k := range keywords {
		if k == kind && k != OpFunction {
			return word
		}
	}
	return kind.String()
}

func keywordOfOp(op Operation) string {
	if op.Kind == OpFunction {
		return "fn"
	}
	return keywordOf(op.Kind)
}
