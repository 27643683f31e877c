package stuck

// Program is a resolved operation sequence ready for the VM.
type Program struct {
	Operations []Operation
	// Unclosed holds the indices of opening markers that were never closed.
	Unclosed []int
}

// Compile tokenizes and cross-references source.
func Compile(source string) (*Program, error) {
	ops, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	resolved, unclosed, err := CrossReference(ops)
	if err != nil {
		return nil, err
	}
	return &Program{Operations: resolved, Unclosed: unclosed}, nil
}

// Len returns the number of operations.
func (p *Program) Len() int {
	return len(p.Operations)
}

// Incomplete reports whether blocks are still open at the end of the source.
func (p *Program) Incomplete() bool {
	return len(p.Unclosed) > 0
}

// CheckClosed fails with PendingBlock for the first block left open.
func (p *Program) CheckClosed() error {
	if !p.Incomplete() {
		return nil
	}
	op := p.Operations[p.Unclosed[0]]
	return newError(KindPendingBlock, op.Line, "unclosed `%s` block", keywordOfOp(op))
}
