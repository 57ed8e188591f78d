package vm

// InstructionsPool is an append-only store of compiled bytecode blobs: the
// top-level program plus the body of every PUSH_CALLDATA block and every
// task's instructions. Unlike StringPool it never deduplicates - two
// identical blobs assembled separately land at distinct indices.
type InstructionsPool struct {
	blobs [][]byte
}

// NewInstructionsPool returns an empty pool.
func NewInstructionsPool() *InstructionsPool {
	return &InstructionsPool{}
}

// Intern appends bytecode and returns its new index.
func (p *InstructionsPool) Intern(bytecode []byte) uint32 {
	idx := uint32(len(p.blobs))
	p.blobs = append(p.blobs, bytecode)
	return idx
}

// Get returns the blob at idx, or InvalidInstructionsIndexError if idx is
// out of range.
func (p *InstructionsPool) Get(idx uint32) ([]byte, error) {
	if int(idx) >= len(p.blobs) {
		return nil, &InvalidInstructionsIndexError{Index: idx}
	}
	return p.blobs[idx], nil
}

// Len returns the number of interned blobs.
func (p *InstructionsPool) Len() int { return len(p.blobs) }
