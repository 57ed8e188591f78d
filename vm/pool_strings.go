package vm

// StringPool interns strings into a stable, deduplicating arena. Indices
// returned by Intern never change for the life of the pool; there is no
// removal.
type StringPool struct {
	strings []string
	index   map[string]uint32
}

// NewStringPool returns an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{index: make(map[string]uint32)}
}

// Intern returns the stable index for s, reusing an existing entry if s was
// already interned.
func (p *StringPool) Intern(s string) uint32 {
	if idx, ok := p.index[s]; ok {
		return idx
	}
	idx := uint32(len(p.strings))
	p.strings = append(p.strings, s)
	p.index[s] = idx
	return idx
}

// Resolve returns the string at idx, or InvalidStringIndexError if idx is
// out of range.
func (p *StringPool) Resolve(idx uint32) (string, error) {
	if int(idx) >= len(p.strings) {
		return "", &InvalidStringIndexError{Index: idx}
	}
	return p.strings[idx], nil
}

// Len returns the number of interned strings.
func (p *StringPool) Len() int { return len(p.strings) }
