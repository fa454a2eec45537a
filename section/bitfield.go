package section

// Bitfield tracks, for one step, which variable field IDs were written by
// this writer. Bit i corresponds to the variable with field ID i.
type Bitfield struct {
	words []uint64
}

// NewBitfield returns a Bitfield with capacity for at least nBits bits, all
// clear.
func NewBitfield(nBits int) Bitfield {
	return Bitfield{words: make([]uint64, wordsFor(nBits))}
}

func wordsFor(nBits int) int {
	if nBits <= 0 {
		return 0
	}
	return (nBits + 63) / 64
}

// Grow ensures the bitfield has capacity for at least nBits bits, preserving
// existing bits. Called when a new variable is registered mid-lifetime.
func (b *Bitfield) Grow(nBits int) {
	need := wordsFor(nBits)
	if need <= len(b.words) {
		return
	}
	grown := make([]uint64, need)
	copy(grown, b.words)
	b.words = grown
}

// Set marks bit i (variable with this field ID was written this step).
func (b *Bitfield) Set(i int) {
	b.Grow(i + 1)
	b.words[i/64] |= 1 << uint(i%64)
}

// Test reports whether bit i is set.
func (b Bitfield) Test(i int) bool {
	w := i / 64
	if w >= len(b.words) {
		return false
	}
	return b.words[w]&(1<<uint(i%64)) != 0
}

// Clear resets every bit to zero, keeping the underlying storage (called at
// CloseTimestep to reset per-step state without reallocating).
func (b *Bitfield) Clear() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// WordCount returns the number of u64 words backing the bitfield (the wire
// BitFieldCount field).
func (b Bitfield) WordCount() int { return len(b.words) }

// Words returns the raw u64 words, in wire order.
func (b Bitfield) Words() []uint64 { return b.words }

// SetWords replaces the bitfield's backing words wholesale (used when
// decoding a metadata record off the wire).
func (b *Bitfield) SetWords(words []uint64) { b.words = words }
