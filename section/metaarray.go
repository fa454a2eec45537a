package section

import "github.com/bp5io/bp5/format"

// MetaArray is the packed metadata payload for one variable, one writer, one
// step. Variant selection (operator present, stats enabled) happens via the
// two optional slices rather than via distinct struct types, the way a
// tagged union would otherwise need four separate layouts.
type MetaArray struct {
	// Dims is the variable's dimensionality; 0 for scalars.
	Dims int

	// Shape is the global array shape, flat length Dims. Nil for local
	// arrays. The first non-null Shape observed by a reader is authoritative;
	// later same-step blocks may still overwrite it (last-writer-wins).
	Shape []uint64

	// Count is flat, length Dims*BlockCount: per-block extent in each
	// dimension.
	Count []uint64

	// Offsets is flat, length Dims*BlockCount (nil for local arrays):
	// per-block start offset in each dimension.
	Offsets []uint64

	// BlockCount is the number of blocks (Put calls) recorded this step.
	BlockCount int

	// DataBlockLocation holds, per block, the byte offset of that block's
	// payload within the concatenated per-writer data stream.
	DataBlockLocation []uint64

	// DataBlockSize holds, per block, the compressed byte length. Present
	// (non-nil) only when an operator is attached to this variable.
	DataBlockSize []uint64

	// MinMax holds, per block, the folded min/max of that block's elements.
	// Present (non-nil) only when statistics are enabled for this variable.
	MinMax []format.MinMax
}

// DBCount returns Dims*BlockCount, or BlockCount directly when Dims == 0.
func (m *MetaArray) DBCount() int {
	if m.Dims == 0 {
		return m.BlockCount
	}
	return m.Dims * m.BlockCount
}

// HasOperator reports whether this variable carries a compression operator.
func (m *MetaArray) HasOperator() bool { return m.DataBlockSize != nil }

// HasStats reports whether per-block min/max statistics are tracked.
func (m *MetaArray) HasStats() bool { return m.MinMax != nil }

// AppendBlock appends one block's geometry (and, when non-nil, compressed
// size and stats) to the record, incrementing BlockCount. dataBlockSize and
// blockMinMax are ignored (but must be supplied as zero values) when the
// corresponding variant flag is unset.
func (m *MetaArray) AppendBlock(shape, count, offsets []uint64, dataBlockLocation uint64, dataBlockSize uint64, blockMinMax format.MinMax) {
	if len(shape) > 0 {
		// Last writer wins: a later block's non-empty Shape overwrites an
		// earlier one recorded this step.
		m.Shape = append([]uint64(nil), shape...)
	}
	m.Count = append(m.Count, count...)
	if len(offsets) > 0 {
		m.Offsets = append(m.Offsets, offsets...)
	}
	m.DataBlockLocation = append(m.DataBlockLocation, dataBlockLocation)
	if m.DataBlockSize != nil {
		m.DataBlockSize = append(m.DataBlockSize, dataBlockSize)
	}
	if m.MinMax != nil {
		m.MinMax = append(m.MinMax, blockMinMax)
	}
	m.BlockCount++
}

// BlockCountAt returns the flat Count slice for block i (length Dims, or a
// single-element slice for scalars-as-array).
func (m *MetaArray) BlockCountAt(i int) []uint64 {
	if m.Dims == 0 {
		return m.Count[i : i+1]
	}
	return m.Count[i*m.Dims : (i+1)*m.Dims]
}

// BlockOffsetsAt returns the flat Offsets slice for block i, or nil if this
// variable has no per-block offsets (local array).
func (m *MetaArray) BlockOffsetsAt(i int) []uint64 {
	if m.Offsets == nil {
		return nil
	}
	if m.Dims == 0 {
		return m.Offsets[i : i+1]
	}
	return m.Offsets[i*m.Dims : (i+1)*m.Dims]
}

// ElementCount returns Π Count for block i.
func (m *MetaArray) ElementCount(i int) uint64 {
	count := m.BlockCountAt(i)
	if len(count) == 0 {
		return 1
	}
	n := uint64(1)
	for _, c := range count {
		n *= c
	}
	return n
}

// Reset clears per-step accumulated block data while keeping the variant
// flags (HasOperator/HasStats) intact, for reuse at the next step once
// CloseTimestep has flushed and encoded the current step's blocks.
func (m *MetaArray) Reset() {
	m.Shape = nil
	m.Count = m.Count[:0]
	m.Offsets = m.Offsets[:0]
	m.DataBlockLocation = m.DataBlockLocation[:0]
	if m.DataBlockSize != nil {
		m.DataBlockSize = m.DataBlockSize[:0]
	}
	if m.MinMax != nil {
		m.MinMax = m.MinMax[:0]
	}
	m.BlockCount = 0
}

// NewMetaArray constructs an empty MetaArray for a variable of the given
// dimensionality, with the operator/stats variant slices allocated (non-nil)
// according to hasOperator/hasStats.
func NewMetaArray(dims int, hasOperator, hasStats bool) *MetaArray {
	m := &MetaArray{Dims: dims}
	if hasOperator {
		m.DataBlockSize = []uint64{}
	}
	if hasStats {
		m.MinMax = []format.MinMax{}
	}
	return m
}
