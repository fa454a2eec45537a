package writer

import (
	"fmt"

	"github.com/bp5io/bp5/aggregate"
	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/formatctx"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/section"
	"github.com/bp5io/bp5/stager"
)

// smallBlockThreshold is the size at or below which an array Put is staged
// immediately even when Sync is false: the cost of copying a few bytes now
// is cheaper than the bookkeeping a deferred external reference costs.
const smallBlockThreshold = 4096

// endOfStepAlign is the alignment applied to the zero-length pad AddToVec
// call CloseTimestep issues to round out the step's data buffer.
const endOfStepAlign = 8

// MarshalInput carries everything one Marshal call needs. Shape, Operator
// and Stats are only consulted the first time Name is seen — they describe
// properties fixed for the variable's lifetime, matching the "look up or
// create a WriterRec" step of Marshal's contract: later calls reuse the
// values recorded at creation regardless of what's passed.
type MarshalInput struct {
	Name  string
	Type  format.ElementType
	Shape format.ShapeKind // required shape kind for the variable, consulted on first sight only
	Dims  int

	GlobalShape []uint64 // flat, length Dims; Global/Joined arrays only. Last writer wins across blocks, but a shape below an earlier block's Offset+Count is rejected.
	Count       []uint64 // flat, length Dims
	Offsets     []uint64 // flat, length Dims; nil for Local arrays

	Data    []byte // element payload; nil when SpanOut is requested
	Sync    bool
	SpanOut bool

	Operator operator.Type // consulted on first sight only
	Stats    bool          // consulted on first sight only

	MemSpace stager.MemSpace
}

// TimestepInfo is what CloseTimestep hands back to the transport: the
// meta-meta blocks newly registered this step (empty unless the layout
// changed), the encoded metadata and attribute records, and the data
// buffer backing every DataBlockLocation this step recorded.
type TimestepInfo struct {
	Step           uint64
	NewMetaMeta    []aggregate.MetaMetaBlock
	MetadataBlob   []byte
	AttributesBlob []byte
	DataBuffer     *stager.BufferV
}

// Attribute is a single MarshalAttribute call's content, kept until
// CloseTimestep encodes it. elemCount == -1 denotes a scalar.
type Attribute struct {
	Type      format.ElementType
	ElemCount int
	Data      []byte
}

// Serializer is the per-writer-rank engine. Not safe for concurrent use: one
// instance serves one writer rank's single-threaded call sequence of
// Marshal/MarshalAttribute calls between InitStep and CloseTimestep.
type Serializer struct {
	fc *formatctx.FormatContext

	vars      []*VarRec
	byName    map[string]int
	bitfield  section.Bitfield
	handle    formatctx.FormatHandle
	haveHandle bool
	layoutDirty bool

	attrs      map[string]Attribute
	attrOrder  []string
	attrsDirty bool

	buf *stager.BufferV
}

// New returns a Serializer sharing fc with every other writer rank and the
// reader that will eventually merge their output; fc is what lets a
// heterogeneous cohort (different ranks writing different variable sets)
// converge on a single schema registry.
func New(fc *formatctx.FormatContext) *Serializer {
	return &Serializer{
		fc:     fc,
		byName: make(map[string]int),
		attrs:  make(map[string]Attribute),
	}
}

// InitStep attaches buf (or a freshly allocated BufferV, if buf is nil) as
// this step's data staging area.
func (s *Serializer) InitStep(buf *stager.BufferV) {
	if buf == nil {
		buf = stager.New(0)
	}
	s.buf = buf
}

func (s *Serializer) lookupOrCreate(in MarshalInput) (*VarRec, bool, error) {
	if idx, ok := s.byName[in.Name]; ok {
		return s.vars[idx], false, nil
	}

	fieldID := len(s.vars)
	if _, err := section.EncodeFieldName(in.Name, in.Shape, in.Operator != operator.TypeNone, in.Stats); err != nil {
		return nil, false, err
	}

	rec := &VarRec{
		Name:      in.Name,
		Type:      in.Type,
		Dims:      in.Dims,
		ShapeKind: in.Shape,
		FieldID:   fieldID,
		Offset:    section.RecordPrefixSize + 8*fieldID,
		Operator:  in.Operator,
		Stats:     in.Stats,
	}
	if in.Dims > 0 {
		rec.meta = section.NewMetaArray(in.Dims, in.Operator != operator.TypeNone, in.Stats)
	}

	s.vars = append(s.vars, rec)
	s.byName[in.Name] = fieldID
	s.bitfield.Grow(fieldID + 1)

	return rec, true, nil
}

// Marshal implements the write-side Put contract: stage a scalar value or
// one array block for the named variable this step. It returns the index
// of the block just appended (0 for scalars) and, when in.SpanOut is set,
// the writable region the caller must fill directly.
func (s *Serializer) Marshal(in MarshalInput) (blockIndex int, span *stager.BufferPos, err error) {
	if s.buf == nil {
		return 0, nil, fmt.Errorf("%w: Marshal called before InitStep or after CloseTimestep", errs.ErrMarshalBeforeInit)
	}
	if in.Dims < 0 {
		return 0, nil, fmt.Errorf("%w: negative dimension count", errs.ErrInvalidDimension)
	}
	if in.Dims > 0 && len(in.Count) != in.Dims {
		return 0, nil, fmt.Errorf("%w: Count length %d does not match Dims %d", errs.ErrInvalidDimension, len(in.Count), in.Dims)
	}
	if in.SpanOut && in.Data != nil {
		return 0, nil, fmt.Errorf("%w: SpanOut and Data are mutually exclusive", errs.ErrInvalidArgument)
	}

	v, isNew, err := s.lookupOrCreate(in)
	if err != nil {
		return 0, nil, err
	}
	if v.meta != nil && len(in.GlobalShape) > 0 && len(v.meta.Offsets) == v.meta.BlockCount*v.Dims && len(v.meta.Count) == len(v.meta.Offsets) {
		for b := 0; b < v.meta.BlockCount; b++ {
			for d := 0; d < v.Dims && d < len(in.GlobalShape); d++ {
				if v.meta.Offsets[b*v.Dims+d]+v.meta.Count[b*v.Dims+d] > in.GlobalShape[d] {
					return 0, nil, fmt.Errorf("%w: %q dimension %d is below block %d's Offset+Count", errs.ErrInvalidShape, in.Name, d, b)
				}
			}
		}
	}
	s.bitfield.Set(v.FieldID)
	if isNew {
		s.layoutDirty = true
	}

	if v.Dims == 0 {
		if in.Data == nil {
			return 0, nil, fmt.Errorf("%w: scalar Marshal requires Data", errs.ErrInvalidArgument)
		}
		v.scalar = append(v.scalar[:0], in.Data...)
		if v.Type.IsNumeric() {
			if val, derr := format.DecodeAsFloat64(v.Type, in.Data); derr == nil {
				v.minmax = format.NewMinMax(v.Type)
				v.minmax.ApplyElementMinMax(val)
			}
		}
		return 0, nil, nil
	}

	elemSize := v.Type.ByteSize()
	align := elemSize
	if align == 0 {
		align = 1
	}

	elemCount := uint64(1)
	for _, c := range in.Count {
		elemCount *= c
	}
	size := int(elemCount) * elemSize

	var blockMinMax format.MinMax
	if v.Stats {
		blockMinMax = format.NewMinMax(v.Type)
		if !in.SpanOut && v.Type.IsNumeric() && in.Data != nil {
			for i := 0; i < int(elemCount); i++ {
				off := i * elemSize
				if off+elemSize > len(in.Data) {
					break
				}
				if val, derr := format.DecodeAsFloat64(v.Type, in.Data[off:off+elemSize]); derr == nil {
					blockMinMax.ApplyElementMinMax(val)
				}
			}
		}
	}

	var dataBlockLocation uint64
	var dataBlockSize uint64

	switch {
	case v.Operator != operator.TypeNone:
		op, operr := operator.New(v.Operator)
		if operr != nil {
			return 0, nil, operr
		}
		compressed, operr := op.Compress(in.Data)
		if operr != nil {
			return 0, nil, operr
		}
		pos, perr := s.buf.AddToVec(len(compressed), compressed, align, true, in.MemSpace)
		if perr != nil {
			return 0, nil, perr
		}
		dataBlockLocation = pos.GlobalPos
		dataBlockSize = uint64(len(compressed))

	case in.SpanOut:
		pos, perr := s.buf.Allocate(size, align)
		if perr != nil {
			return 0, nil, perr
		}
		dataBlockLocation = pos.GlobalPos
		span = &pos

	case in.Sync || size <= smallBlockThreshold:
		pos, perr := s.buf.AddToVec(size, in.Data, align, true, in.MemSpace)
		if perr != nil {
			return 0, nil, perr
		}
		dataBlockLocation = pos.GlobalPos

	default:
		pos, perr := s.buf.AddToVec(size, in.Data, align, false, in.MemSpace)
		if perr != nil {
			return 0, nil, perr
		}
		dataBlockLocation = pos.GlobalPos
	}

	v.meta.AppendBlock(in.GlobalShape, in.Count, in.Offsets, dataBlockLocation, dataBlockSize, blockMinMax)

	return v.meta.BlockCount - 1, span, nil
}

// MarshalAttribute records name's value, overwriting any prior value. A
// negative elemCount denotes a scalar attribute.
func (s *Serializer) MarshalAttribute(name string, t format.ElementType, elemCount int, data []byte) error {
	if s.buf == nil {
		return fmt.Errorf("%w: MarshalAttribute called before InitStep", errs.ErrMarshalBeforeInit)
	}
	if _, ok := s.attrs[name]; !ok {
		s.attrOrder = append(s.attrOrder, name)
	}
	s.attrs[name] = Attribute{Type: t, ElemCount: elemCount, Data: append([]byte(nil), data...)}
	s.attrsDirty = true
	return nil
}

// PerformPuts flushes every deferred external reference staged so far
// without closing the step. forceCopy is accepted for API symmetry with
// CloseTimestep's drain step; this stager always copies on flush.
func (s *Serializer) PerformPuts(_ bool) error {
	if s.buf == nil {
		return fmt.Errorf("%w: PerformPuts called before InitStep", errs.ErrMarshalBeforeInit)
	}
	s.buf.DumpDeferredBlocks()
	return nil
}

// ReinitStepData swaps in a new data buffer mid-step, returning the
// previous one. When forceCopy is set, pending deferred externs are
// flushed into the outgoing buffer first.
func (s *Serializer) ReinitStepData(buf *stager.BufferV, forceCopy bool) (*stager.BufferV, error) {
	if s.buf == nil {
		return nil, fmt.Errorf("%w: ReinitStepData called before InitStep", errs.ErrMarshalBeforeInit)
	}
	if forceCopy {
		s.buf.DumpDeferredBlocks()
	}
	prev := s.buf
	if buf == nil {
		buf = stager.New(0)
	}
	s.buf = buf
	return prev, nil
}

// CloseTimestep drains deferred puts, pads the data buffer, re-registers
// the metadata layout with FormatContext if it changed since the last
// step, encodes the metadata and attribute records, and resets per-step
// state for the next step.
func (s *Serializer) CloseTimestep(step uint64, forceCopy bool) (TimestepInfo, error) {
	if s.buf == nil {
		return TimestepInfo{}, fmt.Errorf("%w: CloseTimestep called before InitStep or timestep already closed", errs.ErrCloseBeforeInit)
	}

	s.buf.DumpDeferredBlocks()
	if _, err := s.buf.AddToVec(0, nil, endOfStepAlign, true, stager.MemSpaceHost); err != nil {
		return TimestepInfo{}, err
	}
	dataSize := s.buf.Size()

	layout := s.buildLayout()

	var newMetaMeta []aggregate.MetaMetaBlock
	if s.layoutDirty || !s.haveHandle {
		handle, idBlob, infoBlob, isNew := s.fc.Register(layout)
		s.handle = handle
		s.haveHandle = true
		if isNew {
			newMetaMeta = append(newMetaMeta, aggregate.MetaMetaBlock{ID: idBlob, Info: infoBlob})
		}
		s.layoutDirty = false
	}

	metadataBlob := s.encodeMetadataRecord(dataSize)

	var attrsBlob []byte
	if s.attrsDirty {
		attrsBlob = s.encodeAttributes()
		s.attrsDirty = false
	}

	info := TimestepInfo{
		Step:           step,
		NewMetaMeta:    newMetaMeta,
		MetadataBlob:   metadataBlob,
		AttributesBlob: attrsBlob,
		DataBuffer:     s.buf,
	}

	s.resetPerStep()
	_ = forceCopy // CloseTimestep's own drain above always copies; kept for API symmetry.

	return info, nil
}

func (s *Serializer) resetPerStep() {
	s.bitfield.Clear()
	for _, v := range s.vars {
		if v.meta != nil {
			v.meta.Reset()
		}
		v.scalar = v.scalar[:0]
		v.minmax = format.MinMax{}
	}
	s.buf = nil
}
