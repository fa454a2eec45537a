package section

import (
	"fmt"
	"math"

	"github.com/bp5io/bp5/endian"
	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
)

var engine = endian.GetLittleEndianEngine()

// EncodeScalar wraps a scalar variable's raw value bytes with a length
// prefix, so a variable-length payload (e.g. a string) can share the same
// trailer-payload area as fixed-size numeric scalars.
func EncodeScalar(raw []byte) []byte {
	buf := engine.AppendUint32(nil, uint32(len(raw)))
	return append(buf, raw...)
}

// DecodeScalar is the inverse of EncodeScalar, returning the raw value
// bytes and how many bytes of buf it consumed.
func DecodeScalar(buf []byte) (raw []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("%w: scalar payload shorter than length prefix", errs.ErrTruncatedBlock)
	}
	n := int(engine.Uint32(buf))
	if len(buf) < 4+n {
		return nil, 0, fmt.Errorf("%w: scalar payload truncated", errs.ErrTruncatedBlock)
	}
	return buf[4 : 4+n], 4 + n, nil
}

// EncodeMetaArray serializes ma as a self-describing block: a dims count,
// an optional Shape, BlockCount, flat Count, an optional Offsets, flat
// DataBlockLocation, and — only when the variant flags are set — flat
// DataBlockSize and interleaved (min, max) pairs. Every optional section is
// preceded by a presence byte, so DecodeMetaArray recovers HasOperator /
// HasStats without an out-of-band hint.
func EncodeMetaArray(ma *MetaArray, elemType format.ElementType) []byte {
	var buf []byte
	buf = engine.AppendUint32(buf, uint32(ma.Dims))

	buf = append(buf, presence(ma.Shape != nil))
	if ma.Shape != nil {
		for _, v := range ma.Shape {
			buf = engine.AppendUint64(buf, v)
		}
	}

	buf = engine.AppendUint32(buf, uint32(ma.BlockCount))
	for _, v := range ma.Count {
		buf = engine.AppendUint64(buf, v)
	}

	buf = append(buf, presence(ma.Offsets != nil))
	if ma.Offsets != nil {
		for _, v := range ma.Offsets {
			buf = engine.AppendUint64(buf, v)
		}
	}

	for _, v := range ma.DataBlockLocation {
		buf = engine.AppendUint64(buf, v)
	}

	buf = append(buf, presence(ma.HasOperator()))
	if ma.HasOperator() {
		for _, v := range ma.DataBlockSize {
			buf = engine.AppendUint64(buf, v)
		}
	}

	buf = append(buf, presence(ma.HasStats()))
	if ma.HasStats() {
		for _, mm := range ma.MinMax {
			lo, hi := mm.AsFloat64()
			buf = engine.AppendUint64(buf, math.Float64bits(lo))
			buf = engine.AppendUint64(buf, math.Float64bits(hi))
		}
	}

	buf = append(buf, uint8(elemType))

	return buf
}

func presence(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// DecodeMetaArray is the exact inverse of EncodeMetaArray, returning the
// reconstructed MetaArray, the element type recorded alongside it (needed
// to interpret MinMax's union slots), and the number of bytes consumed.
func DecodeMetaArray(buf []byte) (*MetaArray, format.ElementType, int, error) {
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(buf) {
			return 0, fmt.Errorf("%w: MetaArray payload truncated", errs.ErrTruncatedBlock)
		}
		v := engine.Uint32(buf[off:])
		off += 4
		return v, nil
	}
	readU64 := func() (uint64, error) {
		if off+8 > len(buf) {
			return 0, fmt.Errorf("%w: MetaArray payload truncated", errs.ErrTruncatedBlock)
		}
		v := engine.Uint64(buf[off:])
		off += 8
		return v, nil
	}
	readByte := func() (byte, error) {
		if off+1 > len(buf) {
			return 0, fmt.Errorf("%w: MetaArray payload truncated", errs.ErrTruncatedBlock)
		}
		b := buf[off]
		off++
		return b, nil
	}

	dims, err := readU32()
	if err != nil {
		return nil, 0, 0, err
	}
	ma := &MetaArray{Dims: int(dims)}

	hasShape, err := readByte()
	if err != nil {
		return nil, 0, 0, err
	}
	if hasShape == 1 {
		ma.Shape = make([]uint64, dims)
		for i := range ma.Shape {
			if ma.Shape[i], err = readU64(); err != nil {
				return nil, 0, 0, err
			}
		}
	}

	blockCount, err := readU32()
	if err != nil {
		return nil, 0, 0, err
	}
	ma.BlockCount = int(blockCount)

	countLen := int(dims) * ma.BlockCount
	if dims == 0 {
		countLen = ma.BlockCount
	}
	ma.Count = make([]uint64, countLen)
	for i := range ma.Count {
		if ma.Count[i], err = readU64(); err != nil {
			return nil, 0, 0, err
		}
	}

	hasOffsets, err := readByte()
	if err != nil {
		return nil, 0, 0, err
	}
	if hasOffsets == 1 {
		ma.Offsets = make([]uint64, countLen)
		for i := range ma.Offsets {
			if ma.Offsets[i], err = readU64(); err != nil {
				return nil, 0, 0, err
			}
		}
	}

	ma.DataBlockLocation = make([]uint64, ma.BlockCount)
	for i := range ma.DataBlockLocation {
		if ma.DataBlockLocation[i], err = readU64(); err != nil {
			return nil, 0, 0, err
		}
	}

	hasDBS, err := readByte()
	if err != nil {
		return nil, 0, 0, err
	}
	if hasDBS == 1 {
		ma.DataBlockSize = make([]uint64, ma.BlockCount)
		for i := range ma.DataBlockSize {
			if ma.DataBlockSize[i], err = readU64(); err != nil {
				return nil, 0, 0, err
			}
		}
	}

	hasMM, err := readByte()
	if err != nil {
		return nil, 0, 0, err
	}
	var elemType format.ElementType
	if hasMM == 1 {
		ma.MinMax = make([]format.MinMax, ma.BlockCount)
	}
	// elemType is read after MinMax's raw float64 pairs below, since it is
	// appended last by EncodeMetaArray; MinMax entries are backfilled with
	// it once known.
	var rawPairs [][2]uint64
	if hasMM == 1 {
		rawPairs = make([][2]uint64, ma.BlockCount)
		for i := range rawPairs {
			lo, err := readU64()
			if err != nil {
				return nil, 0, 0, err
			}
			hi, err := readU64()
			if err != nil {
				return nil, 0, 0, err
			}
			rawPairs[i] = [2]uint64{lo, hi}
		}
	}

	etByte, err := readByte()
	if err != nil {
		return nil, 0, 0, err
	}
	elemType = format.ElementType(etByte)

	for i, pair := range rawPairs {
		mm := format.NewMinMax(elemType)
		mm.ApplyElementMinMax(math.Float64frombits(pair[0]))
		mm.ApplyElementMinMax(math.Float64frombits(pair[1]))
		ma.MinMax[i] = mm
	}

	return ma, elemType, off, nil
}
