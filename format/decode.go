package format

import (
	"fmt"
	"math"

	"github.com/bp5io/bp5/endian"
	"github.com/bp5io/bp5/errs"
)

var engine = endian.GetLittleEndianEngine()

// DecodeAsFloat64 interprets the first t.ByteSize() bytes of b as a value of
// type t, widened to float64. Used to fold an arbitrary numeric element
// into a MinMax slot without a separate code path per type; exact for every
// integer type up to 2^53 and for Float/Double, which is sufficient since
// MinMax keeps its own typed union and only the folding comparison happens
// in float64 space (format.MinMax.ApplyElementMinMax re-narrows Min/Max to
// the right union member immediately).
func DecodeAsFloat64(t ElementType, b []byte) (float64, error) {
	need := t.ByteSize()
	if len(b) < need {
		return 0, fmt.Errorf("%w: element of type %v needs %d bytes, got %d", errs.ErrTruncatedBlock, t, need, len(b))
	}

	switch t {
	case TypeChar, TypeInt8:
		return float64(int8(b[0])), nil
	case TypeUint8:
		return float64(b[0]), nil
	case TypeInt16:
		return float64(int16(engine.Uint16(b))), nil
	case TypeUint16:
		return float64(engine.Uint16(b)), nil
	case TypeInt32:
		return float64(int32(engine.Uint32(b))), nil
	case TypeUint32:
		return float64(engine.Uint32(b)), nil
	case TypeInt64:
		return float64(int64(engine.Uint64(b))), nil
	case TypeUint64:
		return float64(engine.Uint64(b)), nil
	case TypeFloat:
		return float64(math.Float32frombits(engine.Uint32(b))), nil
	case TypeDouble, TypeLongDouble:
		return math.Float64frombits(engine.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("%w: element type %v has no numeric decoding", errs.ErrUnsupportedFieldType, t)
	}
}
