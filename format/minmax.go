package format

import "math"

// MinMax is a typed union slot holding the running minimum and maximum of an
// element-type's values. Only the field matching Type is meaningful; callers
// must dispatch on Type before reading.
type MinMax struct {
	Type  ElementType
	IMin  int64
	IMax  int64
	UMin  uint64
	UMax  uint64
	FMin  float64
	FMax  float64
	valid bool
}

// NewMinMax returns a MinMax slot for t with bounds set to the type's
// identity element (so the first ApplyElementMinMax call always wins).
func NewMinMax(t ElementType) MinMax {
	mm := MinMax{Type: t}
	switch {
	case isSignedInt(t):
		mm.IMin, mm.IMax = math.MaxInt64, math.MinInt64
	case isUnsignedInt(t):
		mm.UMin, mm.UMax = math.MaxUint64, 0
	default:
		mm.FMin, mm.FMax = math.Inf(1), math.Inf(-1)
	}

	return mm
}

func isSignedInt(t ElementType) bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeChar:
		return true
	default:
		return false
	}
}

func isUnsignedInt(t ElementType) bool {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return true
	default:
		return false
	}
}

// ApplyElementMinMax folds a single element value (decoded as float64 for
// simplicity at this layer; integer callers pass the exact integral value
// representable in float64 range, safe up to 2^53) into the union, dispatching
// on Type.
func (mm *MinMax) ApplyElementMinMax(v float64) {
	switch {
	case isSignedInt(mm.Type):
		iv := int64(v)
		if !mm.valid || iv < mm.IMin {
			mm.IMin = iv
		}
		if !mm.valid || iv > mm.IMax {
			mm.IMax = iv
		}
	case isUnsignedInt(mm.Type):
		uv := uint64(v)
		if !mm.valid || uv < mm.UMin {
			mm.UMin = uv
		}
		if !mm.valid || uv > mm.UMax {
			mm.UMax = uv
		}
	default:
		if !mm.valid || v < mm.FMin {
			mm.FMin = v
		}
		if !mm.valid || v > mm.FMax {
			mm.FMax = v
		}
	}
	mm.valid = true
}

// Merge folds other into mm, as if every element other ever saw had been
// applied to mm directly. Used to combine per-block min/max into a
// per-variable-per-step aggregate in VariableMinMax.
func (mm *MinMax) Merge(other MinMax) {
	if !other.valid {
		return
	}

	switch {
	case isSignedInt(mm.Type):
		if !mm.valid || other.IMin < mm.IMin {
			mm.IMin = other.IMin
		}
		if !mm.valid || other.IMax > mm.IMax {
			mm.IMax = other.IMax
		}
	case isUnsignedInt(mm.Type):
		if !mm.valid || other.UMin < mm.UMin {
			mm.UMin = other.UMin
		}
		if !mm.valid || other.UMax > mm.UMax {
			mm.UMax = other.UMax
		}
	default:
		if !mm.valid || other.FMin < mm.FMin {
			mm.FMin = other.FMin
		}
		if !mm.valid || other.FMax > mm.FMax {
			mm.FMax = other.FMax
		}
	}
	mm.valid = true
}

// Valid reports whether at least one element has been folded into mm.
func (mm MinMax) Valid() bool { return mm.valid }

// AsFloat64 returns (min, max) normalized to float64, regardless of Type.
// Intended for tests and introspection (MinBlocksInfo), not the wire format.
func (mm MinMax) AsFloat64() (float64, float64) {
	switch {
	case isSignedInt(mm.Type):
		return float64(mm.IMin), float64(mm.IMax)
	case isUnsignedInt(mm.Type):
		return float64(mm.UMin), float64(mm.UMax)
	default:
		return mm.FMin, mm.FMax
	}
}
