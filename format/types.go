// Package format implements the BP5 TypeRegistry: the fixed enumeration of
// element types and shape kinds that every variable record, MetaArrayRec and
// FormatContext field description is built from.
package format

import "fmt"

// ElementType enumerates every scalar element type a variable can carry.
// Strings are variable-length in the data payload but fixed-size
// (pointer-sized) in metadata; LongDouble is archived as float64 (see
// LongDoubleByteSize).
type ElementType uint8

const (
	TypeNone ElementType = iota
	TypeChar
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat
	TypeDouble
	TypeLongDouble
	TypeFloatComplex
	TypeDoubleComplex
	TypeString
	TypeStruct
)

// LongDoubleByteSize is the archival width chosen for LongDouble: this
// implementation picks float64 as its one portable representation and
// converts at the edges, since long double's native width is platform
// dependent and not worth preserving exactly.
const LongDoubleByteSize = 8

// ByteSize returns the fixed on-wire element size in bytes. Strings return 0
// (variable-length payload; metadata carries a pointer-equivalent length
// field instead); Struct returns 0 (caller must consult the FormatContext
// layout).
func (t ElementType) ByteSize() int {
	switch t {
	case TypeChar, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat:
		return 4
	case TypeInt64, TypeUint64, TypeDouble, TypeLongDouble:
		return 8
	case TypeFloatComplex:
		return 8
	case TypeDoubleComplex:
		return 16
	case TypeString, TypeStruct, TypeNone:
		return 0
	default:
		return 0
	}
}

// WireTag returns the self-describing wire-tag string recorded in a
// FormatContext field description.
func (t ElementType) WireTag() string {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeChar:
		return "integer"
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return "unsigned integer"
	case TypeFloat, TypeDouble, TypeLongDouble:
		return "float"
	case TypeFloatComplex:
		return "complex4"
	case TypeDoubleComplex:
		return "complex8"
	case TypeString:
		return "string"
	case TypeStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether t has a totally-ordered numeric value suitable
// for min/max statistics.
func (t ElementType) IsNumeric() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeUint8, TypeUint16, TypeUint32, TypeUint64,
		TypeFloat, TypeDouble, TypeLongDouble, TypeChar:
		return true
	default:
		return false
	}
}

func (t ElementType) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeChar:
		return "Char"
	case TypeInt8:
		return "Int8"
	case TypeInt16:
		return "Int16"
	case TypeInt32:
		return "Int32"
	case TypeInt64:
		return "Int64"
	case TypeUint8:
		return "UInt8"
	case TypeUint16:
		return "UInt16"
	case TypeUint32:
		return "UInt32"
	case TypeUint64:
		return "UInt64"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeLongDouble:
		return "LongDouble"
	case TypeFloatComplex:
		return "FloatComplex"
	case TypeDoubleComplex:
		return "DoubleComplex"
	case TypeString:
		return "String"
	case TypeStruct:
		return "Struct"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// ShapeKind enumerates how a variable's dimensionality is interpreted.
type ShapeKind uint8

const (
	ShapeUnknown ShapeKind = iota
	ShapeGlobalValue
	ShapeLocalValue
	ShapeGlobalArray
	ShapeLocalArray
	ShapeJoinedArray
)

func (s ShapeKind) String() string {
	switch s {
	case ShapeGlobalValue:
		return "GlobalValue"
	case ShapeLocalValue:
		return "LocalValue"
	case ShapeGlobalArray:
		return "GlobalArray"
	case ShapeLocalArray:
		return "LocalArray"
	case ShapeJoinedArray:
		return "JoinedArray"
	default:
		return "Unknown"
	}
}

// IsArray reports whether this shape kind carries per-block Shape/Count/Offsets.
func (s ShapeKind) IsArray() bool {
	return s == ShapeGlobalArray || s == ShapeLocalArray || s == ShapeJoinedArray
}
