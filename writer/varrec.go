// Package writer implements the Serializer: the per-writer engine that
// turns Marshal calls into a packed metadata record plus a data buffer,
// flushing both at CloseTimestep.
//
// Built the way a columnar binary encoder works (pool-backed scratch
// buffers, an endian engine for every fixed-width append) generalized from
// "two fixed columns per metric" to "an arbitrary, self-describing set of
// per-step variable records."
package writer

import (
	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/section"
)

// VarRec is a writer-side variable record: created on first Marshal,
// persists for the Serializer's lifetime. Its per-step data (meta for
// arrays, scalar bytes for scalars) is reset at CloseTimestep, but a
// variable's slot in the metadata record is zeroed rather than removed —
// later steps that don't touch the variable still carry its now-empty slot.
type VarRec struct {
	Name      string
	Type      format.ElementType
	Dims      int
	ShapeKind format.ShapeKind
	FieldID   int
	Offset    int // byte offset of this variable's fixed 8-byte slot within the metadata record
	Operator  operator.Type
	Stats     bool

	meta   *section.MetaArray // nil for scalars
	scalar []byte             // raw bytes of the current step's scalar value; nil for arrays

	minmax format.MinMax // this step's scalar min/max scratch; meaningless for arrays (folded per-block instead)
}
