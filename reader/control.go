package reader

import (
	"fmt"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/formatctx"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/section"
)

// controlStruct links one metadata-record field to the VarRec it describes,
// the way a ControlInfo entry pairs a field offset with a VarRec in the
// design this package follows: built once per distinct format handle, then
// reused for every record sharing that handle.
type controlStruct struct {
	fieldName string
	varIdx    int
}

// controlInfo is the per-format-handle field table: one controlStruct per
// non-prefix field, in field order, so a decoded bitfield's bit i maps
// directly to controls[i].
type controlInfo struct {
	handle   formatctx.FormatHandle
	controls []controlStruct
}

func (d *Deserializer) buildControlInfo(handle formatctx.FormatHandle) (*controlInfo, error) {
	if ci, ok := d.controls[handle]; ok {
		return ci, nil
	}

	layout, ok := d.fc.Layout(handle)
	if !ok {
		return nil, fmt.Errorf("%w: handle %x", errs.ErrUnknownFormatID, uint64(handle))
	}
	if err := d.fc.EstablishConversion(handle, layout); err != nil {
		return nil, err
	}

	ci := &controlInfo{handle: handle}
	for _, f := range layout.Fields {
		switch f.Name {
		case "BitFieldCount", "DataBlockSize", "BitFieldOffset":
			continue
		}

		parsed, err := section.ParseFieldName(f.Name)
		if err != nil {
			return nil, err
		}

		varIdx, ok := d.byName[parsed.Name]
		if !ok {
			rec := newVarRec(parsed.Name)
			rec.Type = f.ElemType
			rec.ShapeKind = parsed.Shape
			rec.ElemSize = f.ElemType.ByteSize()
			rec.HasOperator = parsed.HasOperator
			rec.HasStats = parsed.HasStats
			varIdx = len(d.vars)
			d.vars = append(d.vars, rec)
			d.byName[parsed.Name] = varIdx
		}

		ci.controls = append(ci.controls, controlStruct{fieldName: f.Name, varIdx: varIdx})
	}

	d.controls[handle] = ci
	return ci, nil
}

// reconstructBitfield reads the BitFieldCount/BitFieldOffset prefix fields
// out of rec and returns the bitfield they describe.
func reconstructBitfield(rec formatctx.Record) (section.Bitfield, error) {
	countBytes, ok := rec.Field("BitFieldCount")
	if !ok {
		return section.Bitfield{}, fmt.Errorf("%w: metadata record missing BitFieldCount", errs.ErrRecordLayoutMismatch)
	}
	offsetBytes, ok := rec.Field("BitFieldOffset")
	if !ok {
		return section.Bitfield{}, fmt.Errorf("%w: metadata record missing BitFieldOffset", errs.ErrRecordLayoutMismatch)
	}

	wordCount := int(engine.Uint64(countBytes))
	bitOffset := int(engine.Uint64(offsetBytes))

	bf := section.NewBitfield(wordCount * 64)
	words := make([]uint64, wordCount)
	for i := 0; i < wordCount; i++ {
		start := bitOffset + i*8
		if start+8 > len(rec.Data) {
			return section.Bitfield{}, fmt.Errorf("%w: bitfield words truncated", errs.ErrTruncatedBlock)
		}
		words[i] = engine.Uint64(rec.Data[start : start+8])
	}
	bf.SetWords(words)
	return bf, nil
}

// operatorTypeOf maps a parsed field's HasOperator bit to a concrete
// operator.Type for decompression. Field names only record operator
// *presence*, never which codec: the codec choice must already be known to
// the reader out of band (a fixed engine-wide choice, or communicated via an
// attribute), the same limitation the field-name encoding has on the write
// side. This reader assumes one engine-wide operator type.
func (d *Deserializer) operatorTypeOf(v *VarRec) operator.Type {
	if !v.HasOperator {
		return operator.TypeNone
	}
	return d.defaultOperator
}
