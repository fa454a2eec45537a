package writer

import (
	"github.com/bp5io/bp5/endian"
	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/section"
)

var engine = endian.GetLittleEndianEngine()

// buildLayout describes the current metadata record shape: the bitfield and
// data-block-size prefix fields, then one fixed 8-byte slot per variable at
// the offset assigned when it was first seen. A variable's slot offset
// never changes once assigned, even as later variables are registered, so
// two steps that differ only in which variables were actually written this
// step (same registered set, different bitfield) still share one layout.
func (s *Serializer) buildLayout() section.Layout {
	layout := section.Layout{
		Fields: []section.FieldDescriptor{
			{Name: "BitFieldCount", TypeString: "unsigned integer", ElemType: format.TypeUint64, Size: 8, Offset: 8},
			{Name: "DataBlockSize", TypeString: "unsigned integer", ElemType: format.TypeUint64, Size: 8, Offset: 16},
			{Name: "BitFieldOffset", TypeString: "unsigned integer", ElemType: format.TypeUint64, Size: 8, Offset: 24},
		},
	}

	for _, v := range s.vars {
		// Errors are unreachable here: lookupOrCreate already validated this
		// exact (name, shape, operator, stats) combination when the variable
		// was first registered.
		name, _ := section.EncodeFieldName(v.Name, v.ShapeKind, v.Operator != operator.TypeNone, v.Stats)
		layout.Fields = append(layout.Fields, section.FieldDescriptor{
			Name:       name,
			TypeString: v.Type.WireTag(),
			ElemType:   v.Type,
			Size:       8,
			Offset:     v.Offset,
		})
	}

	return layout
}

// encodeMetadataRecord serializes this step's metadata record: a leading
// FormatHandle stamp identifying the record's layout, the fixed prefix, one
// 8-byte slot per variable holding an absolute offset into the trailing
// payload (or 0 when the variable's bitfield bit is clear), and the trailing
// payload itself — the bitfield words followed by each present variable's
// scalar-or-MetaArray payload, in field order.
func (s *Serializer) encodeMetadataRecord(dataSize uint64) []byte {
	recordSize := section.RecordPrefixSize + 8*len(s.vars)

	// The bitfield words always open the trailing payload, so their absolute
	// offset is simply recordSize.
	var payload []byte
	slots := make([]uint64, len(s.vars))

	for _, w := range s.bitfield.Words() {
		payload = engine.AppendUint64(payload, w)
	}

	for i, v := range s.vars {
		if !s.bitfield.Test(v.FieldID) {
			continue
		}

		slots[i] = uint64(recordSize + len(payload))

		if v.Dims == 0 {
			payload = append(payload, section.EncodeScalar(v.scalar)...)
		} else {
			payload = append(payload, section.EncodeMetaArray(v.meta, v.Type)...)
		}
	}

	buf := make([]byte, 0, recordSize+len(payload))
	buf = engine.AppendUint64(buf, uint64(s.handle))
	buf = engine.AppendUint64(buf, uint64(s.bitfield.WordCount()))
	buf = engine.AppendUint64(buf, dataSize)
	buf = engine.AppendUint64(buf, uint64(recordSize))
	for _, slot := range slots {
		buf = engine.AppendUint64(buf, slot)
	}
	buf = append(buf, payload...)

	return buf
}

// encodeAttributes serializes the full attribute table as a sequence of
// (nameLen, name, type byte, elemCount as int32, scalar-or-array payload)
// records; elemCount == -1 marks a scalar attribute, matching
// MarshalAttribute's contract.
func (s *Serializer) encodeAttributes() []byte {
	var buf []byte
	buf = engine.AppendUint32(buf, uint32(len(s.attrOrder)))

	for _, name := range s.attrOrder {
		a := s.attrs[name]
		buf = engine.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
		buf = append(buf, uint8(a.Type))
		buf = engine.AppendUint32(buf, uint32(int32(a.ElemCount)))
		buf = append(buf, section.EncodeScalar(a.Data)...)
	}

	return buf
}

// DecodeAttributes is the exact inverse of encodeAttributes, exported for
// the reader package to consume an AttributesBlob produced by CloseTimestep.
func DecodeAttributes(buf []byte) (map[string]Attribute, []string, error) {
	attrs := make(map[string]Attribute)
	var order []string

	if len(buf) < 4 {
		return attrs, order, nil
	}
	off := 4
	count := engine.Uint32(buf)

	for i := uint32(0); i < count; i++ {
		nameLen := engine.Uint32(buf[off:])
		off += 4
		name := string(buf[off : off+int(nameLen)])
		off += int(nameLen)

		t := format.ElementType(buf[off])
		off++

		elemCount := int32(engine.Uint32(buf[off:]))
		off += 4

		data, consumed, err := section.DecodeScalar(buf[off:])
		if err != nil {
			return nil, nil, err
		}
		off += consumed

		attrs[name] = Attribute{Type: t, ElemCount: int(elemCount), Data: data}
		order = append(order, name)
	}

	return attrs, order, nil
}
