package section

import (
	"strings"

	"github.com/bp5io/bp5/format"
)

// FieldDescriptor is one field of a record layout: an ordered
// (name, type-string, size, offset) tuple. TypeString is the
// human-readable wire tag (used by Dump and cross-layout field matching);
// ElemType is the concrete element type, needed wherever a reader must
// reconstruct a scalar's exact type rather than just its category (a wire
// tag of "integer" alone cannot distinguish Int32 from Int64).
type FieldDescriptor struct {
	Name       string
	TypeString string
	ElemType   format.ElementType
	Size       int
	Offset     int
}

// Layout is an ordered list of field descriptors describing one step's
// metadata record shape. Two layouts are considered equal (and therefore
// intern to the same FormatHandle) iff their field lists are identical in
// order, name, type string, size and offset.
type Layout struct {
	Fields []FieldDescriptor
}

// Equal reports whether l and other describe byte-identical record layouts.
func (l Layout) Equal(other Layout) bool {
	if len(l.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range l.Fields {
		o := other.Fields[i]
		if f.Name != o.Name || f.TypeString != o.TypeString || f.ElemType != o.ElemType || f.Size != o.Size || f.Offset != o.Offset {
			return false
		}
	}

	return true
}

// Canonical returns a deterministic string encoding of the layout, stable
// across processes, suitable as input to a content hash (FormatContext uses
// this to derive the meta-meta ID).
func (l Layout) Canonical() string {
	var b strings.Builder
	for _, f := range l.Fields {
		b.WriteString(f.Name)
		b.WriteByte('\x00')
		b.WriteString(f.TypeString)
		b.WriteByte('\x00')
		b.WriteString(itoa(int(f.ElemType)))
		b.WriteByte('\x00')
		b.WriteString(itoa(f.Size))
		b.WriteByte('\x00')
		b.WriteString(itoa(f.Offset))
		b.WriteByte('\x01')
	}

	return b.String()
}

// RecordSize returns the total byte size implied by the last field's
// offset+size, or RecordPrefixSize if there are no fields.
func (l Layout) RecordSize() int {
	size := RecordPrefixSize
	for _, f := range l.Fields {
		end := f.Offset + f.Size
		if end > size {
			size = end
		}
	}

	return size
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}
