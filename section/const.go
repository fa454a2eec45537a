// Package section defines the packed, self-describing on-wire structs
// shared by the writer and reader: the metadata-record bitfield prefix, the
// MetaArray block-geometry struct, and the field-name encoding that lets
// FormatContext recover shape kind and operator/stats presence from a bare
// field name.
package section

const (
	// MetaMetaMagic is a tag value for meta-meta descriptor blobs.
	// FormatContext neither writes nor checks it.
	MetaMetaMagic uint32 = 0xB9_5A_0001

	// RecordPrefixSize is the fixed byte size of a metadata record's prefix:
	// an 8-byte FormatHandle stamp identifying the record's layout (read by
	// FormatContext.IdentifyIncoming before any field is parsed), followed by
	// BitFieldCount (u64), DataBlockSize (u64), and BitFieldOffset (u64) — a
	// pointer to the variable-length bitfield words, stored in the record's
	// trailing payload area rather than inline, so adding a variable (which
	// can grow the bitfield by a word) never moves an existing variable's
	// fixed slot offset. The handle stamp itself is not a registered layout
	// field: its value is derived from the layout, not part of its shape.
	RecordPrefixSize = 32
)
