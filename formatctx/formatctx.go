// Package formatctx implements the self-describing schema registry a
// writer and reader share: it interns record layouts, assigns them stable
// IDs, emits the "meta-meta" descriptor blobs that travel alongside data so
// a reader never needs an out-of-band schema, and on the read side decodes
// records either in place (zero-copy, when the incoming layout is
// byte-compatible with the reader's local layout) or into a scratch buffer.
//
// Built on a format-negotiation pattern (a fixed magic + version prefix
// identifying a blob's encoding before any field is read) and an endian
// engine, generalized from "one of two fixed schemas" to "any registered
// schema", since record layouts here are not fixed in advance.
package formatctx

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/internal/hash"
	"github.com/bp5io/bp5/section"
)

// FormatHandle is the stable identifier of a registered layout, derived by
// hashing its canonical encoding. Two layouts that are byte-identical
// always hash to the same handle, satisfying Register's idempotence
// requirement without a central counter.
type FormatHandle uint64

// idBlobSize is the fixed size of a FormatHandle's on-wire ID blob.
const idBlobSize = 8

type registered struct {
	handle FormatHandle
	layout section.Layout
}

// conversion records, for one previously-unseen incoming format, whether
// its layout is byte-compatible with the reader's local layout for that
// same logical record (in which case decoding may alias the incoming bytes
// directly) and the local layout against which DecodeToBuffer matches
// fields by name when it is not.
type conversion struct {
	local    section.Layout
	inPlace  bool
}

// FormatContext is safe for concurrent use: a single instance is typically
// shared by every writer rank's Serializer and by a reader's Deserializer
// within one process.
type FormatContext struct {
	mu          sync.RWMutex
	byHandle    map[FormatHandle]registered
	conversions map[FormatHandle]conversion
}

// New returns an empty FormatContext.
func New() *FormatContext {
	return &FormatContext{
		byHandle:    make(map[FormatHandle]registered),
		conversions: make(map[FormatHandle]conversion),
	}
}

func handleFor(layout section.Layout) FormatHandle {
	return FormatHandle(hash.ID(layout.Canonical()))
}

// Register interns layout, returning its FormatHandle and, when the layout
// was not already known, the id and descriptor blobs that together form the
// meta-meta a writer must surface in its next TimestepInfo. isNew is false
// (and the blobs nil) when an equal layout was already registered, matching
// Register's idempotence requirement.
func (fc *FormatContext) Register(layout section.Layout) (handle FormatHandle, idBlob, infoBlob []byte, isNew bool) {
	handle = handleFor(layout)

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if _, ok := fc.byHandle[handle]; ok {
		return handle, nil, nil, false
	}

	fc.byHandle[handle] = registered{handle: handle, layout: layout}
	return handle, encodeIDBlob(handle), encodeInfoBlob(layout), true
}

// InstallMetaMeta decodes a meta-meta (id blob, info blob) pair received
// from a transport and registers the layout it describes, as if Register
// had been called locally with the same layout. Idempotent: installing the
// same id twice is a no-op.
func (fc *FormatContext) InstallMetaMeta(idBlob, infoBlob []byte) (FormatHandle, error) {
	handle, err := decodeIDBlob(idBlob)
	if err != nil {
		return 0, err
	}

	fc.mu.RLock()
	_, known := fc.byHandle[handle]
	fc.mu.RUnlock()
	if known {
		return handle, nil
	}

	layout, err := decodeInfoBlob(infoBlob)
	if err != nil {
		return 0, err
	}
	if got := handleFor(layout); got != handle {
		return 0, fmt.Errorf("%w: meta-meta id %x does not match its descriptor's hash %x", errs.ErrUnknownFormatID, handle, got)
	}

	fc.mu.Lock()
	fc.byHandle[handle] = registered{handle: handle, layout: layout}
	fc.mu.Unlock()

	return handle, nil
}

// Layout returns the registered layout for handle, if known.
func (fc *FormatContext) Layout(handle FormatHandle) (section.Layout, bool) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	reg, ok := fc.byHandle[handle]
	if !ok {
		return section.Layout{}, false
	}
	return reg.layout, true
}

// IdentifyIncoming reads the leading format ID off a metadata record and
// returns the handle of its previously-registered layout.
func (fc *FormatContext) IdentifyIncoming(record []byte) (FormatHandle, error) {
	handle, err := decodeIDBlob(record)
	if err != nil {
		return 0, err
	}

	fc.mu.RLock()
	_, ok := fc.byHandle[handle]
	fc.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: handle %x", errs.ErrUnknownFormatID, uint64(handle))
	}

	return handle, nil
}

// EstablishConversion is required once per previously-unseen incoming
// format before DecodeInPlace/DecodeToBuffer may be called for it. local is
// the reader's own layout for the same logical record (e.g. its own most
// recently registered layout for that variable's metadata record).
func (fc *FormatContext) EstablishConversion(handle FormatHandle, local section.Layout) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	reg, ok := fc.byHandle[handle]
	if !ok {
		return fmt.Errorf("%w: handle %x", errs.ErrUnknownFormatID, uint64(handle))
	}

	fc.conversions[handle] = conversion{
		local:   local,
		inPlace: reg.layout.Equal(local),
	}
	return nil
}

// EstimateDecodeSize reports the scratch buffer size DecodeToBuffer needs
// for handle, once EstablishConversion has run for it.
func (fc *FormatContext) EstimateDecodeSize(handle FormatHandle) (int, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	conv, ok := fc.conversions[handle]
	if !ok {
		return 0, fmt.Errorf("%w: EstablishConversion required before decode", errs.ErrMetaMetaNotEstablished)
	}
	return conv.local.RecordSize(), nil
}

// Record is a decoded metadata record: its originating layout plus the
// bytes backing it (either aliasing the incoming buffer, for in-place
// decodes, or owned scratch space).
type Record struct {
	Layout section.Layout
	Data   []byte
}

// Field returns the raw bytes of the named field within r, and whether the
// field was present.
func (r Record) Field(name string) ([]byte, bool) {
	for _, f := range r.Layout.Fields {
		if f.Name == name {
			if f.Offset+f.Size > len(r.Data) {
				return nil, false
			}
			return r.Data[f.Offset : f.Offset+f.Size], true
		}
	}
	return nil, false
}

// DecodeInPlace returns a Record aliasing raw directly, valid only when
// EstablishConversion found handle's layout byte-compatible with the
// reader's local layout; callers must check that first (or just always
// call DecodeToBuffer, which falls back to a copy automatically).
func (fc *FormatContext) DecodeInPlace(handle FormatHandle, raw []byte) (Record, error) {
	fc.mu.RLock()
	reg, regOK := fc.byHandle[handle]
	conv, convOK := fc.conversions[handle]
	fc.mu.RUnlock()

	if !regOK {
		return Record{}, fmt.Errorf("%w: handle %x", errs.ErrUnknownFormatID, uint64(handle))
	}
	if !convOK {
		return Record{}, fmt.Errorf("%w: EstablishConversion required before decode", errs.ErrMetaMetaNotEstablished)
	}
	if !conv.inPlace {
		return Record{}, fmt.Errorf("%w: incoming layout for handle %x requires field-matched decode, not in-place", errs.ErrRecordLayoutMismatch, uint64(handle))
	}

	return Record{Layout: reg.layout, Data: raw}, nil
}

// DecodeToBuffer decodes raw into dst (sized at least EstimateDecodeSize),
// matching fields by name between the incoming layout and the reader's
// local layout and zero-filling any local field the incoming record lacks.
// Used whenever the layouts are not byte-compatible, and always safe to
// call even when they are (at the cost of a copy DecodeInPlace would
// avoid).
func (fc *FormatContext) DecodeToBuffer(handle FormatHandle, raw []byte, dst []byte) (Record, error) {
	fc.mu.RLock()
	reg, regOK := fc.byHandle[handle]
	conv, convOK := fc.conversions[handle]
	fc.mu.RUnlock()

	if !regOK {
		return Record{}, fmt.Errorf("%w: handle %x", errs.ErrUnknownFormatID, uint64(handle))
	}
	if !convOK {
		return Record{}, fmt.Errorf("%w: EstablishConversion required before decode", errs.ErrMetaMetaNotEstablished)
	}

	need := conv.local.RecordSize()
	if len(dst) < need {
		return Record{}, fmt.Errorf("%w: decode buffer has %d bytes, need %d", errs.ErrInvalidArgument, len(dst), need)
	}
	dst = dst[:need]
	for i := range dst {
		dst[i] = 0
	}

	incoming := reg.layout
	for _, lf := range conv.local.Fields {
		for _, inf := range incoming.Fields {
			if inf.Name != lf.Name {
				continue
			}
			n := inf.Size
			if lf.Size < n {
				n = lf.Size
			}
			if inf.Offset+n > len(raw) {
				return Record{}, fmt.Errorf("%w: truncated field %q", errs.ErrTruncatedBlock, lf.Name)
			}
			copy(dst[lf.Offset:lf.Offset+n], raw[inf.Offset:inf.Offset+n])
			break
		}
	}

	return Record{Layout: conv.local, Data: dst}, nil
}

// dumpEnabled caches the BP5DumpMetadata environment toggle, read once at
// first use rather than on every Dump call.
var dumpEnabled = sync.OnceValue(func() bool {
	return os.Getenv("BP5DumpMetadata") != ""
})

// DumpEnabled reports whether human-readable metadata dumping is active.
func DumpEnabled() bool { return dumpEnabled() }

// Dump writes a human-readable field/value listing of r to w. Every value is
// rendered as a hex byte string; callers needing typed values should read
// them out of the section.MetaArray the field deserializes into instead —
// Dump exists purely for interactive debugging, gated by DumpEnabled.
func Dump(w io.Writer, r Record) {
	for _, f := range r.Layout.Fields {
		data, ok := r.Field(f.Name)
		if !ok {
			fmt.Fprintf(w, "  %-24s <missing>\n", f.Name)
			continue
		}
		fmt.Fprintf(w, "  %-24s %s = % x\n", f.Name, f.TypeString, data)
	}
}

func encodeIDBlob(h FormatHandle) []byte {
	b := make([]byte, idBlobSize)
	binary.LittleEndian.PutUint64(b, uint64(h))
	return b
}

func decodeIDBlob(b []byte) (FormatHandle, error) {
	if len(b) < idBlobSize {
		return 0, fmt.Errorf("%w: id blob shorter than %d bytes", errs.ErrTruncatedBlock, idBlobSize)
	}
	return FormatHandle(binary.LittleEndian.Uint64(b[:idBlobSize])), nil
}

// encodeInfoBlob serializes layout as:
//
//	u32 fieldCount
//	for each field: u32 nameLen, name, u32 typeLen, typeString, u8 elemType, u32 size, u32 offset
func encodeInfoBlob(layout section.Layout) []byte {
	size := 4
	for _, f := range layout.Fields {
		size += 4 + len(f.Name) + 4 + len(f.TypeString) + 1 + 4 + 4
	}

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(layout.Fields)))
	off += 4
	for _, f := range layout.Fields {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.Name)))
		off += 4
		off += copy(buf[off:], f.Name)
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.TypeString)))
		off += 4
		off += copy(buf[off:], f.TypeString)
		buf[off] = uint8(f.ElemType)
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(f.Size))
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], uint32(f.Offset))
		off += 4
	}

	return buf
}

func decodeInfoBlob(buf []byte) (section.Layout, error) {
	if len(buf) < 4 {
		return section.Layout{}, fmt.Errorf("%w: info blob shorter than 4 bytes", errs.ErrTruncatedBlock)
	}
	n := binary.LittleEndian.Uint32(buf)
	off := 4

	readU32 := func() (uint32, error) {
		if off+4 > len(buf) {
			return 0, fmt.Errorf("%w: info blob truncated", errs.ErrTruncatedBlock)
		}
		v := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		return v, nil
	}
	readStr := func() (string, error) {
		l, err := readU32()
		if err != nil {
			return "", err
		}
		if off+int(l) > len(buf) {
			return "", fmt.Errorf("%w: info blob truncated", errs.ErrTruncatedBlock)
		}
		s := string(buf[off : off+int(l)])
		off += int(l)
		return s, nil
	}
	readByte := func() (byte, error) {
		if off+1 > len(buf) {
			return 0, fmt.Errorf("%w: info blob truncated", errs.ErrTruncatedBlock)
		}
		b := buf[off]
		off++
		return b, nil
	}

	layout := section.Layout{Fields: make([]section.FieldDescriptor, 0, n)}
	for i := uint32(0); i < n; i++ {
		name, err := readStr()
		if err != nil {
			return section.Layout{}, err
		}
		typeString, err := readStr()
		if err != nil {
			return section.Layout{}, err
		}
		elemType, err := readByte()
		if err != nil {
			return section.Layout{}, err
		}
		size, err := readU32()
		if err != nil {
			return section.Layout{}, err
		}
		offset, err := readU32()
		if err != nil {
			return section.Layout{}, err
		}
		layout.Fields = append(layout.Fields, section.FieldDescriptor{
			Name:       name,
			ElemType:   format.ElementType(elemType),
			TypeString: typeString,
			Size:       int(size),
			Offset:     int(offset),
		})
	}

	return layout, nil
}
