// Package aggregate implements the cohort metadata aggregation codec: the
// length-prefixed, 8-byte-aligned blob concatenation a writer-side
// aggregator uses to pack every rank's per-step metadata, attributes, meta-
// meta descriptors, and data-buffer bookkeeping into a single contiguous
// byte vector for the transport, and its exact inverse on the read side.
//
// Built the way a columnar binary encoder appends-as-you-go into a growable
// buffer, using the endian engine for every fixed-width field, with a
// pooled-buffer discipline for scratch space.
package aggregate

import (
	"fmt"

	"github.com/bp5io/bp5/endian"
	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/internal/pool"
)

// MetaMetaBlock is one newly-registered schema descriptor: a stable ID blob
// and its field-list descriptor blob, exactly as produced by
// formatctx.FormatContext.Register.
type MetaMetaBlock struct {
	ID   []byte
	Info []byte
}

var engine = endian.GetLittleEndianEngine()

func align8(n int) int {
	if r := n % 8; r != 0 {
		return n + (8 - r)
	}
	return n
}

func appendAlignedBlob(buf []byte, blob []byte) []byte {
	alignedLen := align8(len(blob))
	buf = engine.AppendUint64(buf, uint64(alignedLen))
	buf = append(buf, blob...)
	if pad := alignedLen - len(blob); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf
}

func readU64(buf []byte, off int) (uint64, int, error) {
	if off+8 > len(buf) {
		return 0, off, fmt.Errorf("%w: aggregate: truncated u64 at offset %d", errs.ErrTruncatedBlock, off)
	}
	return engine.Uint64(buf[off : off+8]), off + 8, nil
}

func readAlignedBlob(buf []byte, off int) ([]byte, int, error) {
	alignedLen, off, err := readU64(buf, off)
	if err != nil {
		return nil, off, err
	}
	end := off + int(alignedLen)
	if end > len(buf) {
		return nil, off, fmt.Errorf("%w: aggregate: truncated blob at offset %d", errs.ErrTruncatedBlock, off)
	}
	return buf[off:end], end, nil
}

// CopyMetadataToContiguous packs a step's cohort-wide metadata into one
// contiguous buffer, per the wire layout:
//
//	u64 NMMB
//	for each MM block: u64 idLen, u64 infoLen, id[idLen], info[infoLen]
//	u64 MB ; for each: u64 alignedLen, blob, zero-pad
//	u64 AB ; for each: u64 alignedLen, blob, zero-pad   (0-length permitted)
//	u64 DS ; DS × u64 dataSize
//	u64 WDP; WDP × u64 writerDataPosition
func CopyMetadataToContiguous(
	newMetaMetaBlocks []MetaMetaBlock,
	metaBlobsPerWriter [][]byte,
	attrBlobsPerWriter [][]byte,
	dataSizesPerWriter []uint64,
	writerDataPositionsPerWriter []uint64,
) ([]byte, error) {
	scratch := pool.GetCohortBuffer()
	defer pool.PutCohortBuffer(scratch)

	buf := scratch.Bytes()[:0]

	buf = engine.AppendUint64(buf, uint64(len(newMetaMetaBlocks)))
	for _, mm := range newMetaMetaBlocks {
		buf = engine.AppendUint64(buf, uint64(len(mm.ID)))
		buf = engine.AppendUint64(buf, uint64(len(mm.Info)))
		buf = append(buf, mm.ID...)
		buf = append(buf, mm.Info...)
	}

	buf = engine.AppendUint64(buf, uint64(len(metaBlobsPerWriter)))
	for _, blob := range metaBlobsPerWriter {
		buf = appendAlignedBlob(buf, blob)
	}

	buf = engine.AppendUint64(buf, uint64(len(attrBlobsPerWriter)))
	for _, blob := range attrBlobsPerWriter {
		buf = appendAlignedBlob(buf, blob)
	}

	buf = engine.AppendUint64(buf, uint64(len(dataSizesPerWriter)))
	for _, ds := range dataSizesPerWriter {
		buf = engine.AppendUint64(buf, ds)
	}

	buf = engine.AppendUint64(buf, uint64(len(writerDataPositionsPerWriter)))
	for _, wdp := range writerDataPositionsPerWriter {
		buf = engine.AppendUint64(buf, wdp)
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Contiguous is the decoded, zero-copy view BreakoutContiguousMetadata
// returns: every slice aliases the input buffer rather than copying it.
type Contiguous struct {
	MetaMetaBlocks      []MetaMetaBlock
	MetaBlobsPerWriter  [][]byte
	AttrBlobsPerWriter  [][]byte
	DataSizesPerWriter  []uint64
	WriterDataPositions []uint64
}

// BreakoutContiguousMetadata is the exact inverse of
// CopyMetadataToContiguous: BreakoutContiguousMetadata(CopyMetadataToContiguous(x))
// reproduces x up to deduplication of meta-meta blocks: a block whose ID was
// already seen earlier in buf is dropped, keeping the first occurrence.
func BreakoutContiguousMetadata(buf []byte) (Contiguous, error) {
	var out Contiguous
	off := 0

	nmmb, off2, err := readU64(buf, off)
	if err != nil {
		return Contiguous{}, err
	}
	off = off2

	seen := map[string]bool{}
	for i := uint64(0); i < nmmb; i++ {
		idLen, o, err := readU64(buf, off)
		if err != nil {
			return Contiguous{}, err
		}
		off = o
		infoLen, o, err := readU64(buf, off)
		if err != nil {
			return Contiguous{}, err
		}
		off = o

		if off+int(idLen)+int(infoLen) > len(buf) {
			return Contiguous{}, fmt.Errorf("%w: aggregate: truncated meta-meta block %d", errs.ErrTruncatedBlock, i)
		}
		id := buf[off : off+int(idLen)]
		off += int(idLen)
		info := buf[off : off+int(infoLen)]
		off += int(infoLen)

		key := string(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.MetaMetaBlocks = append(out.MetaMetaBlocks, MetaMetaBlock{ID: id, Info: info})
	}

	mb, o, err := readU64(buf, off)
	if err != nil {
		return Contiguous{}, err
	}
	off = o
	for i := uint64(0); i < mb; i++ {
		blob, o, err := readAlignedBlob(buf, off)
		if err != nil {
			return Contiguous{}, err
		}
		off = o
		out.MetaBlobsPerWriter = append(out.MetaBlobsPerWriter, blob)
	}

	ab, o, err := readU64(buf, off)
	if err != nil {
		return Contiguous{}, err
	}
	off = o
	for i := uint64(0); i < ab; i++ {
		blob, o, err := readAlignedBlob(buf, off)
		if err != nil {
			return Contiguous{}, err
		}
		off = o
		out.AttrBlobsPerWriter = append(out.AttrBlobsPerWriter, blob)
	}

	ds, o, err := readU64(buf, off)
	if err != nil {
		return Contiguous{}, err
	}
	off = o
	for i := uint64(0); i < ds; i++ {
		v, o, err := readU64(buf, off)
		if err != nil {
			return Contiguous{}, err
		}
		off = o
		out.DataSizesPerWriter = append(out.DataSizesPerWriter, v)
	}

	wdp, o, err := readU64(buf, off)
	if err != nil {
		return Contiguous{}, err
	}
	off = o
	for i := uint64(0); i < wdp; i++ {
		v, o, err := readU64(buf, off)
		if err != nil {
			return Contiguous{}, err
		}
		off = o
		out.WriterDataPositions = append(out.WriterDataPositions, v)
	}

	return out, nil
}
