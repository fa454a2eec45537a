// Package stager implements the append-only byte vector a writer stages
// step data into before it is handed to the transport layer. Built on a
// pooled chunked-growth byte buffer (growing capacity without copying
// already-placed bytes) and the offset bookkeeping a columnar numeric
// encoder performs while it appends payloads.
package stager

import (
	"fmt"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/internal/pool"
)

// MemSpace tags which memory a source buffer lives in. BP5 proper
// distinguishes host and device (GPU) memory so a deferred copy can be
// scheduled on the right queue; this module only ever stages host memory; the
// tag exists so callers built against accelerator-resident arrays have a
// place to say so without breaking the AddToVec signature later.
type MemSpace uint8

const (
	MemSpaceHost MemSpace = iota
	MemSpaceDevice
)

// BufferPos locates a previously staged region: which chunk it lives in and
// its byte offset within that chunk. GlobalPos is the offset as seen from
// the start of the fully-assembled step buffer, stable from the moment
// AddToVec or Allocate returns it.
type BufferPos struct {
	ChunkIndex int
	Offset     int
	GlobalPos  uint64
	Size       int
}

type deferredExtern struct {
	pos MemSpace
	src []byte
	at  BufferPos
}

// BufferV is an append-only, chunked byte vector. Once a chunk is full it is
// left alone and a new one is started, so a BufferPos handed out earlier
// never dangles even as more data is staged: only the chunk slice header
// moves, never its backing array.
type BufferV struct {
	chunks    [][]byte
	priorLen  []uint64 // priorLen[i] = sum of all chunks' lengths before chunk i, pinned once chunk i+1 starts
	chunkCap  int
	deferred  []deferredExtern
	bufs      []*pool.ByteBuffer
}

// New creates an empty BufferV. chunkCap sizes new chunks; a single AddToVec
// or Allocate call larger than chunkCap gets a dedicated oversized chunk.
func New(chunkCap int) *BufferV {
	if chunkCap <= 0 {
		chunkCap = pool.StepBufferDefaultSize
	}
	v := &BufferV{chunkCap: chunkCap}
	v.newChunk(chunkCap)
	return v
}

func (v *BufferV) newChunk(capHint int) {
	bb := pool.GetStepBuffer()
	if bb.Cap() < capHint {
		bb.Grow(capHint)
	}
	var prior uint64
	if n := len(v.priorLen); n > 0 {
		prior = v.priorLen[n-1] + uint64(len(v.chunks[n-1]))
	}
	v.bufs = append(v.bufs, bb)
	// Cap the chunk's usable window at capHint even though the pooled buffer
	// may carry more capacity from a prior, larger use: chunkCap governs how
	// much a chunk holds before a new one starts, independent of what the
	// pool happens to hand back.
	v.chunks = append(v.chunks, bb.Bytes()[:0:capHint])
	v.priorLen = append(v.priorLen, prior)
}

func pad(n, align int) int {
	if align <= 1 {
		return 0
	}
	if r := n % align; r != 0 {
		return align - r
	}
	return 0
}

// Size returns the total number of bytes staged across all chunks.
func (v *BufferV) Size() uint64 {
	last := len(v.chunks) - 1
	return v.priorLen[last] + uint64(len(v.chunks[last]))
}

// Allocate reserves size bytes aligned to align within the current (or a
// fresh) chunk and returns their position without writing anything; the
// caller fills the region via GetPtr. Used for Span puts, whose bytes the
// caller writes in place after Marshal returns.
func (v *BufferV) Allocate(size, align int) (BufferPos, error) {
	if size < 0 {
		return BufferPos{}, fmt.Errorf("%w: stager: negative allocation size %d", errs.ErrInvalidArgument, size)
	}

	idx := len(v.chunks) - 1
	chunk := v.chunks[idx]
	padding := pad(len(chunk), align)

	if len(chunk)+padding+size > cap(chunk) {
		if size+align > v.chunkCap {
			v.newChunk(size + align)
		} else {
			v.newChunk(v.chunkCap)
		}
		idx = len(v.chunks) - 1
		chunk = v.chunks[idx]
		padding = pad(len(chunk), align)
	}

	offset := len(chunk) + padding
	newLen := offset + size
	if newLen > cap(chunk) {
		return BufferPos{}, fmt.Errorf("%w: stager: allocation of %d bytes exceeds chunk capacity", errs.ErrInvalidArgument, size)
	}

	chunk = chunk[:newLen]
	for i := offset - padding; i < newLen; i++ {
		chunk[i] = 0
	}
	v.chunks[idx] = chunk

	return BufferPos{
		ChunkIndex: idx,
		Offset:     offset,
		GlobalPos:  v.priorLen[idx] + uint64(offset),
		Size:       size,
	}, nil
}

// AddToVec copies src (len(src) bytes) into the buffer, 0-padding to align
// first, and returns its stable position. If forceCopy is false and src is
// non-nil, the copy is deferred: space is reserved immediately (so the
// returned position is final and other callers may keep appending), but the
// bytes are not moved until DumpDeferredBlocks runs. Callers using deferred
// mode must not mutate src before that point.
func (v *BufferV) AddToVec(size int, src []byte, align int, forceCopy bool, ms MemSpace) (BufferPos, error) {
	pos, err := v.Allocate(size, align)
	if err != nil {
		return BufferPos{}, err
	}

	if src == nil {
		return pos, nil
	}
	if len(src) != size {
		return BufferPos{}, fmt.Errorf("%w: stager: src length %d does not match declared size %d", errs.ErrInvalidArgument, len(src), size)
	}

	if forceCopy {
		copy(v.chunks[pos.ChunkIndex][pos.Offset:pos.Offset+size], src)
		return pos, nil
	}

	v.deferred = append(v.deferred, deferredExtern{pos: ms, src: src, at: pos})
	return pos, nil
}

// DownsizeLastAlloc shrinks the most recent Allocate/AddToVec call (by
// chunk index) to newSize bytes, reclaiming the tail of the chunk for
// further allocation. Suited to a region reserved at a worst-case bound
// and then only partly filled, such as compressed output.
func (v *BufferV) DownsizeLastAlloc(last BufferPos, newSize int) (BufferPos, error) {
	if newSize < 0 || newSize > last.Size {
		return BufferPos{}, fmt.Errorf("%w: stager: downsize %d exceeds original size %d", errs.ErrInvalidArgument, newSize, last.Size)
	}
	if last.ChunkIndex != len(v.chunks)-1 {
		return BufferPos{}, fmt.Errorf("%w: stager: downsize target is not the most recent allocation", errs.ErrStagerMisuse)
	}

	chunk := v.chunks[last.ChunkIndex]
	if last.Offset+last.Size != len(chunk) {
		return BufferPos{}, fmt.Errorf("%w: stager: downsize target is not the tail of its chunk", errs.ErrStagerMisuse)
	}

	v.chunks[last.ChunkIndex] = chunk[:last.Offset+newSize]
	last.Size = newSize
	return last, nil
}

// GetPtr returns the live byte slice backing pos, for in-place writes after
// Allocate or for reading back staged data.
func (v *BufferV) GetPtr(pos BufferPos) []byte {
	return v.chunks[pos.ChunkIndex][pos.Offset : pos.Offset+pos.Size]
}

// ReadAt returns the length bytes starting at globalPos, the offset into the
// fully-assembled buffer recorded in a DataBlockLocation slot. A single
// Allocate/AddToVec call never spans two chunks, so a block's bytes always
// live entirely within whichever chunk contains globalPos.
func (v *BufferV) ReadAt(globalPos uint64, length int) ([]byte, error) {
	for i, prior := range v.priorLen {
		chunkLen := uint64(len(v.chunks[i]))
		if globalPos < prior || globalPos >= prior+chunkLen {
			continue
		}
		off := int(globalPos - prior)
		if off+length > len(v.chunks[i]) {
			return nil, fmt.Errorf("%w: stager: read of %d bytes at %d exceeds chunk bounds", errs.ErrInvalidArgument, length, globalPos)
		}
		return v.chunks[i][off : off+length], nil
	}
	return nil, fmt.Errorf("%w: stager: offset %d not found in any staged chunk", errs.ErrInvalidArgument, globalPos)
}

// DumpDeferredBlocks copies every pending deferred source into its reserved
// region and clears the pending list. Called once, at step close, after the
// caller guarantees no deferred source will be mutated further.
func (v *BufferV) DumpDeferredBlocks() {
	for _, d := range v.deferred {
		copy(v.chunks[d.at.ChunkIndex][d.at.Offset:d.at.Offset+d.at.Size], d.src)
	}
	v.deferred = v.deferred[:0]
}

// PendingDeferred reports how many deferred externals are still unflushed.
func (v *BufferV) PendingDeferred() int {
	return len(v.deferred)
}

// Chunks returns the live backing slices in order, for handing off to a
// transport layer without a final copy.
func (v *BufferV) Chunks() [][]byte {
	return v.chunks
}

// Reset releases all chunks back to the pool and starts over, retaining
// chunkCap for the next step.
func (v *BufferV) Reset() {
	for _, bb := range v.bufs {
		pool.PutStepBuffer(bb)
	}
	v.bufs = v.bufs[:0]
	v.chunks = v.chunks[:0]
	v.priorLen = v.priorLen[:0]
	v.deferred = v.deferred[:0]
	v.newChunk(v.chunkCap)
}
