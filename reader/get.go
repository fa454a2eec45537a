package reader

import (
	"fmt"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/stager"
)

// GetRequest describes one variable retrieval. Exactly one addressing mode
// applies: BlockID selects one writer's block directly (a Local request);
// Start/Count describe a bounding box in the variable's global index space
// (a Global request). When neither is set, a Global request over the full
// GlobalShape is assumed.
//
// StepsCount > 0 requests random access: StepsStart/StepsCount index into
// GetAbsoluteSteps' sparse list, and Dst receives each resolved step's bytes
// concatenated in order. StepsCount == 0 (the default) targets the step
// most recently named by SetupForStep.
type GetRequest struct {
	VarName  string
	Dst      []byte
	MemSpace stager.MemSpace

	BlockID *int
	Start   []uint64
	Count   []uint64

	StepsStart int
	StepsCount int
}

// pendingGet is a queued array request awaiting GenerateReadRequests.
// Scalar requests never reach this struct: QueueGet resolves them
// synchronously from already-installed metadata.
type pendingGet struct {
	varIdx   int
	dst      []byte
	memSpace stager.MemSpace
	blockID  *int
	start    []uint64
	count    []uint64
	steps    []uint64
}

// readResolve is the bookkeeping FinalizeGet needs to scatter one
// ReadRequest's fetched bytes into the caller's destination; it never
// travels over a transport, unlike the rest of ReadRequest's fields.
type readResolve struct {
	elemSize         int
	hasOperator      bool
	opType           operator.Type
	uncompressedSize int
	memSpace         stager.MemSpace
	dst              []byte
	srcStart         []uint64
	srcCount         []uint64
	srcRowMajor      bool
	dstStart         []uint64
	dstCount         []uint64
	dstRowMajor      bool
}

// ReadRequest is one transport-level read: fetch ReadLength bytes from
// writer WriterRank's step-Timestep data buffer starting at StartOffset,
// and place them in DestinationAddr before calling FinalizeGet.
type ReadRequest struct {
	Timestep        uint64
	WriterRank      int
	StartOffset     uint64
	ReadLength      int
	DestinationAddr []byte
	OffsetInBlock   int
	ReqIndex        int
	BlockID         int
	Internal        any

	resolve readResolve
}

func (d *Deserializer) resolveSteps(v *VarRec, req GetRequest) ([]uint64, error) {
	if req.StepsCount > 0 {
		if req.StepsStart < 0 || req.StepsStart+req.StepsCount > len(v.absSteps) {
			return nil, fmt.Errorf("%w: steps [%d,%d) exceed %d available for %q", errs.ErrStepRangeOutOfBounds, req.StepsStart, req.StepsStart+req.StepsCount, len(v.absSteps), v.Name)
		}
		out := make([]uint64, req.StepsCount)
		copy(out, v.absSteps[req.StepsStart:req.StepsStart+req.StepsCount])
		return out, nil
	}
	if !d.haveStep {
		return nil, fmt.Errorf("%w: SetupForStep required before a current-step Get", errs.ErrInvalidArgument)
	}
	return []uint64{d.curStep}, nil
}

// QueueGet queues req for later resolution, or — for scalar variables,
// whose values are already fully present in installed metadata — resolves
// it immediately. The returned bool reports whether a transport round trip
// through GenerateReadRequests/FinalizeGet is still required.
func (d *Deserializer) QueueGet(req GetRequest) (bool, error) {
	v, idx, ok := d.varByName(req.VarName)
	if !ok {
		return false, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, req.VarName)
	}
	if req.BlockID != nil && (req.Start != nil || req.Count != nil) {
		return false, fmt.Errorf("%w: BlockID and Start/Count are mutually exclusive", errs.ErrInvalidArgument)
	}

	steps, err := d.resolveSteps(v, req)
	if err != nil {
		return false, err
	}

	if !v.ShapeKind.IsArray() {
		return false, d.resolveScalarGet(v, req, steps)
	}

	start, count := req.Start, req.Count
	if req.BlockID == nil && count == nil {
		if v.GlobalShape == nil {
			return false, fmt.Errorf("%w: %q has no known global shape for a default Get", errs.ErrInvalidSelection, req.VarName)
		}
		count = v.GlobalShape
		start = make([]uint64, len(count))
	}

	d.pending = append(d.pending, &pendingGet{
		varIdx:   idx,
		dst:      req.Dst,
		memSpace: req.MemSpace,
		blockID:  req.BlockID,
		start:    start,
		count:    count,
		steps:    steps,
	})
	return true, nil
}

func (d *Deserializer) resolveScalarGet(v *VarRec, req GetRequest, steps []uint64) error {
	elemSize := v.ElemSize
	if elemSize == 0 {
		elemSize = 1
	}

	off := 0
	for _, step := range steps {
		if off+elemSize > len(req.Dst) {
			return fmt.Errorf("%w: destination buffer too small for scalar get of %q", errs.ErrInvalidArgument, req.VarName)
		}

		writerRank := 0
		if req.BlockID != nil {
			writerRank = *req.BlockID
		}
		if byWriter, ok := v.steps[step]; ok {
			if wb, ok := byWriter[writerRank]; ok && len(wb.scalar) == elemSize {
				copy(req.Dst[off:off+elemSize], wb.scalar)
			}
		}
		off += elemSize
	}
	return nil
}

// GenerateReadRequests plans every queued array Get against the
// currently-installed metadata, clearing the pending queue. When
// allocTempBuffers is set, each ReadRequest's DestinationAddr is
// pre-allocated to exactly ReadLength bytes; otherwise the caller must size
// and attach it before calling FinalizeGet. maxReadSize is the largest
// single ReadLength across the returned requests.
func (d *Deserializer) GenerateReadRequests(allocTempBuffers bool) ([]*ReadRequest, int, error) {
	var out []*ReadRequest
	maxReadSize := 0

	for _, p := range d.pending {
		v := d.vars[p.varIdx]
		elemSize := v.ElemSize
		if elemSize == 0 {
			elemSize = 1
		}

		dstOff := 0
		for _, step := range p.steps {
			var stepReqs []*ReadRequest
			var stepBytes int
			var err error

			if p.blockID != nil {
				stepReqs, stepBytes, err = d.planLocal(v, step, *p.blockID, elemSize)
			} else {
				stepReqs, stepBytes, err = d.planGlobal(v, step, p.start, p.count, elemSize)
			}
			if err != nil {
				return nil, 0, err
			}

			if dstOff+stepBytes > len(p.dst) {
				return nil, 0, fmt.Errorf("%w: destination buffer too small for queued get of %q", errs.ErrInvalidArgument, v.Name)
			}
			stepDst := p.dst[dstOff : dstOff+stepBytes]

			for _, rr := range stepReqs {
				rr.resolve.dst = stepDst
				rr.resolve.memSpace = p.memSpace
				rr.ReqIndex = len(out)
				if allocTempBuffers {
					rr.DestinationAddr = make([]byte, rr.ReadLength)
				}
				if rr.ReadLength > maxReadSize {
					maxReadSize = rr.ReadLength
				}
				out = append(out, rr)
			}
			dstOff += stepBytes
		}
	}

	d.pending = nil
	return out, maxReadSize, nil
}

func zerosLike(count []uint64) []uint64 { return make([]uint64, len(count)) }

func productU64(xs []uint64) uint64 {
	p := uint64(1)
	for _, x := range xs {
		p *= x
	}
	return p
}

// intersectBox returns the overlap of [aStart, aStart+aCount) and
// [bStart, bStart+bCount), or ok == false when any dimension misses.
func intersectBox(aStart, aCount, bStart, bCount []uint64) (start, count []uint64, ok bool) {
	start = make([]uint64, len(aCount))
	count = make([]uint64, len(aCount))
	for i := range aCount {
		if aCount[i] == 0 || bCount[i] == 0 {
			return nil, nil, false
		}
		lo := aStart[i]
		if bStart[i] > lo {
			lo = bStart[i]
		}
		aHi, bHi := aStart[i]+aCount[i]-1, bStart[i]+bCount[i]-1
		hi := aHi
		if bHi < hi {
			hi = bHi
		}
		if hi < lo {
			return nil, nil, false
		}
		start[i] = lo
		count[i] = hi - lo + 1
	}
	return start, count, true
}

// linearIndex maps an N-dimensional position within a dense, count-shaped
// block to the element offset that position holds in the block's own byte
// layout — row-major if rowMajor, column-major otherwise.
func linearIndex(count, pos []uint64, rowMajor bool) uint64 {
	var off uint64
	if rowMajor {
		for d := 0; d < len(count); d++ {
			off = off*count[d] + pos[d]
		}
	} else {
		for d := len(count) - 1; d >= 0; d-- {
			off = off*count[d] + pos[d]
		}
	}
	return off
}

// planLocal finds the single block identified by a global blockID — a
// running count across every writer's blocks for this step, in writer-rank
// order — and emits a whole-block read for it.
func (d *Deserializer) planLocal(v *VarRec, step uint64, blockID, elemSize int) ([]*ReadRequest, int, error) {
	nodeFirst := 0
	for _, w := range v.writersAt(step) {
		wb := v.steps[step][w]
		if wb == nil || wb.meta == nil {
			continue
		}
		bc := wb.meta.BlockCount
		if blockID < nodeFirst || blockID >= nodeFirst+bc {
			nodeFirst += bc
			continue
		}

		local := blockID - nodeFirst
		count := wb.meta.BlockCountAt(local)
		elems := productU64(count)
		size := int(elems) * elemSize

		rr := &ReadRequest{Timestep: step, WriterRank: w, BlockID: blockID}
		if wb.meta.HasOperator() {
			rr.StartOffset = wb.meta.DataBlockLocation[local]
			rr.ReadLength = int(wb.meta.DataBlockSize[local])
			rr.resolve.hasOperator = true
			rr.resolve.opType = d.operatorTypeOf(v)
			rr.resolve.uncompressedSize = size
		} else {
			rr.StartOffset = wb.meta.DataBlockLocation[local]
			rr.ReadLength = size
		}
		rr.resolve.elemSize = elemSize
		rr.resolve.srcStart = zerosLike(count)
		rr.resolve.srcCount = count
		rr.resolve.srcRowMajor = d.writerRowMajor
		rr.resolve.dstStart = zerosLike(count)
		rr.resolve.dstCount = count
		rr.resolve.dstRowMajor = d.rowMajor

		return []*ReadRequest{rr}, size, nil
	}

	return nil, 0, fmt.Errorf("%w: block id %d not found for %q at step %d", errs.ErrInvalidSelection, blockID, v.Name, step)
}

// planGlobal emits one read per writer block that intersects [start,
// start+count), skipping blocks with no overlap. When the block carries no
// operator, the read is narrowed to the minimal contiguous byte run in the
// block's own layout spanning the intersection, rather than the whole
// block; an operator-bearing block still needs its full compressed bytes to
// decompress.
func (d *Deserializer) planGlobal(v *VarRec, step uint64, start, count []uint64, elemSize int) ([]*ReadRequest, int, error) {
	stepBytes := int(productU64(count)) * elemSize

	var reqs []*ReadRequest
	blockID := 0
	for _, w := range v.writersAt(step) {
		wb := v.steps[step][w]
		if wb == nil || wb.meta == nil {
			continue
		}

		for b := 0; b < wb.meta.BlockCount; b, blockID = b+1, blockID+1 {
			blkCount := wb.meta.BlockCountAt(b)
			blkOffsets := wb.meta.BlockOffsetsAt(b)
			if blkOffsets == nil {
				blkOffsets = zerosLike(blkCount)
			}

			ixStart, ixCount, ok := intersectBox(start, count, blkOffsets, blkCount)
			if !ok {
				continue
			}

			elems := productU64(blkCount)
			rr := &ReadRequest{Timestep: step, WriterRank: w, BlockID: blockID}
			if wb.meta.HasOperator() {
				// An operator needs the whole compressed block to decompress,
				// so there is no minimal byte range to compute.
				rr.StartOffset = wb.meta.DataBlockLocation[b]
				rr.ReadLength = int(wb.meta.DataBlockSize[b])
				rr.resolve.hasOperator = true
				rr.resolve.opType = d.operatorTypeOf(v)
				rr.resolve.uncompressedSize = int(elems) * elemSize
			} else {
				// Fetch only the minimal contiguous byte run in the block's
				// own layout that is guaranteed to cover every element of the
				// intersection: from the intersection's lowest corner to its
				// highest corner, in the block's own linear addressing.
				local := make([]uint64, len(ixStart))
				for i := range ixStart {
					local[i] = ixStart[i] - blkOffsets[i]
				}
				startOffsetInBlock := elemSize * int(linearIndex(blkCount, local, d.writerRowMajor))

				lastLocal := make([]uint64, len(ixStart))
				for i := range ixStart {
					lastLocal[i] = local[i] + ixCount[i] - 1
				}
				endOffsetInBlock := elemSize * int(linearIndex(blkCount, lastLocal, d.writerRowMajor)+1)

				rr.StartOffset = wb.meta.DataBlockLocation[b] + uint64(startOffsetInBlock)
				rr.ReadLength = endOffsetInBlock - startOffsetInBlock
				rr.OffsetInBlock = startOffsetInBlock
			}
			rr.resolve.elemSize = elemSize
			rr.resolve.srcStart = blkOffsets
			rr.resolve.srcCount = blkCount
			rr.resolve.srcRowMajor = d.writerRowMajor
			rr.resolve.dstStart = start
			rr.resolve.dstCount = count
			rr.resolve.dstRowMajor = d.rowMajor

			reqs = append(reqs, rr)
		}
	}

	return reqs, stepBytes, nil
}
