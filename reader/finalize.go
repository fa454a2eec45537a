package reader

import (
	"sync"

	"github.com/bp5io/bp5/ndcopy"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/stager"
)

// decompressMu serializes every operator.Decompress call this package makes.
// Codecs are allowed to keep per-call scratch state that isn't goroutine
// safe; a single lock is simpler than giving every operator its own.
var decompressMu sync.Mutex

func toNdCopyMemSpace(ms stager.MemSpace) ndcopy.MemSpace {
	if ms == stager.MemSpaceDevice {
		return ndcopy.MemSpaceDevice
	}
	return ndcopy.MemSpaceHost
}

// FinalizeGet decompresses rr.DestinationAddr (if rr came from a variable
// with an operator attached) and scatters the result into the Get's
// destination buffer via ndcopy.NdCopy. Call once per ReadRequest returned
// by GenerateReadRequests, after a transport has filled DestinationAddr.
func (d *Deserializer) FinalizeGet(rr *ReadRequest) error {
	data := rr.DestinationAddr

	if rr.resolve.hasOperator {
		op, err := operator.New(rr.resolve.opType)
		if err != nil {
			return err
		}

		decompressMu.Lock()
		decoded, err := op.Decompress(data, rr.resolve.uncompressedSize)
		decompressMu.Unlock()
		if err != nil {
			return err
		}
		data = decoded
	} else if rr.OffsetInBlock > 0 {
		// GenerateReadRequests only fetched the minimal byte run covering
		// the requested intersection, starting OffsetInBlock bytes into the
		// block. ndcopy.NdCopy addresses src using the block's full
		// srcStart/srcCount, so give it a virtual view of the whole block:
		// the leading OffsetInBlock bytes are padding NdCopy never reads,
		// since every offset it computes for this request falls at or past
		// OffsetInBlock by construction.
		virtual := make([]byte, rr.OffsetInBlock+len(data))
		copy(virtual[rr.OffsetInBlock:], data)
		data = virtual
	}

	_, err := ndcopy.NdCopy(
		data, rr.resolve.srcStart, rr.resolve.srcCount, rr.resolve.srcRowMajor,
		rr.resolve.dst, rr.resolve.dstStart, rr.resolve.dstCount, rr.resolve.dstRowMajor,
		rr.resolve.elemSize, toNdCopyMemSpace(rr.resolve.memSpace),
	)
	return err
}

// FinalizeGets calls FinalizeGet for every request in reqs, stopping at the
// first error.
func (d *Deserializer) FinalizeGets(reqs []*ReadRequest) error {
	for _, rr := range reqs {
		if err := d.FinalizeGet(rr); err != nil {
			return err
		}
	}
	return nil
}
