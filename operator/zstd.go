package operator

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/bp5io/bp5/errs"
)

// zstdOperator provides Zstandard compression, favoring compression ratio
// over speed. Suited to archival array blocks that are written once and
// read infrequently.
type zstdOperator struct{}

var _ Operator = zstdOperator{}

// zstdDecoderPool and zstdEncoderPool pool klauspost/compress/zstd
// encoders/decoders: the library is explicitly designed for reuse ("the
// decoder has been designed to operate without allocations after a
// warmup").
var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(false),
		)
		if err != nil {
			panic(fmt.Sprintf("bp5: failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("bp5: failed to create zstd encoder: %v", err))
		}
		return enc
	},
}

func (zstdOperator) Compress(data []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder) //nolint:errcheck
	defer zstdEncoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zstdOperator) Decompress(data []byte, _ int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dec := zstdDecoderPool.Get().(*zstd.Decoder) //nolint:errcheck
	defer zstdDecoderPool.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", errs.ErrOperatorDecompress, err)
	}

	return out, nil
}
