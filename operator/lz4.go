package operator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/bp5io/bp5/errs"
)

// lz4Operator provides LZ4 block compression. lz4.Compressor keeps internal
// state that benefits from pooling.
type lz4Operator struct{}

var _ Operator = lz4Operator{}

var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

func (lz4Operator) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	c, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(c)

	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", errs.ErrOperatorCompress, err)
	}
	if n == 0 {
		// Incompressible input: lz4 leaves dst empty rather than expanding it.
		// Fall back to storing the raw block; Decompress below mirrors this.
		return append([]byte{0}, data...), nil
	}

	return append([]byte{1}, dst[:n]...), nil
}

// Decompress reverses Compress. uncompressedSize sizes the output buffer
// (DataBlockLocation's corresponding element count × element size, as
// recorded in the variable's MetaArray — LZ4 block format does not
// self-describe its decompressed length).
func (lz4Operator) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	stored, payload := data[0], data[1:]
	if stored == 0 {
		return payload, nil
	}

	buf := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(payload, buf)
	if err != nil {
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			return nil, fmt.Errorf("%w: lz4: uncompressedSize too small", errs.ErrOperatorDecompress)
		}
		return nil, fmt.Errorf("%w: lz4: %v", errs.ErrOperatorDecompress, err)
	}

	return buf[:n], nil
}
