package operator

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/bp5io/bp5/errs"
)

// s2Operator provides S2 compression (a Snappy derivative), favoring
// compression/decompression speed over ratio.
type s2Operator struct{}

var _ Operator = s2Operator{}

func (s2Operator) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

func (s2Operator) Decompress(data []byte, _ int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: s2: %v", errs.ErrOperatorDecompress, err)
	}

	return out, nil
}
