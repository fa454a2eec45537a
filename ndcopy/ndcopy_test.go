package ndcopy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNdCopy_RowPartitionedGlobalArray mirrors a 2-D global array split
// across two row-partitioned writers (shape {2,8}), read back as a {2,3}
// sub-box starting at {0,3}: writer 0 contributes columns 3-5 of row 0,
// writer 1 contributes columns 3-5 of row 1.
func TestNdCopy_RowPartitionedGlobalArray(t *testing.T) {
	writer0 := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	writer1 := []byte{100, 101, 102, 103, 104, 105, 106, 107}

	dst := make([]byte, 6)

	n, err := NdCopy(writer0, []uint64{0, 0}, []uint64{1, 8}, true,
		dst, []uint64{0, 3}, []uint64{2, 3}, true, 1, MemSpaceHost)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = NdCopy(writer1, []uint64{1, 0}, []uint64{1, 8}, true,
		dst, []uint64{0, 3}, []uint64{2, 3}, true, 1, MemSpaceHost)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []byte{3, 4, 5, 103, 104, 105}, dst)
}

// TestNdCopy_MajornessMismatch mirrors a row-major writer read by a
// column-major reader over the whole shape: the destination ends up
// holding the transpose of the source in linear-memory terms.
func TestNdCopy_MajornessMismatch(t *testing.T) {
	src := make([]byte, 12)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			src[r*4+c] = byte(r*4 + c)
		}
	}

	dst := make([]byte, 12)
	n, err := NdCopy(src, []uint64{0, 0}, []uint64{3, 4}, true,
		dst, []uint64{0, 0}, []uint64{3, 4}, false, 1, MemSpaceHost)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			assert.Equal(t, byte(r*4+c), dst[r+c*3], "r=%d c=%d", r, c)
		}
	}
}

func TestNdCopy_NoOverlap(t *testing.T) {
	src := make([]byte, 8)
	dst := make([]byte, 8)

	n, err := NdCopy(src, []uint64{0}, []uint64{4}, true,
		dst, []uint64{10}, []uint64{4}, true, 1, MemSpaceHost)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNdCopy_Scalar(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)

	n, err := NdCopy(src, nil, nil, true, dst, nil, nil, true, 4, MemSpaceHost)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, src, dst)
}

func TestNdCopy_DimensionMismatch(t *testing.T) {
	_, err := NdCopy(nil, []uint64{0}, []uint64{1}, true,
		nil, []uint64{0, 0}, []uint64{1, 1}, true, 1, MemSpaceHost)
	assert.Error(t, err)
}

func TestNdCopy_DeviceUnsupported(t *testing.T) {
	_, err := NdCopy(nil, nil, nil, true, nil, nil, nil, true, 1, MemSpaceDevice)
	assert.Error(t, err)
}
