package pool

import "sync"

// slicePool pools slices of a single element type T.
type slicePool[T any] struct {
	pool sync.Pool
}

func newSlicePool[T any]() *slicePool[T] {
	return &slicePool[T]{
		pool: sync.Pool{
			New: func() any { return &[]T{} },
		},
	}
}

// Get retrieves and resizes a []T from the pool.
//
// The returned slice has length equal to size. If the pooled slice has
// insufficient capacity, a new slice is allocated. The caller must call the
// returned cleanup function (typically via defer) to return the slice.
func (p *slicePool[T]) Get(size int) ([]T, func()) {
	ptr, _ := p.pool.Get().(*[]T)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]T, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() { p.pool.Put(ptr) }
}

var (
	int64Pool   = newSlicePool[int64]()
	uint64Pool  = newSlicePool[uint64]()
	float64Pool = newSlicePool[float64]()
	stringPool  = newSlicePool[string]()
	bytePool    = newSlicePool[byte]()
)

// GetInt64Slice retrieves a []int64 of the given length from the pool.
func GetInt64Slice(size int) ([]int64, func()) { return int64Pool.Get(size) }

// GetUint64Slice retrieves a []uint64 of the given length from the pool.
func GetUint64Slice(size int) ([]uint64, func()) { return uint64Pool.Get(size) }

// GetFloat64Slice retrieves a []float64 of the given length from the pool.
func GetFloat64Slice(size int) ([]float64, func()) { return float64Pool.Get(size) }

// GetStringSlice retrieves a []string of the given length from the pool.
func GetStringSlice(size int) ([]string, func()) { return stringPool.Get(size) }

// GetByteSlice retrieves a []byte of the given length from the pool.
func GetByteSlice(size int) ([]byte, func()) { return bytePool.Get(size) }
