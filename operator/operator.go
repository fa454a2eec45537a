// Package operator implements the BP5 "operator" contract: an opaque
// (bytes) -> bytes compressor/decompressor attached to a variable. The
// concrete codecs are swappable; only the interface they satisfy is fixed
// here, in the shape of a pluggable compression codec interface.
package operator

import "fmt"

// Type identifies which built-in operator a variable uses. Stored in the
// writer's variable record; neither the +O field-name suffix nor the
// FormatContext-registered layout carries the concrete type, so a reader
// supplies it itself (reader.Deserializer's defaultOperator).
type Type uint8

const (
	TypeNone Type = iota
	TypeZstd
	TypeS2
	TypeLZ4
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeZstd:
		return "zstd"
	case TypeS2:
		return "s2"
	case TypeLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Compressor compresses a block's uncompressed bytes.
type Compressor interface {
	// Compress returns the compressed form of data. The returned slice is
	// newly allocated; data is not modified.
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses a block's compressed bytes back to its
// uncompressed form.
type Decompressor interface {
	// Decompress returns the decompressed form of data, given the expected
	// uncompressed length (some codecs need it to size their output buffer;
	// codecs that self-describe length may ignore it).
	Decompress(data []byte, uncompressedSize int) ([]byte, error)
}

// Operator combines both directions. Every built-in operator in this
// package implements it.
type Operator interface {
	Compressor
	Decompressor
}

// New constructs the built-in Operator for t.
func New(t Type) (Operator, error) {
	switch t {
	case TypeNone:
		return noopOperator{}, nil
	case TypeZstd:
		return zstdOperator{}, nil
	case TypeS2:
		return s2Operator{}, nil
	case TypeLZ4:
		return lz4Operator{}, nil
	default:
		return nil, fmt.Errorf("bp5: unknown operator type %d", uint8(t))
	}
}
