// Package hash provides the xxHash64-based stable identifiers used to key
// FormatContext's meta-meta registry by layout content.
package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string. Used to turn a variable name
// or a canonical field-list encoding into a stable 64-bit identifier.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Bytes computes the xxHash64 of the given byte slice.
func Bytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}
