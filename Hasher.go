package Go_CDS

import (
	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// Hasher is a hash seed, create it using Hasher(rand.Uint()). The zero Hasher is a valid, unseeded hasher. The receivers are thread-safe.
type Hasher uint

// HashBytes hashes the given byte slice.
func (u Hasher) HashBytes(b []byte) uint {
	if u == 0 {
		return uint(xxhash.Sum64(b))
	}
	var d xxhash.Digest
	d.ResetWithSeed(uint64(u))
	_, _ = d.Write(b)
	return uint(d.Sum64())
}

// HashString directly hashes a string without converting it to bytes.
func (u Hasher) HashString(v string) uint {
	if u == 0 {
		return uint(xxhash.Sum64String(v))
	}
	var d xxhash.Digest
	d.ResetWithSeed(uint64(u))
	_, _ = d.WriteString(v)
	return uint(d.Sum64())
}

// HashInt hashes v.
func (u Hasher) HashInt(v int) uint {
	return HashInteger(u, v)
}

// HashInteger hashes any integer by mixing it with the seed; the result is well spread across all bits, which matters for the split order that consumes the low bits first.
func HashInteger[I constraints.Integer](u Hasher, v I) uint {
	x := uint64(v) ^ uint64(u)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return uint(x)
}
