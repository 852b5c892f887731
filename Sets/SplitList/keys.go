package SplitList

import "math/bits"

// regular keys are odd so they never collide with a bucket's sentinel.
func regularKey(hash uint) uint {
	return bits.Reverse(hash) | 1
}

func sentinelKey(bucket uint) uint {
	return bits.Reverse(bucket) &^ 1
}

func isSentinel(key uint) bool {
	return key&1 == 0
}

// parentBucket clears the highest set bit; bucket 0 is its own parent.
func parentBucket(i uint) uint {
	if i == 0 {
		return 0
	}
	return i &^ (1 << (bits.Len(i) - 1))
}

func nextPowerOfTwo(n uint) uint {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(n-1)
}
