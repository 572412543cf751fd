/*
Package bitint holds the power-of-two helpers used to size FFT workspaces.

The analyzer runs one real FFT per captured block, so the block size doubles as
the FFT size. Radix-2 sizes keep that transform cheap enough to finish well
inside the block's real-time budget, which is why configuration rejects other
sizes and the CLI suggests the next power of two instead.

Both helpers are constant time and allocation free.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes <= 0 map to 1.
//
// Subtracting one first keeps exact powers of two unchanged: for 512,
// bits.Len(511) is 9 and 1<<9 is 512 again, while 513 rounds up to 1024.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two has
// exactly one bit set, so clearing its lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
