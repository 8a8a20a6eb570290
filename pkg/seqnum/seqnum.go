// Package seqnum implements wrap-around-safe comparison for fixed-width
// sequence numbers. It is the sole permitted comparator between
// sequences: naive integer comparison breaks across the wrap boundary.
package seqnum

// Distance computes the signed circular distance a-b in modular
// arithmetic of 2^bits, then reinterprets the result as signed. A
// positive distance means a is "ahead of" b.
func Distance(a, b uint32, bits uint) int32 {
	mod := uint32(1) << bits
	half := mod / 2

	d := (a - b) % mod
	if d >= half {
		d -= mod
	}
	return int32(d)
}

// Distance16 is Distance specialized to 16-bit sequence numbers, the
// width used throughout this package.
func Distance16(a, b uint16) int32 {
	return Distance(uint32(a), uint32(b), 16)
}

// Before reports whether a is strictly behind b on the circle.
func Before(a, b uint16) bool {
	return Distance16(a, b) < 0
}

// After reports whether a is strictly ahead of b on the circle.
func After(a, b uint16) bool {
	return Distance16(a, b) > 0
}
