package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. Swapped bounds are reordered.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FitsBits reports whether v is representable in an n-bit unsigned field.
func FitsBits[T constraints.Unsigned](v T, n uint) bool {
	if n >= 64 {
		return true
	}
	return uint64(v) < 1<<n
}
