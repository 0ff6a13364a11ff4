package utils

import "sort"

// BracketIndex returns i such that xs[i] <= x < xs[i+1] for a sorted slice
// of at least two elements. Outside the range it returns the nearest
// boundary pair (0 or len(xs)-2), which is what extrapolation wants.
func BracketIndex(xs []float64, x float64) int {
	if len(xs) < 2 {
		panic("BracketIndex: need at least 2 nodes")
	}

	// First index with xs[i] > x.
	i := sort.Search(len(xs), func(i int) bool {
		return xs[i] > x
	})

	if i <= 0 {
		return 0
	}
	if i >= len(xs)-1 {
		return len(xs) - 2
	}
	return i - 1
}

// IsStrictlyIncreasing reports whether xs is sorted with no repeated values.
func IsStrictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}
