package utils

import "gonum.org/v1/gonum/floats"

// MinMax returns the smallest and largest value of s, or zeros for an empty
// slice.
func MinMax(s []float64) (min, max float64) {
	if len(s) == 0 {
		return 0, 0
	}
	return floats.Min(s), floats.Max(s)
}
