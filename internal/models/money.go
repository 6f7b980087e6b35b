package models

import "math"

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Money rounds to paise.
func Money(v float64) float64 { return Round(v, 2) }
