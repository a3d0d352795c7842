package floats

import (
	"slices"
)

func midpoint(x, y float64) float64 {
	return x + (y-x)/2.0
}

func Mean(fs []float64) float64 {
	n := len(fs)
	if n == 0 {
		panic("unexpected number of values")
	}
	var s float64
	for _, f := range fs {
		s += f
	}
	return s / float64(n)
}

// Median sorts a copy of fs.
func Median(fs []float64) float64 {
	n := len(fs)
	if n == 0 {
		panic("unexpected number of values")
	}
	fs = slices.Clone(fs)
	slices.Sort(fs)
	i := n / 2
	if n%2 != 0 {
		return fs[i]
	}
	return midpoint(fs[i-1], fs[i])
}

// Slope returns the least-squares slope of fs against the sample index
// 0, 1, ..., len(fs)-1.
func Slope(fs []float64) float64 {
	n := len(fs)
	if n < 2 {
		panic("unexpected number of values")
	}
	xm := float64(n-1) / 2
	ym := Mean(fs)
	var sxy, sxx float64
	for i, y := range fs {
		dx := float64(i) - xm
		sxy += dx * (y - ym)
		sxx += dx * dx
	}
	return sxy / sxx
}

func Clamp(x, lo, hi float64) float64 {
	if lo > hi {
		panic("unexpected bounds")
	}
	return min(max(x, lo), hi)
}

func Sgn(x float64) float64 {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	default:
		return 0
	}
}
