package timemath

import (
	"math"
	"time"
)

func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// WrapSeconds maps a phase error in seconds into (-0.5, 0.5].
func WrapSeconds(x float64) float64 {
	if -0.5 < x && x <= 0.5 {
		return x
	}
	w := x - math.Floor(x)
	if w > 0.5 {
		w -= 1
	}
	return w
}

func Nanoseconds(seconds float64) float64 {
	return seconds * 1e9
}
