package sync

import (
	"math"
)

// quantizer turns fractional actuator code targets into integer codes. The
// rounding remainder is carried into the next target so that the average
// code has no systematic bias.
type quantizer struct {
	code  int
	carry float64
}

// step moves the code towards target by at most maxStep codes and keeps it
// within [lo, hi]. limited reports that the slew limit applied, railed
// that the range did. Hitting the range discards the carry.
func (q *quantizer) step(target float64, maxStep, lo, hi int) (limited, railed bool) {
	raw := target + q.carry
	next := math.RoundToEven(raw)
	q.carry = raw - next
	if next > float64(q.code+maxStep) {
		next = float64(q.code + maxStep)
		limited = true
	} else if next < float64(q.code-maxStep) {
		next = float64(q.code - maxStep)
		limited = true
	}
	if next < float64(lo) {
		next = float64(lo)
		railed = true
	} else if next > float64(hi) {
		next = float64(hi)
		railed = true
	}
	if railed {
		q.carry = 0
	}
	q.code = int(next)
	return limited, railed
}

func clampCode(code, lo, hi int) int {
	return min(max(code, lo), hi)
}
