package sync_test

import (
	"math"
	"testing"

	"example.com/gpsdo/core/sync"
)

// plant integrates the phase error of an oscillator whose frequency is
// nominal at code codeZero.
type plant struct {
	osc      sync.OscillatorParams
	codeZero float64
	err      float64
}

func (p *plant) advance(code int) {
	y := p.osc.HzPerCode * (float64(code) - p.codeZero) / p.osc.F0Hz
	p.err -= p.osc.SampleTime * y
}

// settled reports whether every error from index i on is within tol.
func settled(errs []float64, i int, tol float64) bool {
	for _, e := range errs[i:] {
		if math.Abs(e) >= tol {
			return false
		}
	}
	return true
}

func checkCodes(t *testing.T, codes []int, lo, hi int) {
	t.Helper()
	for i, c := range codes {
		if c < lo || c > hi {
			t.Fatalf("code #%d: got %d, want within [%d, %d]", i, c, lo, hi)
		}
	}
}
