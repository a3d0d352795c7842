// Package stats keeps running summaries of the paired PPS stream.
package stats

import (
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"

	"example.com/gpsdo/base/floats"
	"example.com/gpsdo/core/ts"
)

// RollingMean holds the last n values added to it.
type RollingMean struct {
	buf  []float64
	next int
	full bool
}

func NewRollingMean(n int) *RollingMean {
	if n <= 0 {
		panic("unexpected rolling mean size")
	}
	return &RollingMean{buf: make([]float64, 0, n)}
}

func (r *RollingMean) Add(x float64) {
	if !r.full {
		r.buf = append(r.buf, x)
		r.full = len(r.buf) == cap(r.buf)
		return
	}
	r.buf[r.next] = x
	r.next = (r.next + 1) % len(r.buf)
}

func (r *RollingMean) Len() int { return len(r.buf) }

func (r *RollingMean) Full() bool { return r.full }

func (r *RollingMean) Mean() (float64, bool) {
	if len(r.buf) == 0 {
		return 0, false
	}
	return floats.Mean(r.buf), true
}

func (r *RollingMean) Median() (float64, bool) {
	if len(r.buf) == 0 {
		return 0, false
	}
	return floats.Median(r.buf), true
}

// FreqError estimates the fractional frequency error of the disciplined
// oscillator, in ppb, from the intervals between consecutive pairs.
type FreqError struct {
	prev ts.PairTs
	have bool
	avg  *RollingMean
}

func NewFreqError(n int) *FreqError {
	return &FreqError{avg: NewRollingMean(n)}
}

// Add records p and returns the frequency error over the interval since the
// previous pair. ok is false for the first pair and for pairs whose GNSS
// reference did not advance.
func (f *FreqError) Add(p ts.PairTs) (ppb float64, ok bool) {
	prev, have := f.prev, f.have
	f.prev, f.have = p, true
	if !have {
		return 0, false
	}
	dGns := p.Gns.Ref.Sub(prev.Gns.Ref)
	if dGns.Sign() <= 0 {
		return 0, false
	}
	dDsc := p.Dsc.Ref.Sub(prev.Dsc.Ref)
	r, err := dDsc.Sub(dGns).Ratio(dGns)
	if err != nil {
		return 0, false
	}
	// A fast oscillator shortens the disciplined interval.
	ppb = -r * 1e9
	f.avg.Add(ppb)
	return ppb, true
}

func (f *FreqError) Mean() (float64, bool) { return f.avg.Mean() }

func (f *FreqError) Median() (float64, bool) { return f.avg.Median() }

const (
	histMinPs = 1
	histMaxPs = 1_000_000_000_000
)

// PhaseHistogram records the distribution of |phase error| in picoseconds.
type PhaseHistogram struct {
	h *hdrhistogram.Histogram
}

func NewPhaseHistogram() *PhaseHistogram {
	return &PhaseHistogram{h: hdrhistogram.New(histMinPs, histMaxPs, 3)}
}

func (p *PhaseHistogram) Record(e ts.Ts) {
	ps, ok := e.Abs().Picoseconds()
	if !ok || ps > histMaxPs {
		ps = histMaxPs
	}
	if ps < histMinPs {
		ps = histMinPs
	}
	if err := p.h.RecordValue(ps); err != nil {
		panic("unexpected histogram range")
	}
}

func (p *PhaseHistogram) Count() int64 { return p.h.TotalCount() }

// Quantile returns the q-th quantile (0 < q <= 1) in nanoseconds, or NaN if
// nothing has been recorded.
func (p *PhaseHistogram) Quantile(q float64) float64 {
	if p.h.TotalCount() == 0 {
		return math.NaN()
	}
	return float64(p.h.ValueAtQuantile(q*100)) / 1e3
}

func (p *PhaseHistogram) Reset() { p.h.Reset() }
