package sync

import (
	"math"

	"go.uber.org/zap"

	"example.com/gpsdo/base/floats"
	"example.com/gpsdo/base/timemath"
)

type alignerSample struct {
	err  float64 // phase error in seconds
	code int     // actuator code in effect while the error accrued
}

// CoarseAligner pulls a large phase error into the capture window of the
// steady-state controller. It pushes the frequency towards zero phase error
// relative to an estimate of the zero-frequency code and, once the error has
// stayed within the goal, ramps the code to that estimate.
type CoarseAligner struct {
	log      *zap.Logger
	osc      OscillatorParams
	p        AlignerParams
	q        quantizer
	codeZero float64
	history  []alignerSample
	inGoal   int
	ramping  bool
	done     bool
}

func NewCoarseAligner(log *zap.Logger, osc OscillatorParams, p AlignerParams, code int) *CoarseAligner {
	code = clampCode(code, osc.CodeMin, osc.CodeMax)
	return &CoarseAligner{
		log:      log,
		osc:      osc,
		p:        p,
		q:        quantizer{code: code},
		codeZero: float64(code),
		history:  make([]alignerSample, 0, p.History),
	}
}

// CodeZero returns the current estimate of the code at which the oscillator
// runs at its nominal frequency.
func (a *CoarseAligner) CodeZero() float64 { return a.codeZero }

// estimateCodeZero fits a least-squares slope to the phase the oscillator
// would have accumulated had the latest code been in effect for the whole
// history. The slope is the fractional frequency error at that code.
func (a *CoarseAligner) estimateCodeZero() (float64, bool) {
	n := len(a.history)
	if n < 3 {
		return 0, false
	}
	t := a.osc.SampleTime
	ref := a.history[n-1].code
	phase := make([]float64, n)
	phase[0] = a.history[0].err
	for i := 1; i < n; i++ {
		h, prev := a.history[i], a.history[i-1]
		phase[i] = phase[i-1] + (h.err - prev.err) +
			t*a.osc.HzPerCode*float64(h.code-ref)/a.osc.F0Hz
	}
	slope := floats.Slope(phase)
	return float64(ref) + slope*a.osc.F0Hz/(t*a.osc.HzPerCode), true
}

// Step consumes one phase error sample in seconds (oscillator minus
// reference) and returns the next actuator code.
func (a *CoarseAligner) Step(errSec float64) (code int, done bool) {
	err := timemath.WrapSeconds(errSec)
	if len(a.history) == a.p.History {
		a.history = append(a.history[:0], a.history[1:]...)
	}
	a.history = append(a.history, alignerSample{err: err, code: a.q.code})
	if a.done {
		return a.q.code, true
	}

	goal := a.p.GoalNs * 1e-9
	if a.ramping && math.Abs(err) > 4*goal {
		a.log.Info("coarse aligner lost the goal while ramping",
			zap.Float64("errNs", timemath.Nanoseconds(err)))
		a.ramping = false
		a.inGoal = 0
	}
	if !a.ramping {
		if cz, ok := a.estimateCodeZero(); ok {
			a.codeZero = cz
		}
	}
	if math.Abs(err) <= goal {
		a.inGoal++
	} else {
		a.inGoal = 0
	}
	if !a.ramping && a.inGoal >= a.p.HoldCount {
		a.ramping = true
		a.log.Info("coarse aligner ramping to zero-frequency code",
			zap.Int("code", a.q.code),
			zap.Float64("codeZero", a.codeZero))
	}

	var pushPpb float64
	if a.ramping {
		target := clampCode(int(math.RoundToEven(a.codeZero)), a.osc.CodeMin, a.osc.CodeMax)
		a.q.code = clampCode(target, a.q.code-a.p.RampCodesPerStep, a.q.code+a.p.RampCodesPerStep)
		a.q.carry = 0
		if d := a.q.code - target; -1 <= d && d <= 1 {
			a.done = true
		}
	} else {
		pushPpb = floats.Sgn(err) * math.Min(a.p.PushPpb, math.Abs(err)/a.p.TauSec*1e9)
		pushHz := pushPpb * 1e-9 * a.osc.F0Hz
		a.q.step(a.codeZero+pushHz/a.osc.HzPerCode, a.p.MaxCodesPerStep, a.osc.CodeMin, a.osc.CodeMax)
	}

	a.log.Debug("coarse aligner iteration",
		zap.Float64("errNs", timemath.Nanoseconds(err)),
		zap.Float64("pushPpb", pushPpb),
		zap.Float64("codeZero", a.codeZero),
		zap.Int("code", a.q.code),
		zap.Int("inGoal", a.inGoal),
		zap.Bool("ramping", a.ramping),
		zap.Bool("done", a.done),
	)
	return a.q.code, a.done
}
