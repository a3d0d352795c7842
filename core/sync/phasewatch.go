package sync

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/base/timemath"
	"example.com/gpsdo/core/stats"
	"example.com/gpsdo/core/ts"
)

type Mode int32

const (
	ModeStartup Mode = iota
	ModeStep
	ModeCoarseTune
	ModeFineTune
)

func (m Mode) String() string {
	switch m {
	case ModeStartup:
		return "Startup"
	case ModeStep:
		return "Step"
	case ModeCoarseTune:
		return "CoarseTune"
	case ModeFineTune:
		return "FineTune"
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Actuator sets the oscillator's frequency control input. Writes are not
// acknowledged; the code is always within the oscillator's code range.
type Actuator interface {
	WriteDAC(code int)
}

type PhaseStepper interface {
	Start() bool
	InFlight() (StepInFlight, bool)
}

type Params struct {
	Oscillator OscillatorParams
	Aligner    AlignerParams
	PLL        PLLParams
	Watch      WatchParams
}

func DefaultParams() Params {
	return Params{
		Oscillator: DefaultOscillatorParams(),
		Aligner:    DefaultAlignerParams(),
		PLL:        DefaultPLLParams(),
		Watch:      DefaultWatchParams(),
	}
}

func (p Params) Validate() error {
	if err := p.Oscillator.Validate(); err != nil {
		return err
	}
	if err := p.Aligner.Validate(); err != nil {
		return err
	}
	if err := p.PLL.Validate(p.Oscillator); err != nil {
		return err
	}
	return p.Watch.Validate()
}

// Status is a read-only snapshot of the phase watch.
type Status struct {
	Mode           Mode      `json:"mode"`
	PhaseError     ts.Ts     `json:"phaseError"`
	HavePhaseError bool      `json:"havePhaseError"`
	Code           int       `json:"code"`
	StepInFlight   bool      `json:"stepInFlight"`
	StepStartedAt  time.Time `json:"stepStartedAt"`
	Samples        uint64    `json:"samples"`
	FreqErrorPPB   float64   `json:"freqErrorPpb"`
	HaveFreqError  bool      `json:"haveFreqError"`
	PhaseP50Ns     float64   `json:"phaseP50Ns"`
	PhaseP99Ns     float64   `json:"phaseP99Ns"`
}

var modeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: metrics.SyncModeTransitionsN,
	Help: metrics.SyncModeTransitionsH,
}, []string{"to"})

// PhaseWatch sequences phase acquisition. It selects the algorithm that
// drives the actuator from the magnitude of each phase error and decides
// when a hardware phase step is needed.
type PhaseWatch struct {
	log     *zap.Logger
	p       Params
	act     Actuator
	stepper PhaseStepper

	mode     Mode
	code     int
	aligner  *CoarseAligner
	ctrl     *Controller
	breaches int // consecutive samples beyond the coarse threshold
	steps    int // steps issued since the last tuning mode was entered
	samples  uint64
	lastErr  ts.Ts
	haveErr  bool

	freq *stats.FreqError
	hist *stats.PhaseHistogram

	status atomic.Pointer[Status]
}

func NewPhaseWatch(log *zap.Logger, p Params, act Actuator, stepper PhaseStepper, code int) *PhaseWatch {
	w := &PhaseWatch{
		log:     log,
		p:       p,
		act:     act,
		stepper: stepper,
		mode:    ModeStartup,
		code:    clampCode(code, p.Oscillator.CodeMin, p.Oscillator.CodeMax),
		freq:    stats.NewFreqError(15),
		hist:    stats.NewPhaseHistogram(),
	}
	w.publish()
	return w
}

func (w *PhaseWatch) Mode() Mode { return w.mode }

func (w *PhaseWatch) Code() int { return w.code }

// OnPair consumes one paired observation.
func (w *PhaseWatch) OnPair(p ts.PairTs) {
	if ppb, ok := w.freq.Add(p); ok {
		w.log.Debug("frequency error", zap.Float64("ppb", ppb))
	}
	w.OnPhaseError(p.PhaseError())
}

// OnPhaseError consumes one phase error sample (oscillator minus reference).
func (w *PhaseWatch) OnPhaseError(e ts.Ts) {
	w.samples++
	w.lastErr, w.haveErr = e, true
	w.hist.Record(e)

	errSec := timemath.WrapSeconds(e.Seconds())
	absErr := math.Abs(errSec)
	breach := absErr > w.p.Watch.CoarseThreshNs*1e-9
	fine := absErr <= w.p.Watch.FineThreshNs*1e-9
	if breach {
		w.breaches++
	} else {
		w.breaches = 0
	}

	switch w.mode {
	case ModeStartup:
		switch {
		case breach:
			w.step(errSec, false)
			w.setMode(ModeStep)
		case fine:
			w.setMode(ModeFineTune)
		default:
			w.setMode(ModeCoarseTune)
		}
	case ModeStep:
		switch {
		case breach:
			if w.breaches >= w.p.Watch.StepRetries {
				w.step(errSec, true)
			}
		case fine:
			w.setMode(ModeFineTune)
		default:
			w.setMode(ModeCoarseTune)
		}
	case ModeCoarseTune:
		if breach && w.breaches >= w.p.Watch.StepRetries {
			w.step(errSec, true)
			w.setMode(ModeStep)
			break
		}
		code, done := w.aligner.Step(errSec)
		w.write(code)
		if done {
			w.setMode(ModeFineTune)
		}
	case ModeFineTune:
		w.write(w.ctrl.Step(errSec))
	default:
		panic("unexpected mode")
	}
	w.publish()
}

// step requests a hardware phase step. With reset, the breach counter is
// cleared once the step has been issued.
func (w *PhaseWatch) step(errSec float64, reset bool) {
	if !w.stepper.Start() {
		s, _ := w.stepper.InFlight()
		w.log.Info("phase step already in flight",
			zap.Time("startedAt", s.StartedAt),
			zap.Float64("errNs", timemath.Nanoseconds(errSec)))
		return
	}
	if reset {
		w.breaches = 0
	}
	w.steps++
	if w.steps > w.p.Watch.StepStormAfter {
		w.log.Warn("repeated phase step",
			zap.Int("steps", w.steps),
			zap.Stringer("mode", w.mode),
			zap.Float64("errNs", timemath.Nanoseconds(errSec)))
	} else {
		w.log.Info("phase step",
			zap.Stringer("mode", w.mode),
			zap.Float64("errNs", timemath.Nanoseconds(errSec)))
	}
}

func (w *PhaseWatch) setMode(m Mode) {
	if m == w.mode {
		return
	}
	w.log.Info("phase watch mode transition",
		zap.Stringer("from", w.mode),
		zap.Stringer("to", m),
		zap.Int("code", w.code))
	w.aligner, w.ctrl = nil, nil
	switch m {
	case ModeCoarseTune:
		w.steps = 0
		w.aligner = NewCoarseAligner(w.log, w.p.Oscillator, w.p.Aligner, w.code)
	case ModeFineTune:
		w.steps = 0
		w.ctrl = NewController(w.log, w.p.Oscillator, w.p.PLL, w.code)
	}
	w.mode = m
	modeTransitions.WithLabelValues(m.String()).Inc()
}

func (w *PhaseWatch) write(code int) {
	w.code = code
	w.act.WriteDAC(code)
}

func (w *PhaseWatch) publish() {
	s := &Status{
		Mode:           w.mode,
		PhaseError:     w.lastErr,
		HavePhaseError: w.haveErr,
		Code:           w.code,
		Samples:        w.samples,
	}
	if w.hist.Count() != 0 {
		s.PhaseP50Ns = w.hist.Quantile(0.5)
		s.PhaseP99Ns = w.hist.Quantile(0.99)
	}
	s.FreqErrorPPB, s.HaveFreqError = w.freq.Mean()
	w.status.Store(s)
}

// Status returns the latest snapshot. It is safe to call from any
// goroutine.
func (w *PhaseWatch) Status() Status {
	s := *w.status.Load()
	if f, ok := w.stepper.InFlight(); ok {
		s.StepInFlight = true
		s.StepStartedAt = f.StartedAt
	}
	return s
}
