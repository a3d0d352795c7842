package sync

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/base/timebase"
)

// Armer drives the oscillator's ARM input. Arm holds the line asserted
// until Release; the divider resynchronizes on the next reference PPS after
// the line has been held for at least a second.
type Armer interface {
	Arm() error
	Release() error
}

type StepInFlight struct {
	StartedAt time.Time
}

var phaseSteps = promauto.NewCounter(prometheus.CounterOpts{
	Name: metrics.SyncPhaseStepsN,
	Help: metrics.SyncPhaseStepsH,
})

// StepGuard runs at most one hardware phase step at a time. Requests made
// while a step is in flight are refused.
type StepGuard struct {
	log      *zap.Logger
	clk      timebase.LocalClock
	armer    Armer
	hold     time.Duration
	inFlight atomic.Pointer[StepInFlight]
}

func NewStepGuard(log *zap.Logger, clk timebase.LocalClock, armer Armer, hold time.Duration) *StepGuard {
	if hold < time.Second {
		panic("phase step hold must be at least one second")
	}
	return &StepGuard{log: log, clk: clk, armer: armer, hold: hold}
}

// Start begins a phase step and reports whether one was started.
func (g *StepGuard) Start() bool {
	s := &StepInFlight{StartedAt: g.clk.Now()}
	if !g.inFlight.CompareAndSwap(nil, s) {
		return false
	}
	if err := g.armer.Arm(); err != nil {
		g.log.Error("failed to arm phase step", zap.Error(err))
		g.inFlight.Store(nil)
		return false
	}
	phaseSteps.Inc()
	g.log.Info("phase step started", zap.Duration("hold", g.hold))
	g.clk.AfterFunc(g.hold, func() { g.release(s) })
	return true
}

func (g *StepGuard) release(s *StepInFlight) {
	if err := g.armer.Release(); err != nil {
		g.log.Error("failed to release phase step", zap.Error(err))
	}
	g.inFlight.CompareAndSwap(s, nil)
	g.log.Info("phase step finished",
		zap.Duration("elapsed", g.clk.Now().Sub(s.StartedAt)))
}

func (g *StepGuard) InFlight() (StepInFlight, bool) {
	s := g.inFlight.Load()
	if s == nil {
		return StepInFlight{}, false
	}
	return *s, true
}
