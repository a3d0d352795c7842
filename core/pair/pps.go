// Package pair correlates independently arriving timestamp streams.
package pair

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/core/bus"
	"example.com/gpsdo/core/ts"
)

const (
	TopicPPS  = "pairPps"
	TopicQerr = "pairQerr"
)

var halfSecond = ts.FromParts(0, ts.UnitsPerSecond/2)

var (
	ppsPairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.PairPPSPairsN,
		Help: metrics.PairPPSPairsH,
	})
	ppsMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.PairPPSMissesN,
		Help: metrics.PairPPSMissesH,
	})
)

type side int

const (
	sideGns side = iota
	sideDsc
)

func (s side) String() string {
	switch s {
	case sideGns:
		return "gns"
	case sideDsc:
		return "dsc"
	default:
		panic("unexpected side")
	}
}

// PPS pairs the latest GNSS and disciplined oscillator PPS events whose
// capture times are less than half a second apart and publishes them on
// TopicPPS. Only the most recent event of each side is kept.
type PPS struct {
	log    *zap.Logger
	Pub    *bus.Publisher[ts.PairTs]
	latest [2]ts.TicTs
	seen   [2]bool
	pairs  prometheus.Counter
	misses prometheus.Counter
}

func NewPPS(log *zap.Logger, src *bus.Publisher[ts.TicTs], gnsTopic, dscTopic string,
	warnIfSlow time.Duration) *PPS {
	p := &PPS{
		log:    log,
		Pub:    bus.NewPublisher[ts.PairTs](log, TopicPPS, warnIfSlow),
		pairs:  ppsPairs,
		misses: ppsMisses,
	}
	src.Subscribe(gnsTopic, func(e ts.TicTs) { p.onEvent(sideGns, e) })
	src.Subscribe(dscTopic, func(e ts.TicTs) { p.onEvent(sideDsc, e) })
	return p
}

func (p *PPS) onEvent(s side, e ts.TicTs) {
	p.latest[s] = e
	p.seen[s] = true
	other := 1 - s
	if !p.seen[other] {
		p.log.Debug("no counterpart yet", zap.Stringer("side", s))
		return
	}
	delta := e.Cap.Sub(p.latest[other].Cap)
	if delta.Abs().Cmp(halfSecond) >= 0 {
		p.misses.Inc()
		p.log.Debug("no counterpart in window",
			zap.Stringer("side", s),
			zap.Stringer("delta", delta))
		return
	}
	pair := ts.PairTs{Gns: p.latest[sideGns], Dsc: p.latest[sideDsc]}
	p.pairs.Inc()
	p.log.Debug("paired PPS",
		zap.Stringer("pair", pair),
		zap.Stringer("phaseError", pair.PhaseError()))
	p.Pub.Publish(TopicPPS, pair)
}
