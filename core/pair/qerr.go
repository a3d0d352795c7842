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

var oneSecond = ts.FromParts(1, 0)

var (
	qerrApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.PairQerrAppliedN,
		Help: metrics.PairQerrAppliedH,
	})
	qerrDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.PairQerrDroppedN,
		Help: metrics.PairQerrDroppedH,
	})
)

// Qerr applies the GNSS receiver's quantization error correction to the GNSS
// side of each pair and publishes the result on TopicQerr. A pair is dropped
// unless the latest correction was captured strictly before the GNSS event
// and less than one second before it.
type Qerr struct {
	log     *zap.Logger
	Pub     *bus.Publisher[ts.PairTs]
	qerr    ts.QerrTs
	haveQ   bool
	applied prometheus.Counter
	dropped prometheus.Counter
}

func NewQerr(log *zap.Logger, pairs *bus.Publisher[ts.PairTs], pairTopic string,
	qerrs *bus.Publisher[ts.QerrTs], qerrTopic string, warnIfSlow time.Duration) *Qerr {
	q := &Qerr{
		log:     log,
		Pub:     bus.NewPublisher[ts.PairTs](log, TopicQerr, warnIfSlow),
		applied: qerrApplied,
		dropped: qerrDropped,
	}
	qerrs.Subscribe(qerrTopic, q.onQerr)
	pairs.Subscribe(pairTopic, q.onPair)
	return q
}

func (q *Qerr) onQerr(e ts.QerrTs) {
	q.qerr = e
	q.haveQ = true
}

func (q *Qerr) onPair(p ts.PairTs) {
	if !q.haveQ {
		q.dropped.Inc()
		q.log.Info("waiting for first qErr")
		return
	}
	lead := p.Gns.Cap.Sub(q.qerr.Cap)
	if lead.Sign() <= 0 || lead.Cmp(oneSecond) >= 0 {
		q.dropped.Inc()
		q.log.Debug("qErr does not match pair",
			zap.Stringer("qErr", q.qerr),
			zap.Stringer("lead", lead))
		return
	}
	corrected := p
	corrected.Gns.Ref = p.Gns.Ref.Add(q.qerr.Qerr)
	q.applied.Inc()
	q.Pub.Publish(TopicQerr, corrected)
}
