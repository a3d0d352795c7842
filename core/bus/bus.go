// Package bus implements synchronous topic-keyed publish/subscribe.
//
// A Publisher is not safe for concurrent use: all calls must come from the
// single goroutine that drives the event loop.
package bus

import (
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/base/zaplog"
)

// Slow callback warnings are limited to one every slowWarnInterval, with a
// small burst.
const (
	slowWarnInterval = 10 * time.Second
	slowWarnBurst    = 3
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.BusEventsPublishedN,
		Help: metrics.BusEventsPublishedH,
	}, []string{"publisher"})
	callbackPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.BusCallbackPanicsN,
		Help: metrics.BusCallbackPanicsH,
	}, []string{"publisher"})
	slowCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.BusSlowCallbacksN,
		Help: metrics.BusSlowCallbacksH,
	}, []string{"publisher"})
)

type Handler[E any] func(E)

// Subscription identifies a handler registered on a topic.
type Subscription struct {
	topic string
	id    uint64
}

type subscriber[E any] struct {
	id uint64
	h  Handler[E]
}

type Publisher[E any] struct {
	log        *zap.Logger
	name       string
	warnIfSlow time.Duration
	limiter    *rate.Limiter
	now        func() time.Time
	nextID     uint64
	topics     map[string][]subscriber[E]

	published prometheus.Counter
	panics    prometheus.Counter
	slow      prometheus.Counter
}

// NewPublisher creates a publisher. A warnIfSlow of zero disables slow
// callback warnings.
func NewPublisher[E any](log *zap.Logger, name string, warnIfSlow time.Duration) *Publisher[E] {
	return &Publisher[E]{
		log:        zaplog.OrGlobal(log),
		name:       name,
		warnIfSlow: warnIfSlow,
		limiter:    rate.NewLimiter(rate.Every(slowWarnInterval), slowWarnBurst),
		now:        time.Now,
		topics:     make(map[string][]subscriber[E]),
		published:  eventsPublished.WithLabelValues(name),
		panics:     callbackPanics.WithLabelValues(name),
		slow:       slowCallbacks.WithLabelValues(name),
	}
}

func (p *Publisher[E]) Name() string { return p.name }

// Subscribe registers h on topic. Handlers run in registration order.
func (p *Publisher[E]) Subscribe(topic string, h Handler[E]) Subscription {
	if h == nil {
		panic("unexpected nil handler")
	}
	p.nextID++
	p.topics[topic] = append(p.topics[topic], subscriber[E]{id: p.nextID, h: h})
	return Subscription{topic: topic, id: p.nextID}
}

// Unsubscribe removes the handler registered as s. Removing a handler that
// is not registered is a no-op.
func (p *Publisher[E]) Unsubscribe(s Subscription) {
	subs := p.topics[s.topic]
	i := slices.IndexFunc(subs, func(x subscriber[E]) bool { return x.id == s.id })
	if i < 0 {
		return
	}
	// Build a new slice so that a delivery in progress keeps its snapshot.
	subs = slices.Delete(slices.Clone(subs), i, i+1)
	if len(subs) == 0 {
		delete(p.topics, s.topic)
		return
	}
	p.topics[s.topic] = subs
}

func (p *Publisher[E]) Clear(topic string) {
	delete(p.topics, topic)
}

func (p *Publisher[E]) Count(topic string) int {
	return len(p.topics[topic])
}

// Publish calls every handler subscribed to topic before returning. A
// handler that panics is logged and skipped.
func (p *Publisher[E]) Publish(topic string, ev E) {
	subs := p.topics[topic]
	if len(subs) == 0 {
		return
	}
	p.published.Inc()
	for _, s := range slices.Clone(subs) {
		p.deliver(topic, s, ev)
	}
}

func (p *Publisher[E]) deliver(topic string, s subscriber[E], ev E) {
	t0 := p.now()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Inc()
			p.log.Error("subscriber panicked",
				zap.String("publisher", p.name),
				zap.String("topic", topic),
				zap.Uint64("subscriber", s.id),
				zap.Any("panic", r),
				zap.StackSkip("stack", 2))
			return
		}
		if p.warnIfSlow <= 0 {
			return
		}
		elapsed := p.now().Sub(t0)
		if elapsed > p.warnIfSlow {
			p.slow.Inc()
			if p.limiter.Allow() {
				p.log.Warn("slow subscriber",
					zap.String("publisher", p.name),
					zap.String("topic", topic),
					zap.Uint64("subscriber", s.id),
					zap.Duration("elapsed", elapsed),
					zap.Duration("threshold", p.warnIfSlow))
			}
		}
	}()
	s.h(ev)
}
