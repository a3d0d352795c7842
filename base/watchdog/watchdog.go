// Package watchdog warns when an input stream has gone quiet.
package watchdog

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"example.com/gpsdo/base/timebase"
)

const minCheckInterval = 100 * time.Millisecond

type Watchdog struct {
	log        *zap.Logger
	clk        timebase.LocalClock
	name       string
	quietAfter time.Duration
	last       atomic.Int64
	quiet      atomic.Bool
}

func New(log *zap.Logger, clk timebase.LocalClock, name string, quietAfter time.Duration) *Watchdog {
	if quietAfter <= 0 {
		panic("unexpected quiet period")
	}
	w := &Watchdog{log: log, clk: clk, name: name, quietAfter: quietAfter}
	w.Pet()
	return w
}

func (w *Watchdog) Pet() {
	w.last.Store(w.clk.Now().UnixNano())
}

// Check reports whether the input has been quiet for longer than the quiet
// period. A warning is logged once per silence.
func (w *Watchdog) Check() bool {
	silence := w.clk.Now().Sub(time.Unix(0, w.last.Load()))
	if silence > w.quietAfter {
		if !w.quiet.Swap(true) {
			w.log.Warn("input quiet",
				zap.String("input", w.name),
				zap.Duration("silence", silence))
		}
		return true
	}
	if w.quiet.Swap(false) {
		w.log.Info("input resumed", zap.String("input", w.name))
	}
	return false
}

func (w *Watchdog) Run(ctx context.Context) {
	interval := max(w.quietAfter/4, minCheckInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}
