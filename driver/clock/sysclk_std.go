//go:build !linux

package clock

import (
	"time"

	"go.uber.org/zap"

	"example.com/gpsdo/base/timebase"
)

type SystemClock struct {
	Log *zap.Logger
}

var _ timebase.LocalClock = (*SystemClock)(nil)

func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (c *SystemClock) Sleep(duration time.Duration) {
	c.Log.Debug("SystemClock.Sleep", zap.Duration("duration", duration))
	time.Sleep(duration)
}

func (c *SystemClock) AfterFunc(duration time.Duration, f func()) (stop func() bool) {
	return time.AfterFunc(duration, f).Stop
}
