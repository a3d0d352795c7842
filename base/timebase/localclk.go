package timebase

import (
	"time"
)

type LocalClock interface {
	Now() time.Time
	Sleep(duration time.Duration)
	AfterFunc(duration time.Duration, f func()) (stop func() bool)
}
