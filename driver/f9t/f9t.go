// Package f9t reads time pulse corrections from a u-blox ZED-F9T timing
// receiver.
package f9t

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/base/timebase"
	"example.com/gpsdo/base/watchdog"
	"example.com/gpsdo/core/ts"
)

const TopicTimTP = "TIM-TP"

var (
	f9tFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.F9TFramesN,
		Help: metrics.F9TFramesH,
	})
	f9tBadChecksums = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.F9TBadChecksumsN,
		Help: metrics.F9TBadChecksumsH,
	})
)

type Reader struct {
	log *zap.Logger
	clk timebase.LocalClock
	r   *bufio.Reader
	dog *watchdog.Watchdog
}

func NewReader(log *zap.Logger, clk timebase.LocalClock, r io.Reader, dog *watchdog.Watchdog) *Reader {
	return &Reader{log: log, clk: clk, r: bufio.NewReader(r), dog: dog}
}

func Open(port string, baud int) (serial.Port, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", port, err)
	}
	return p, nil
}

// Run converts TIM-TP frames into quantization error corrections until the
// input ends or ctx is done. It returns io.EOF when the input ends.
func (r *Reader) Run(ctx context.Context, out chan<- ts.QerrTs) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := readFrame(r.r)
		if errors.Is(err, ErrBadChecksum) {
			f9tBadChecksums.Inc()
			r.log.Debug("dropping UBX frame", zap.Error(err))
			continue
		}
		if err != nil {
			return err
		}
		capTs := ts.FromTime(r.clk.Now())
		f9tFrames.Inc()
		r.dog.Pet()
		if f.Class != ClassTIM || f.ID != IDTimTP {
			continue
		}
		tp, err := ParseTimTP(f.Payload)
		if err != nil {
			r.log.Info("dropping TIM-TP", zap.Error(err))
			continue
		}
		q := ts.QerrTs{Qerr: ts.FromPicoseconds(int64(tp.QErrPs)), Cap: capTs}
		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
