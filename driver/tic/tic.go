// Package tic reads PPS timestamps from a two-channel time interval counter
// over a serial line.
package tic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/base/timebase"
	"example.com/gpsdo/base/unixutil"
	"example.com/gpsdo/base/watchdog"
	"example.com/gpsdo/core/ts"
)

const (
	TopicGNS = "ppsGnsOnRef"
	TopicDSC = "ppsDscOnRef"

	menuPrompt   = "# Type any character for config menu"
	choosePrompt = "choose one:"
)

var ErrBadLine = errors.New("bad timestamp line")

var lineRegexp = regexp.MustCompile(`^(\d+)\.(\d{12}) ch([AB])$`)

var (
	ticLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.TICLinesN,
		Help: metrics.TICLinesH,
	})
	ticBadLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.TICBadLinesN,
		Help: metrics.TICBadLinesH,
	})
)

// Event is a timestamp from one counter channel.
type Event struct {
	Chan string
	Ts   ts.TicTs
}

// ParseLine parses a timestamp line such as "1234.567890123456 chA". The
// fraction has exactly twelve digits.
func ParseLine(line string) (ch string, ref ts.Ts, err error) {
	m := lineRegexp.FindStringSubmatch(line)
	if m == nil {
		return "", ts.Ts{}, fmt.Errorf("%w: %q", ErrBadLine, line)
	}
	ref, err = ts.FromStrs(m[1], m[2])
	if err != nil {
		return "", ts.Ts{}, fmt.Errorf("%w: %w", ErrBadLine, err)
	}
	return m[3], ref, nil
}

type state int

const (
	stateStartup  state = iota // waiting for the menu banner
	stateConfig1               // sent a key, waiting for the menu
	stateConfig2               // sent reset, waiting for the menu again
	stateStamping
)

// Reader resets the counter to its default configuration through the
// configuration menu it shows after a hangup, then timestamps PPS edges.
type Reader struct {
	log   *zap.Logger
	clk   timebase.LocalClock
	rw    io.ReadWriter
	dog   *watchdog.Watchdog
	state state
}

func NewReader(log *zap.Logger, clk timebase.LocalClock, rw io.ReadWriter, dog *watchdog.Watchdog) *Reader {
	return &Reader{log: log, clk: clk, rw: rw, dog: dog}
}

// Open sets HUPCL on port, so that the counter restarts into its menu when
// the port is closed, and opens it.
func Open(log *zap.Logger, port string, baud int) (serial.Port, error) {
	if err := unixutil.SetHangupOnClose(port); err != nil {
		log.Warn("failed to set HUPCL", zap.String("port", port), zap.Error(err))
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", port, err)
	}
	return p, nil
}

func (r *Reader) write(b byte) error {
	_, err := r.rw.Write([]byte{b})
	return err
}

// handle advances the configuration handshake with line, or parses it once
// the counter is timestamping.
func (r *Reader) handle(line string) (Event, bool, error) {
	if r.state == stateStartup && line == menuPrompt {
		if err := r.write('x'); err != nil {
			return Event{}, false, err
		}
		r.state = stateConfig1
	}
	if line == choosePrompt {
		switch r.state {
		case stateConfig1:
			if err := r.write('r'); err != nil {
				return Event{}, false, err
			}
			r.state = stateConfig2
		case stateConfig2:
			if err := r.write('w'); err != nil {
				return Event{}, false, err
			}
			r.state = stateStamping
			r.log.Info("time interval counter configured")
		}
	}
	if r.state != stateStamping {
		return Event{}, false, nil
	}
	ch, ref, err := ParseLine(line)
	if err != nil {
		ticBadLines.Inc()
		r.log.Debug("ignoring line", zap.String("line", line))
		return Event{}, false, nil
	}
	ticLines.Inc()
	r.dog.Pet()
	return Event{Chan: ch, Ts: ts.TicTs{Ref: ref, Cap: ts.FromTime(r.clk.Now())}}, true, nil
}

// Run reads lines until the input ends or ctx is done. It returns io.EOF
// when the input ends.
func (r *Reader) Run(ctx context.Context, out chan<- Event) error {
	sc := bufio.NewScanner(r.rw)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" {
			continue
		}
		e, ok, err := r.handle(line)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}
