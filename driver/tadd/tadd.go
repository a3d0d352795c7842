// Package tadd drives the active-low ARM input of a TADD-2 divider. Holding
// ARM low for more than a second restarts the divider on the next
// reference PPS, which steps the phase of the disciplined PPS to within a
// few oscillator cycles of the reference.
package tadd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"example.com/gpsdo/base/timebase"
)

type ARM struct {
	log *zap.Logger
	clk timebase.LocalClock
	pin gpio.PinOut
}

// New releases the line and returns it.
func New(log *zap.Logger, clk timebase.LocalClock, pin gpio.PinOut) (*ARM, error) {
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to release ARM line %s: %w", pin, err)
	}
	return &ARM{log: log, clk: clk, pin: pin}, nil
}

func Open(log *zap.Logger, clk timebase.LocalClock, name string) (*ARM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return New(log, clk, pin)
}

func (a *ARM) Arm() error {
	a.log.Debug("ARM line low", zap.Stringer("pin", a.pin))
	return a.pin.Out(gpio.Low)
}

func (a *ARM) Release() error {
	a.log.Debug("ARM line high", zap.Stringer("pin", a.pin))
	return a.pin.Out(gpio.High)
}

// Pulse holds the line low for d. The line is released early if ctx is
// done.
func (a *ARM) Pulse(ctx context.Context, d time.Duration) error {
	if err := a.Arm(); err != nil {
		return err
	}
	elapsed := make(chan struct{})
	stop := a.clk.AfterFunc(d, func() { close(elapsed) })
	var err error
	select {
	case <-elapsed:
	case <-ctx.Done():
		stop()
		err = ctx.Err()
	}
	if rerr := a.Release(); rerr != nil {
		return rerr
	}
	return err
}
