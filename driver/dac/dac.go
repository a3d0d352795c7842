// Package dac drives the oscillator's frequency control input through an
// AD5693R 16-bit I2C DAC.
package dac

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"example.com/gpsdo/base/metrics"
)

const (
	cmdWriteDACAndInput = 0x30
	cmdWriteControl     = 0x40

	controlGainBit = 1 << 3

	CodeMax = 0xFFFF
)

var (
	dacWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.DACWritesN,
		Help: metrics.DACWritesH,
	})
	dacWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.DACWriteErrorsN,
		Help: metrics.DACWriteErrorsH,
	})
)

type DAC struct {
	log  *zap.Logger
	dev  conn.Conn
	code int
}

// New selects the output gain (1 or 2) and returns the DAC.
func New(log *zap.Logger, dev conn.Conn, gain int) (*DAC, error) {
	var ctrl byte
	switch gain {
	case 1:
	case 2:
		ctrl |= controlGainBit
	default:
		return nil, fmt.Errorf("unexpected DAC gain %d", gain)
	}
	if err := dev.Tx([]byte{cmdWriteControl, ctrl, 0x00}, nil); err != nil {
		return nil, fmt.Errorf("failed to write DAC control register: %w", err)
	}
	return &DAC{log: log, dev: dev, code: -1}, nil
}

// Open opens the DAC at addr on the named I2C bus. The caller closes the
// returned bus.
func Open(log *zap.Logger, busName string, addr uint16, gain int) (*DAC, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}
	d, err := New(log, &i2c.Dev{Addr: addr, Bus: bus}, gain)
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return d, bus, nil
}

func clamp(code int) int {
	return min(max(code, 0), CodeMax)
}

// Set writes code, clamped to [0, CodeMax], to the DAC and input registers.
func (d *DAC) Set(code int) error {
	code = clamp(code)
	err := d.dev.Tx([]byte{cmdWriteDACAndInput, byte(code >> 8), byte(code)}, nil)
	if err != nil {
		dacWriteErrors.Inc()
		return err
	}
	dacWrites.Inc()
	d.code = code
	return nil
}

// WriteDAC is Set without an error result; failures are logged.
func (d *DAC) WriteDAC(code int) {
	if err := d.Set(code); err != nil {
		d.log.Error("failed to write DAC", zap.Int("code", code), zap.Error(err))
	}
}

// Code returns the last code written successfully, or -1.
func (d *DAC) Code() int { return d.code }
