package dac_test

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"example.com/gpsdo/driver/dac"
)

const addr = 0x4C

func newDAC(t *testing.T, gain int) (*dac.DAC, *i2ctest.Record) {
	t.Helper()
	rec := &i2ctest.Record{}
	d, err := dac.New(zap.NewNop(), &i2c.Dev{Addr: addr, Bus: rec}, gain)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d, rec
}

func TestNewWritesControl(t *testing.T) {
	tests := []struct {
		gain int
		want []byte
	}{
		{gain: 1, want: []byte{0x40, 0x00, 0x00}},
		{gain: 2, want: []byte{0x40, 0x08, 0x00}},
	}
	for _, tt := range tests {
		d, rec := newDAC(t, tt.gain)
		if len(rec.Ops) != 1 {
			t.Fatalf("gain %d: got %d ops, want 1", tt.gain, len(rec.Ops))
		}
		if op := rec.Ops[0]; op.Addr != addr || !bytes.Equal(op.W, tt.want) {
			t.Errorf("gain %d: got %#x % x, want %#x % x", tt.gain, op.Addr, op.W, addr, tt.want)
		}
		if d.Code() != -1 {
			t.Errorf("gain %d: Code got %d, want -1", tt.gain, d.Code())
		}
	}
}

func TestNewRejectsGain(t *testing.T) {
	rec := &i2ctest.Record{}
	if _, err := dac.New(zap.NewNop(), &i2c.Dev{Addr: addr, Bus: rec}, 3); err == nil {
		t.Errorf("gain 3: got nil error")
	}
	if len(rec.Ops) != 0 {
		t.Errorf("gain 3: got %d ops, want 0", len(rec.Ops))
	}
}

func TestWriteDAC(t *testing.T) {
	tests := []struct {
		code     int
		want     []byte
		wantCode int
	}{
		{code: 9611, want: []byte{0x30, 0x25, 0x8B}, wantCode: 9611},
		{code: 0, want: []byte{0x30, 0x00, 0x00}, wantCode: 0},
		{code: 65535, want: []byte{0x30, 0xFF, 0xFF}, wantCode: 65535},
		{code: -5, want: []byte{0x30, 0x00, 0x00}, wantCode: 0},
		{code: 70000, want: []byte{0x30, 0xFF, 0xFF}, wantCode: 65535},
	}
	d, rec := newDAC(t, 1)
	for _, tt := range tests {
		rec.Ops = nil
		d.WriteDAC(tt.code)
		if len(rec.Ops) != 1 || !bytes.Equal(rec.Ops[0].W, tt.want) {
			t.Errorf("WriteDAC(%d): got %v, want % x", tt.code, rec.Ops, tt.want)
		}
		if d.Code() != tt.wantCode {
			t.Errorf("WriteDAC(%d): Code got %d, want %d", tt.code, d.Code(), tt.wantCode)
		}
	}
}

func TestWriteDACFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	play := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: addr, W: []byte{0x40, 0x00, 0x00}}},
		DontPanic: true,
	}
	d, err := dac.New(zap.New(core), &i2c.Dev{Addr: addr, Bus: play}, 1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	d.WriteDAC(1234)
	if n := logs.FilterMessage("failed to write DAC").Len(); n != 1 {
		t.Errorf("error logs: got %d, want 1", n)
	}
	if d.Code() != -1 {
		t.Errorf("Code: got %d, want -1", d.Code())
	}
	if err := d.Set(1234); err == nil {
		t.Errorf("Set: got nil error")
	}
}
