package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/gpsdo/core/config"
	"example.com/gpsdo/core/sync"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: got %v, want nil", err)
	}
	if got, want := cfg.SyncParams(), sync.DefaultParams(); got != want {
		t.Errorf("SyncParams: got %+v, want %+v", got, want)
	}
}

func TestDecode(t *testing.T) {
	raw := []byte(`
metrics_address = "0.0.0.0:9100"

[tic]
port = "/dev/ttyUSB3"
gnss_channel = "B"
dsc_channel = "A"

[gnss]
apply_qerr = false

[dac]
address = 0x4D
gain = 2
code_init = 13000

[arm]
pulse_ms = 1500

[bus]
warn_if_slow_ms = 2.5

[phase_watch]
coarse_thresh_ns = 800.0
step_retries = 6

[pll]
track_band_hz = 0.004
`)
	cfg, err := config.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := config.Default()
	want.MetricsAddr = "0.0.0.0:9100"
	want.TIC.Port = "/dev/ttyUSB3"
	want.TIC.GNSSChannel, want.TIC.DSCChannel = "B", "A"
	want.GNSS.ApplyQerr = false
	want.DAC.Address, want.DAC.Gain, want.DAC.CodeInit = 0x4D, 2, 13000
	want.ARM.PulseMs = 1500
	want.Bus.WarnIfSlowMs = 2.5
	want.PhaseWatch.CoarseThreshNs = 800
	want.PhaseWatch.StepRetries = 6
	want.PLL.TrackBandHz = 0.004
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
	if got := cfg.WarnIfSlow(); got != 2500*time.Microsecond {
		t.Errorf("WarnIfSlow: got %v, want 2.5ms", got)
	}
	if got := cfg.ARMHold(); got != 1500*time.Millisecond {
		t.Errorf("ARMHold: got %v, want 1.5s", got)
	}
	if got := cfg.TIC.QuietAfter(); got != 10*time.Second {
		t.Errorf("QuietAfter: got %v, want 10s", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "Unknown key", raw: "[tic]\nspeed = 9600\n"},
		{name: "Unknown section", raw: "[ntp]\nserver = \"x\"\n"},
		{name: "Syntax", raw: "[tic\n"},
		{name: "Same channels", raw: "[tic]\ngnss_channel = \"A\"\ndsc_channel = \"A\"\n"},
		{name: "Bad channel", raw: "[tic]\ngnss_channel = \"C\"\n"},
		{name: "Bad gain", raw: "[dac]\ngain = 3\n"},
		{name: "Wide address", raw: "[dac]\naddress = 0x80\n"},
		{name: "Initial code out of range", raw: "[oscillator]\ncode_max = 5000\n"},
		{name: "Short ARM pulse", raw: "[arm]\npulse_ms = 900\n"},
		{name: "Unstable PLL", raw: "[pll]\nacquire_band_hz = 0.3\n"},
		{name: "Fine above coarse", raw: "[phase_watch]\nfine_thresh_ns = 600.0\n"},
		{name: "Short aligner history", raw: "[coarse]\nhistory = 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Decode([]byte(tt.raw))
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("got %v, want %v", err, config.ErrInvalidConfig)
			}
		})
	}
}

func TestDecodeWrapsParamsError(t *testing.T) {
	_, err := config.Decode([]byte("[pll]\nleak = 2.0\n"))
	if !errors.Is(err, sync.ErrInvalidParams) {
		t.Errorf("got %v, want %v", err, sync.ErrInvalidParams)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsdo.toml")
	if err := os.WriteFile(path, []byte("[dac]\ncode_init = 12000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DAC.CodeInit != 12000 {
		t.Errorf("code_init: got %d, want 12000", cfg.DAC.CodeInit)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v, want %v", err, os.ErrNotExist)
	}
}
