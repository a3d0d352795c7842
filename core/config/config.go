// Package config defines the daemon's TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"example.com/gpsdo/base/timemath"
	"example.com/gpsdo/core/sync"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type TIC struct {
	Port        string  `toml:"port"`
	Baud        int     `toml:"baud"`
	QuietAfterS float64 `toml:"quiet_after_s"`
	GNSSChannel string  `toml:"gnss_channel"`
	DSCChannel  string  `toml:"dsc_channel"`
}

type GNSS struct {
	Port        string  `toml:"port"`
	Baud        int     `toml:"baud"`
	QuietAfterS float64 `toml:"quiet_after_s"`
	ApplyQerr   bool    `toml:"apply_qerr"`
}

type DAC struct {
	Bus      string `toml:"bus"`
	Address  uint16 `toml:"address"`
	Gain     int    `toml:"gain"`
	CodeInit int    `toml:"code_init"`
}

type ARM struct {
	Pin     string `toml:"pin"`
	PulseMs int    `toml:"pulse_ms"`
}

type Bus struct {
	WarnIfSlowMs float64 `toml:"warn_if_slow_ms"`
}

type PhaseWatch struct {
	CoarseThreshNs float64 `toml:"coarse_thresh_ns"`
	FineThreshNs   float64 `toml:"fine_thresh_ns"`
	StepRetries    int     `toml:"step_retries"`
	StepStormAfter int     `toml:"step_storm_after"`
}

type Oscillator struct {
	F0Hz        float64 `toml:"f0_hz"`
	HzPerCode   float64 `toml:"hz_per_code"`
	CodeMin     int     `toml:"code_min"`
	CodeMax     int     `toml:"code_max"`
	SampleTimeS float64 `toml:"sample_time_s"`
}

type Coarse struct {
	History          int     `toml:"history"`
	GoalNs           float64 `toml:"goal_ns"`
	PushPpb          float64 `toml:"push_ppb"`
	TauS             float64 `toml:"tau_s"`
	MaxCodesPerStep  int     `toml:"max_codes_per_step"`
	RampCodesPerStep int     `toml:"ramp_codes_per_step"`
	HoldCount        int     `toml:"hold_count"`
}

type PLL struct {
	TrackBandHz     float64 `toml:"track_band_hz"`
	AcquireBandHz   float64 `toml:"acquire_band_hz"`
	Zeta            float64 `toml:"zeta"`
	EngageLowNs     float64 `toml:"engage_low_ns"`
	EngageHighNs    float64 `toml:"engage_high_ns"`
	Hysteresis      float64 `toml:"hysteresis"`
	FLLGain         float64 `toml:"fll_gain"`
	FLLMaxHz        float64 `toml:"fll_max_hz"`
	FLLDeadbandNs   float64 `toml:"fll_deadband_ns"`
	EMAAlpha        float64 `toml:"ema_alpha"`
	MaxFreqHz       float64 `toml:"max_freq_hz"`
	Leak            float64 `toml:"leak"`
	MaxCodesPerStep int     `toml:"max_codes_per_step"`
}

type Config struct {
	MetricsAddr string     `toml:"metrics_address"`
	TIC         TIC        `toml:"tic"`
	GNSS        GNSS       `toml:"gnss"`
	DAC         DAC        `toml:"dac"`
	ARM         ARM        `toml:"arm"`
	Bus         Bus        `toml:"bus"`
	PhaseWatch  PhaseWatch `toml:"phase_watch"`
	Oscillator  Oscillator `toml:"oscillator"`
	Coarse      Coarse     `toml:"coarse"`
	PLL         PLL        `toml:"pll"`
}

func Default() Config {
	osc := sync.DefaultOscillatorParams()
	ap := sync.DefaultAlignerParams()
	pp := sync.DefaultPLLParams()
	wp := sync.DefaultWatchParams()
	return Config{
		MetricsAddr: "127.0.0.1:8080",
		TIC: TIC{
			Port:        "/dev/ttyUSB0",
			Baud:        115200,
			QuietAfterS: 10,
			GNSSChannel: "A",
			DSCChannel:  "B",
		},
		GNSS: GNSS{
			Port:        "/dev/ttyACM0",
			Baud:        115200,
			QuietAfterS: 10,
			ApplyQerr:   true,
		},
		DAC: DAC{
			Bus:      "1",
			Address:  0x4C,
			Gain:     1,
			CodeInit: 9611,
		},
		ARM: ARM{
			Pin:     "GPIO16",
			PulseMs: 1100,
		},
		Bus: Bus{
			WarnIfSlowMs: 5,
		},
		PhaseWatch: PhaseWatch{
			CoarseThreshNs: wp.CoarseThreshNs,
			FineThreshNs:   wp.FineThreshNs,
			StepRetries:    wp.StepRetries,
			StepStormAfter: wp.StepStormAfter,
		},
		Oscillator: Oscillator{
			F0Hz:        osc.F0Hz,
			HzPerCode:   osc.HzPerCode,
			CodeMin:     osc.CodeMin,
			CodeMax:     osc.CodeMax,
			SampleTimeS: osc.SampleTime,
		},
		Coarse: Coarse{
			History:          ap.History,
			GoalNs:           ap.GoalNs,
			PushPpb:          ap.PushPpb,
			TauS:             ap.TauSec,
			MaxCodesPerStep:  ap.MaxCodesPerStep,
			RampCodesPerStep: ap.RampCodesPerStep,
			HoldCount:        ap.HoldCount,
		},
		PLL: PLL{
			TrackBandHz:     pp.TrackBandHz,
			AcquireBandHz:   pp.AcquireBandHz,
			Zeta:            pp.Zeta,
			EngageLowNs:     pp.EngageLowNs,
			EngageHighNs:    pp.EngageHighNs,
			Hysteresis:      pp.Hysteresis,
			FLLGain:         pp.FLLGain,
			FLLMaxHz:        pp.FLLMaxHz,
			FLLDeadbandNs:   pp.FLLDeadbandNs,
			EMAAlpha:        pp.EMAAlpha,
			MaxFreqHz:       pp.MaxFreqHz,
			Leak:            pp.Leak,
			MaxCodesPerStep: pp.MaxCodesPerStep,
		},
	}
}

// Decode parses raw on top of the defaults. Unknown keys are rejected.
func Decode(raw []byte) (Config, error) {
	cfg := Default()
	err := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Decode(raw)
}

func validChannel(ch string) bool {
	return ch == "A" || ch == "B"
}

func (c Config) Validate() error {
	switch {
	case c.TIC.Port == "":
		return fmt.Errorf("%w: tic.port is empty", ErrInvalidConfig)
	case c.TIC.Baud <= 0:
		return fmt.Errorf("%w: tic.baud must be positive", ErrInvalidConfig)
	case !validChannel(c.TIC.GNSSChannel) || !validChannel(c.TIC.DSCChannel):
		return fmt.Errorf("%w: tic channels must be \"A\" or \"B\"", ErrInvalidConfig)
	case c.TIC.GNSSChannel == c.TIC.DSCChannel:
		return fmt.Errorf("%w: tic.gnss_channel and tic.dsc_channel are both %q",
			ErrInvalidConfig, c.TIC.GNSSChannel)
	case !(c.TIC.QuietAfterS > 0):
		return fmt.Errorf("%w: tic.quiet_after_s must be positive", ErrInvalidConfig)
	case c.GNSS.ApplyQerr && c.GNSS.Port == "":
		return fmt.Errorf("%w: gnss.port is empty", ErrInvalidConfig)
	case c.GNSS.ApplyQerr && c.GNSS.Baud <= 0:
		return fmt.Errorf("%w: gnss.baud must be positive", ErrInvalidConfig)
	case c.GNSS.ApplyQerr && !(c.GNSS.QuietAfterS > 0):
		return fmt.Errorf("%w: gnss.quiet_after_s must be positive", ErrInvalidConfig)
	case c.DAC.Gain != 1 && c.DAC.Gain != 2:
		return fmt.Errorf("%w: dac.gain must be 1 or 2", ErrInvalidConfig)
	case c.DAC.Address > 0x7F:
		return fmt.Errorf("%w: dac.address %#x is not a 7-bit address", ErrInvalidConfig, c.DAC.Address)
	case c.DAC.CodeInit < c.Oscillator.CodeMin || c.DAC.CodeInit > c.Oscillator.CodeMax:
		return fmt.Errorf("%w: dac.code_init %d outside [%d, %d]",
			ErrInvalidConfig, c.DAC.CodeInit, c.Oscillator.CodeMin, c.Oscillator.CodeMax)
	case c.ARM.Pin == "":
		return fmt.Errorf("%w: arm.pin is empty", ErrInvalidConfig)
	case c.ARM.PulseMs < 1000:
		return fmt.Errorf("%w: arm.pulse_ms must be at least 1000", ErrInvalidConfig)
	case c.Bus.WarnIfSlowMs < 0:
		return fmt.Errorf("%w: bus.warn_if_slow_ms must not be negative", ErrInvalidConfig)
	}
	if err := c.SyncParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) SyncParams() sync.Params {
	return sync.Params{
		Oscillator: sync.OscillatorParams{
			F0Hz:       c.Oscillator.F0Hz,
			HzPerCode:  c.Oscillator.HzPerCode,
			CodeMin:    c.Oscillator.CodeMin,
			CodeMax:    c.Oscillator.CodeMax,
			SampleTime: c.Oscillator.SampleTimeS,
		},
		Aligner: sync.AlignerParams{
			History:          c.Coarse.History,
			GoalNs:           c.Coarse.GoalNs,
			PushPpb:          c.Coarse.PushPpb,
			TauSec:           c.Coarse.TauS,
			MaxCodesPerStep:  c.Coarse.MaxCodesPerStep,
			RampCodesPerStep: c.Coarse.RampCodesPerStep,
			HoldCount:        c.Coarse.HoldCount,
		},
		PLL: sync.PLLParams{
			TrackBandHz:     c.PLL.TrackBandHz,
			AcquireBandHz:   c.PLL.AcquireBandHz,
			Zeta:            c.PLL.Zeta,
			EngageLowNs:     c.PLL.EngageLowNs,
			EngageHighNs:    c.PLL.EngageHighNs,
			Hysteresis:      c.PLL.Hysteresis,
			FLLGain:         c.PLL.FLLGain,
			FLLMaxHz:        c.PLL.FLLMaxHz,
			FLLDeadbandNs:   c.PLL.FLLDeadbandNs,
			EMAAlpha:        c.PLL.EMAAlpha,
			MaxFreqHz:       c.PLL.MaxFreqHz,
			Leak:            c.PLL.Leak,
			MaxCodesPerStep: c.PLL.MaxCodesPerStep,
		},
		Watch: sync.WatchParams{
			CoarseThreshNs: c.PhaseWatch.CoarseThreshNs,
			FineThreshNs:   c.PhaseWatch.FineThreshNs,
			StepRetries:    c.PhaseWatch.StepRetries,
			StepStormAfter: c.PhaseWatch.StepStormAfter,
		},
	}
}

func (c Config) WarnIfSlow() time.Duration {
	return time.Duration(c.Bus.WarnIfSlowMs * float64(time.Millisecond))
}

func (c Config) ARMHold() time.Duration {
	return time.Duration(c.ARM.PulseMs) * time.Millisecond
}

func (t TIC) QuietAfter() time.Duration { return timemath.Duration(t.QuietAfterS) }

func (g GNSS) QuietAfter() time.Duration { return timemath.Duration(g.QuietAfterS) }
