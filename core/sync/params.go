package sync

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidParams = errors.New("invalid control parameters")

// OscillatorParams describe the disciplined oscillator and its actuator.
type OscillatorParams struct {
	F0Hz       float64 // nominal frequency
	HzPerCode  float64 // frequency change per actuator code, may be negative
	CodeMin    int
	CodeMax    int
	SampleTime float64 // seconds between phase error samples
}

func DefaultOscillatorParams() OscillatorParams {
	return OscillatorParams{
		F0Hz:       10e6,
		HzPerCode:  -4.2034700315e-05,
		CodeMin:    0,
		CodeMax:    65535,
		SampleTime: 1,
	}
}

func (p OscillatorParams) Validate() error {
	switch {
	case !(p.F0Hz > 0):
		return fmt.Errorf("%w: f0 must be positive", ErrInvalidParams)
	case p.HzPerCode == 0 || math.IsNaN(p.HzPerCode) || math.IsInf(p.HzPerCode, 0):
		return fmt.Errorf("%w: Hz per code must be finite and nonzero", ErrInvalidParams)
	case p.CodeMin < 0 || p.CodeMax > 65535 || p.CodeMin >= p.CodeMax:
		return fmt.Errorf("%w: code range [%d, %d]", ErrInvalidParams, p.CodeMin, p.CodeMax)
	case !(p.SampleTime > 0):
		return fmt.Errorf("%w: sample time must be positive", ErrInvalidParams)
	}
	return nil
}

type AlignerParams struct {
	History          int     // phase error samples used for the zero-frequency estimate
	GoalNs           float64 // capture window
	PushPpb          float64 // frequency push while outside the goal
	TauSec           float64 // push never exceeds |error|/TauSec
	MaxCodesPerStep  int
	RampCodesPerStep int
	HoldCount        int // samples within goal before ramping
}

func DefaultAlignerParams() AlignerParams {
	return AlignerParams{
		History:          7,
		GoalNs:           15,
		PushPpb:          2,
		TauSec:           5,
		MaxCodesPerStep:  100,
		RampCodesPerStep: 20,
		HoldCount:        2,
	}
}

func (p AlignerParams) Validate() error {
	switch {
	case p.History < 5 || p.History > 9:
		return fmt.Errorf("%w: aligner history %d not in [5, 9]", ErrInvalidParams, p.History)
	case !(p.GoalNs > 0):
		return fmt.Errorf("%w: aligner goal must be positive", ErrInvalidParams)
	case !(p.PushPpb > 0):
		return fmt.Errorf("%w: aligner push must be positive", ErrInvalidParams)
	case !(p.TauSec > 0):
		return fmt.Errorf("%w: aligner tau must be positive", ErrInvalidParams)
	case p.MaxCodesPerStep < 1 || p.RampCodesPerStep < 1:
		return fmt.Errorf("%w: aligner slew limits must be at least one code", ErrInvalidParams)
	case p.HoldCount < 1:
		return fmt.Errorf("%w: aligner hold count must be at least one", ErrInvalidParams)
	}
	return nil
}

type PLLParams struct {
	TrackBandHz     float64
	AcquireBandHz   float64
	Zeta            float64
	EngageLowNs     float64 // below: track gains, no FLL
	EngageHighNs    float64 // above: full FLL assist
	Hysteresis      float64 // acquire gains above EngageLowNs*(1+Hysteresis)
	FLLGain         float64
	FLLMaxHz        float64
	FLLDeadbandNs   float64
	EMAAlpha        float64 // weight of the newest sample in the smoothed phase rate
	MaxFreqHz       float64
	Leak            float64 // fraction of windup removed when the actuator saturates
	MaxCodesPerStep int
}

func DefaultPLLParams() PLLParams {
	return PLLParams{
		TrackBandHz:     0.005,
		AcquireBandHz:   0.02,
		Zeta:            0.7,
		EngageLowNs:     20,
		EngageHighNs:    400,
		Hysteresis:      0.2,
		FLLGain:         0.5,
		FLLMaxHz:        0.001,
		FLLDeadbandNs:   10,
		EMAAlpha:        0.3,
		MaxFreqHz:       1.0,
		Leak:            0.5,
		MaxCodesPerStep: 200,
	}
}

type gains struct {
	kp, ki float64
}

func newGains(bandHz, zeta float64) gains {
	w := 2 * math.Pi * bandHz
	return gains{kp: 2 * zeta * w, ki: w * w}
}

// stable reports whether the discrete loop closed with g, plus an extra
// proportional gain, is stable at sample time t (Jury criterion for
// z^2 + (a+b-2)z + (1-a) with a = t*kp + extra, b = t^2*ki).
func (g gains) stable(t, extra float64) bool {
	a := t*g.kp + extra
	b := t * t * g.ki
	return 0 < a && a < 2 && b > 0 && 4-2*a-b > 0
}

func (p PLLParams) Validate(osc OscillatorParams) error {
	switch {
	case !(p.TrackBandHz > 0) || !(p.AcquireBandHz >= p.TrackBandHz):
		return fmt.Errorf("%w: bandwidths must satisfy 0 < track <= acquire", ErrInvalidParams)
	case !(p.Zeta > 0):
		return fmt.Errorf("%w: damping must be positive", ErrInvalidParams)
	case !(p.EngageLowNs > 0) || !(p.EngageHighNs > p.EngageLowNs):
		return fmt.Errorf("%w: engage thresholds must satisfy 0 < low < high", ErrInvalidParams)
	case p.Hysteresis < 0:
		return fmt.Errorf("%w: hysteresis must not be negative", ErrInvalidParams)
	case p.FLLGain < 0 || p.FLLMaxHz < 0 || p.FLLDeadbandNs < 0:
		return fmt.Errorf("%w: FLL gain, limit, and deadband must not be negative", ErrInvalidParams)
	case !(p.EMAAlpha > 0) || p.EMAAlpha > 1:
		return fmt.Errorf("%w: EMA alpha must be in (0, 1]", ErrInvalidParams)
	case !(p.MaxFreqHz > 0):
		return fmt.Errorf("%w: max frequency must be positive", ErrInvalidParams)
	case p.Leak < 0 || p.Leak > 1:
		return fmt.Errorf("%w: leak must be in [0, 1]", ErrInvalidParams)
	case p.MaxCodesPerStep < 1:
		return fmt.Errorf("%w: slew limit must be at least one code", ErrInvalidParams)
	}
	if !newGains(p.TrackBandHz, p.Zeta).stable(osc.SampleTime, 0) {
		return fmt.Errorf("%w: track bandwidth %v Hz is unstable at sample time %v s",
			ErrInvalidParams, p.TrackBandHz, osc.SampleTime)
	}
	if !newGains(p.AcquireBandHz, p.Zeta).stable(osc.SampleTime, p.FLLGain) {
		return fmt.Errorf("%w: acquire bandwidth %v Hz with FLL gain %v is unstable at sample time %v s",
			ErrInvalidParams, p.AcquireBandHz, p.FLLGain, osc.SampleTime)
	}
	return nil
}

type WatchParams struct {
	CoarseThreshNs float64 // above: hardware phase step
	FineThreshNs   float64 // at or below: steady-state controller
	StepRetries    int     // consecutive coarse breaches before a step is re-issued
	StepStormAfter int     // steps per acquisition attempt before warning
}

func DefaultWatchParams() WatchParams {
	return WatchParams{
		CoarseThreshNs: 510,
		FineThreshNs:   20,
		StepRetries:    4,
		StepStormAfter: 1,
	}
}

func (p WatchParams) Validate() error {
	switch {
	case !(p.FineThreshNs > 0) || !(p.CoarseThreshNs > p.FineThreshNs):
		return fmt.Errorf("%w: thresholds must satisfy 0 < fine < coarse", ErrInvalidParams)
	case p.CoarseThreshNs >= 5e8:
		return fmt.Errorf("%w: coarse threshold must be below half a second", ErrInvalidParams)
	case p.StepRetries < 1:
		return fmt.Errorf("%w: step retries must be at least one", ErrInvalidParams)
	case p.StepStormAfter < 1:
		return fmt.Errorf("%w: step storm threshold must be at least one", ErrInvalidParams)
	}
	return nil
}
