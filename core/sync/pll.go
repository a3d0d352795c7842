package sync

import (
	"math"

	"go.uber.org/zap"

	"example.com/gpsdo/base/floats"
	"example.com/gpsdo/base/timemath"
)

// Controller is the steady-state phase controller: a velocity-form PI loop
// on phase error with two bandwidths, assisted by a frequency-locked loop
// during large excursions.
type Controller struct {
	log     *zap.Logger
	osc     OscillatorParams
	p       PLLParams
	track   gains
	acquire gains

	center    int     // code at which freqHz is zero
	freqHz    float64 // integrated frequency command
	prevErr   float64
	rateEMA   float64 // smoothed phase rate, s/s
	primed    bool
	acquiring bool
	q         quantizer
}

func NewController(log *zap.Logger, osc OscillatorParams, p PLLParams, code int) *Controller {
	code = clampCode(code, osc.CodeMin, osc.CodeMax)
	return &Controller{
		log:     log,
		osc:     osc,
		p:       p,
		track:   newGains(p.TrackBandHz, p.Zeta),
		acquire: newGains(p.AcquireBandHz, p.Zeta),
		center:  code,
		q:       quantizer{code: code},
	}
}

func (c *Controller) FreqHz() float64 { return c.freqHz }

func (c *Controller) Acquiring() bool { return c.acquiring }

// fllBlend returns the weight of the FLL contribution for a phase error of
// magnitude absErr seconds.
func (c *Controller) fllBlend(absErr float64) float64 {
	lo := math.Max(c.p.EngageLowNs, c.p.FLLDeadbandNs) * 1e-9
	hi := c.p.EngageHighNs * 1e-9
	switch {
	case absErr <= lo:
		return 0
	case absErr >= hi:
		return 1
	default:
		return (absErr - lo) / (hi - lo)
	}
}

// Step consumes one phase error sample in seconds (oscillator minus
// reference) and returns the next actuator code.
func (c *Controller) Step(errSec float64) int {
	err := timemath.WrapSeconds(errSec)
	if !c.primed {
		c.prevErr = err
		c.primed = true
	}
	t := c.osc.SampleTime
	f0 := c.osc.F0Hz
	absErr := math.Abs(err)

	low := c.p.EngageLowNs * 1e-9
	if !c.acquiring && absErr > low*(1+c.p.Hysteresis) {
		c.acquiring = true
	} else if c.acquiring && absErr < low {
		c.acquiring = false
	}
	g := c.track
	if c.acquiring {
		g = c.acquire
	}

	dErr := err - c.prevErr
	pllHz := f0 * (g.kp*dErr + g.ki*t*err)

	c.rateEMA = (1-c.p.EMAAlpha)*c.rateEMA + c.p.EMAAlpha*dErr/t
	blend := c.fllBlend(absErr)
	if floats.Sgn(err)*floats.Sgn(c.prevErr) < 0 {
		blend = 0
	}
	fllHz := floats.Clamp(c.p.FLLGain*f0*c.rateEMA, -c.p.FLLMaxHz, c.p.FLLMaxHz)

	c.freqHz = floats.Clamp(c.freqHz+pllHz+blend*fllHz, -c.p.MaxFreqHz, c.p.MaxFreqHz)

	target := float64(c.center) + c.freqHz/c.osc.HzPerCode
	limited, railed := c.q.step(target, c.p.MaxCodesPerStep, c.osc.CodeMin, c.osc.CodeMax)
	if limited || railed {
		realized := float64(c.q.code-c.center) * c.osc.HzPerCode
		c.freqHz -= c.p.Leak * (c.freqHz - realized)
	}
	c.prevErr = err

	c.log.Debug("PLL iteration",
		zap.Float64("errNs", timemath.Nanoseconds(err)),
		zap.Bool("acquiring", c.acquiring),
		zap.Float64("pllHz", pllHz),
		zap.Float64("fllHz", fllHz),
		zap.Float64("blend", blend),
		zap.Float64("freqHz", c.freqHz),
		zap.Float64("carry", c.q.carry),
		zap.Bool("limited", limited),
		zap.Bool("railed", railed),
		zap.Int("code", c.q.code),
	)
	return c.q.code
}
