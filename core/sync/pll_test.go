package sync_test

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"example.com/gpsdo/core/sync"
)

func runController(osc sync.OscillatorParams, errNs float64, code int, codeZero float64, n int) (
	errs []float64, codes []int) {
	c := sync.NewController(zap.NewNop(), osc, sync.DefaultPLLParams(), code)
	p := &plant{osc: osc, codeZero: codeZero, err: errNs * 1e-9}
	for i := 0; i < n; i++ {
		errs = append(errs, p.err)
		code = c.Step(p.err)
		codes = append(codes, code)
		p.advance(code)
	}
	return errs, codes
}

func TestControllerConvergence(t *testing.T) {
	tests := []struct {
		errNs    float64
		code     int
		codeZero float64
	}{
		{errNs: 40, code: 12990, codeZero: 13000},
		{errNs: 100, code: 12900, codeZero: 13000},
		{errNs: -300, code: 13500, codeZero: 13000},
		{errNs: 400, code: 12000, codeZero: 13000},
		{errNs: -500, code: 14000, codeZero: 13000},
		{errNs: 5, code: 9611, codeZero: 9700},
		{errNs: 0, code: 13000, codeZero: 13050},
	}
	osc := sync.DefaultOscillatorParams()
	for _, tt := range tests {
		errs, codes := runController(osc, tt.errNs, tt.code, tt.codeZero, 400)
		if !settled(errs, 300, 5e-9) {
			t.Errorf("start (%vns, %d): got errors %v, want within 5ns from iteration 300",
				tt.errNs, tt.code, errs[300:310])
		}
		checkCodes(t, codes, osc.CodeMin, osc.CodeMax)
		if last := codes[len(codes)-1]; math.Abs(float64(last)-tt.codeZero) > 10 {
			t.Errorf("start (%vns, %d): got final code %d, want near %v", tt.errNs, tt.code, last, tt.codeZero)
		}
	}
}

func TestControllerStaysWithinRails(t *testing.T) {
	osc := sync.DefaultOscillatorParams()
	osc.CodeMin, osc.CodeMax = 12950, 13100
	errs, codes := runController(osc, -300, 13050, 13000, 1500)
	checkCodes(t, codes, 12950, 13100)
	if !settled(errs, 1000, 5e-9) {
		t.Errorf("got errors %v, want within 5ns from iteration 1000", errs[1000:1010])
	}
}

func TestControllerGainScheduling(t *testing.T) {
	osc := sync.DefaultOscillatorParams()
	c := sync.NewController(zap.NewNop(), osc, sync.DefaultPLLParams(), 13000)
	steps := []struct {
		errNs float64
		want  bool
	}{
		{errNs: 10, want: false},
		{errNs: 23, want: false}, // within the hysteresis band
		{errNs: 25, want: true},
		{errNs: 21, want: true},
		{errNs: 19, want: false},
	}
	for _, s := range steps {
		c.Step(s.errNs * 1e-9)
		if c.Acquiring() != s.want {
			t.Errorf("after %vns: got acquiring %v, want %v", s.errNs, c.Acquiring(), s.want)
		}
	}
}

func TestControllerClampsStartCode(t *testing.T) {
	osc := sync.DefaultOscillatorParams()
	c := sync.NewController(zap.NewNop(), osc, sync.DefaultPLLParams(), 70000)
	if code := c.Step(0); code != osc.CodeMax {
		t.Errorf("got %d, want %d", code, osc.CodeMax)
	}
}

func stepAll(c *sync.Controller, errsNs []float64) (codes []int) {
	for _, e := range errsNs {
		codes = append(codes, c.Step(e*1e-9))
	}
	return codes
}

func TestControllerSlewLimit(t *testing.T) {
	osc := sync.DefaultOscillatorParams()
	for _, maxStep := range []int{200, 50, 10} {
		p := sync.DefaultPLLParams()
		p.MaxCodesPerStep = maxStep
		c := sync.NewController(zap.NewNop(), osc, p, 13000)
		codes := stepAll(c, []float64{400, 400, 400, 400, 400})
		if codes[0] != 13000-maxStep {
			t.Errorf("max %d: first code: got %d, want %d", maxStep, codes[0], 13000-maxStep)
		}
		prev := 13000
		for i, code := range codes {
			if d := code - prev; d > maxStep || d < -maxStep {
				t.Errorf("max %d: step #%d moved %d codes", maxStep, i, d)
			}
			prev = code
		}
	}
}

func TestControllerFLLDeadband(t *testing.T) {
	tests := []struct {
		deadbandNs float64
		errsNs     []float64
	}{
		{deadbandNs: 10, errsNs: []float64{5, 8, 12, 15, -3, 10, 18}},
		{deadbandNs: 50, errsNs: []float64{30, 40, 45, 35, 48, 25}},
	}
	osc := sync.DefaultOscillatorParams()
	for _, tt := range tests {
		p := sync.DefaultPLLParams()
		p.FLLDeadbandNs = tt.deadbandNs
		noFLL := p
		noFLL.FLLGain = 0
		c := sync.NewController(zap.NewNop(), osc, p, 13000)
		ref := sync.NewController(zap.NewNop(), osc, noFLL, 13000)
		got, want := stepAll(c, tt.errsNs), stepAll(ref, tt.errsNs)
		if !equalInts(got, want) {
			t.Errorf("deadband %v ns: got codes %v, want %v", tt.deadbandNs, got, want)
		}
		if c.FreqHz() != ref.FreqHz() {
			t.Errorf("deadband %v ns: got %v Hz, want %v Hz", tt.deadbandNs, c.FreqHz(), ref.FreqHz())
		}
	}

	// Beyond the deadband the FLL contributes.
	p := sync.DefaultPLLParams()
	noFLL := p
	noFLL.FLLGain = 0
	c := sync.NewController(zap.NewNop(), osc, p, 13000)
	ref := sync.NewController(zap.NewNop(), osc, noFLL, 13000)
	stepAll(c, []float64{100, 200, 300})
	stepAll(ref, []float64{100, 200, 300})
	if c.FreqHz() == ref.FreqHz() {
		t.Errorf("outside deadband: got %v Hz with and without FLL, want different", c.FreqHz())
	}
}

func TestControllerZeroCrossingHoldoff(t *testing.T) {
	osc := sync.DefaultOscillatorParams()
	p := sync.DefaultPLLParams()
	noFLL := p
	noFLL.FLLGain = 0
	tests := []struct {
		errsNs []float64
		same   bool
	}{
		{errsNs: []float64{500, -500}, same: true},
		{errsNs: []float64{-450, 450}, same: true},
		{errsNs: []float64{30, -600}, same: true},
		{errsNs: []float64{500, 900}, same: false},
	}
	for _, tt := range tests {
		c := sync.NewController(zap.NewNop(), osc, p, 13000)
		ref := sync.NewController(zap.NewNop(), osc, noFLL, 13000)
		got, want := stepAll(c, tt.errsNs), stepAll(ref, tt.errsNs)
		same := c.FreqHz() == ref.FreqHz() && equalInts(got, want)
		if same != tt.same {
			t.Errorf("%v: got %v Hz (codes %v), PLL only %v Hz (codes %v), want same=%v",
				tt.errsNs, c.FreqHz(), got, ref.FreqHz(), want, tt.same)
		}
	}
}

func TestControllerLeak(t *testing.T) {
	tests := []struct {
		name    string
		errNs   float64
		leak    float64
		leaking bool
	}{
		{"railed, quarter", -300, 0.25, true},
		{"railed, half", -300, 0.5, true},
		{"railed, full", -300, 1, true},
		{"free", 1, 0.5, false},
	}
	osc := sync.DefaultOscillatorParams()
	osc.CodeMin, osc.CodeMax = 12950, 13050
	for _, tt := range tests {
		noLeak := sync.DefaultPLLParams()
		noLeak.Leak = 0
		ref := sync.NewController(zap.NewNop(), osc, noLeak, 13000)
		ref.Step(tt.errNs * 1e-9)
		raw := ref.FreqHz()

		p := sync.DefaultPLLParams()
		p.Leak = tt.leak
		c := sync.NewController(zap.NewNop(), osc, p, 13000)
		code := c.Step(tt.errNs * 1e-9)

		want := raw
		if tt.leaking {
			if code != osc.CodeMax {
				t.Errorf("%s: code: got %d, want %d", tt.name, code, osc.CodeMax)
			}
			realized := float64(code-13000) * osc.HzPerCode
			want = raw - tt.leak*(raw-realized)
		}
		if math.Abs(c.FreqHz()-want) > 1e-12 {
			t.Errorf("%s: frequency: got %v Hz, want %v Hz", tt.name, c.FreqHz(), want)
		}
	}
}
