package ts

import (
	"fmt"
)

// TicTs is an event timestamp on its own reference timescale together with
// the host time at which the event was captured. Cap is only used to
// correlate events from different streams.
type TicTs struct {
	Ref Ts
	Cap Ts
}

func (t TicTs) String() string {
	return fmt.Sprintf("%v@%v", t.Ref, t.Cap)
}

// PairTs is a GNSS and a disciplined oscillator event from the same second.
type PairTs struct {
	Gns TicTs
	Dsc TicTs
}

// PhaseError returns the oscillator's phase relative to the reference
// (oscillator minus reference). Positive values mean the oscillator lags.
func (p PairTs) PhaseError() Ts {
	return p.Dsc.Ref.Sub(p.Gns.Ref)
}

func (p PairTs) String() string {
	return fmt.Sprintf("gns=%v dsc=%v", p.Gns, p.Dsc)
}

// QerrTs is a quantization error correction reported by the GNSS receiver
// and the host time at which it was captured.
type QerrTs struct {
	Qerr Ts
	Cap  Ts
}

func (q QerrTs) String() string {
	return fmt.Sprintf("%v@%v", q.Qerr, q.Cap)
}
