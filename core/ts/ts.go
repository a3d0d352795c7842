// Package ts provides exact fixed-point timestamps with picosecond resolution.
//
// All arithmetic is carried out on integers or exact rationals; rounding
// (ties to even) happens once, when a result is quantized back to
// picoseconds.
package ts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	FracDigits     = 12
	UnitsPerSecond = 1_000_000_000_000
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDivisionByZero  = errors.New("division by zero")
)

var (
	bigZero = new(big.Int)
	bigOne  = big.NewInt(1)
	bigUPS  = big.NewInt(UnitsPerSecond)
	bigKilo = big.NewInt(1000)
	bigGiga = big.NewInt(1e9)

	pow10 = [FracDigits + 1]int64{
		1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10, 1e11, 1e12,
	}
)

// Ts is a signed number of picoseconds, either since the Unix epoch or as an
// interval. The zero value is zero. The big.Int held by a Ts is never
// modified after construction, so Ts values may be copied and shared freely.
type Ts struct {
	u *big.Int
}

func (t Ts) units() *big.Int {
	if t.u == nil {
		return bigZero
	}
	return t.u
}

func FromParts(sec, frac int64) Ts {
	u := new(big.Int).Mul(big.NewInt(sec), bigUPS)
	return Ts{u.Add(u, big.NewInt(frac))}
}

func FromPicoseconds(ps int64) Ts {
	return Ts{big.NewInt(ps)}
}

func FromUnits(u *big.Int) Ts {
	return Ts{new(big.Int).Set(u)}
}

func FromTime(t time.Time) Ts {
	u := new(big.Int).Mul(big.NewInt(t.Unix()), bigGiga)
	u.Add(u, big.NewInt(int64(t.Nanosecond())))
	return Ts{u.Mul(u, bigKilo)}
}

func FromDuration(d time.Duration) Ts {
	u := big.NewInt(int64(d))
	return Ts{u.Mul(u, bigKilo)}
}

// FromFloat converts the exact binary value of x, rounding once.
func FromFloat(x float64) (Ts, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return Ts{}, fmt.Errorf("%w: %v is not finite", ErrInvalidArgument, x)
	}
	r := new(big.Rat).SetFloat64(x)
	num := new(big.Int).Mul(r.Num(), bigUPS)
	return Ts{roundQuoEven(num, r.Denom())}, nil
}

// FromStrs builds a timestamp from the integer and fractional digit strings
// of a decimal number. Fractional digits beyond picoseconds are truncated.
// The result is intStr seconds plus the fraction, so FromStrs("-3", "5") is
// -2.5 seconds; use Parse for signed decimal strings.
func FromStrs(intStr, fracStr string) (Ts, error) {
	sec, ok := new(big.Int).SetString(intStr, 10)
	if !ok {
		return Ts{}, fmt.Errorf("%w: integer part %q", ErrInvalidArgument, intStr)
	}
	if fracStr == "" || !isDigits(fracStr) {
		return Ts{}, fmt.Errorf("%w: fractional part %q", ErrInvalidArgument, fracStr)
	}
	sig := fracStr
	if len(sig) > FracDigits {
		sig = sig[:FracDigits]
	}
	frac, err := strconv.ParseInt(sig, 10, 64)
	if err != nil {
		return Ts{}, fmt.Errorf("%w: fractional part %q", ErrInvalidArgument, fracStr)
	}
	frac *= pow10[FracDigits-len(sig)]
	sec.Mul(sec, bigUPS)
	return Ts{sec.Add(sec, big.NewInt(frac))}, nil
}

// Parse parses a signed decimal number of seconds such as "-12.000000000001".
func Parse(s string) (Ts, error) {
	body := s
	neg := false
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	} else if strings.HasPrefix(body, "+") {
		body = body[1:]
	}
	intStr, fracStr, found := strings.Cut(body, ".")
	if !found {
		fracStr = "0"
	}
	if !isDigits(intStr) {
		return Ts{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidArgument, s)
	}
	t, err := FromStrs(intStr, fracStr)
	if err != nil {
		return Ts{}, err
	}
	if neg {
		t = t.Neg()
	}
	return t, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || '9' < s[i] {
			return false
		}
	}
	return true
}

// roundQuoEven returns num/den rounded to the nearest integer, ties to even.
func roundQuoEven(num, den *big.Int) *big.Int {
	n, d := num, den
	if d.Sign() < 0 {
		n = new(big.Int).Neg(n)
		d = new(big.Int).Neg(d)
	}
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	r.Abs(r)
	r.Lsh(r, 1)
	if c := r.Cmp(d); c > 0 || c == 0 && q.Bit(0) == 1 {
		if n.Sign() < 0 {
			q.Sub(q, bigOne)
		} else {
			q.Add(q, bigOne)
		}
	}
	return q
}

func (t Ts) Units() *big.Int {
	return new(big.Int).Set(t.units())
}

func (t Ts) Picoseconds() (ps int64, ok bool) {
	u := t.units()
	return u.Int64(), u.IsInt64()
}

// FloorParts splits t into whole seconds (rounded towards minus infinity)
// and a fraction in [0, UnitsPerSecond).
func (t Ts) FloorParts() (sec, frac int64) {
	s, f := new(big.Int).DivMod(t.units(), bigUPS, new(big.Int))
	return s.Int64(), f.Int64()
}

func (t Ts) Seconds() float64 {
	f, _ := new(big.Rat).SetFrac(t.units(), bigUPS).Float64()
	return f
}

// Duration rounds t to nanoseconds. Values outside the range of
// time.Duration saturate.
func (t Ts) Duration() time.Duration {
	ns := roundQuoEven(t.units(), bigKilo)
	if !ns.IsInt64() {
		if ns.Sign() < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return time.Duration(ns.Int64())
}

func (t Ts) Add(o Ts) Ts {
	return Ts{new(big.Int).Add(t.units(), o.units())}
}

func (t Ts) Sub(o Ts) Ts {
	return Ts{new(big.Int).Sub(t.units(), o.units())}
}

func (t Ts) Neg() Ts {
	return Ts{new(big.Int).Neg(t.units())}
}

func (t Ts) Abs() Ts {
	if t.units().Sign() >= 0 {
		return t
	}
	return t.Neg()
}

func (t Ts) Sign() int { return t.units().Sign() }

func (t Ts) IsZero() bool { return t.units().Sign() == 0 }

func (t Ts) Cmp(o Ts) int { return t.units().Cmp(o.units()) }

func (t Ts) Equal(o Ts) bool { return t.Cmp(o) == 0 }

func (t Ts) Mul(n int64) Ts {
	return Ts{new(big.Int).Mul(t.units(), big.NewInt(n))}
}

func (t Ts) scale(r *big.Rat) Ts {
	num := new(big.Int).Mul(t.units(), r.Num())
	return Ts{roundQuoEven(num, r.Denom())}
}

// MulRat returns t*num/den.
func (t Ts) MulRat(num, den int64) (Ts, error) {
	if den == 0 {
		return Ts{}, ErrDivisionByZero
	}
	return t.scale(big.NewRat(num, den)), nil
}

// MulFloat multiplies t by the exact binary value of f.
func (t Ts) MulFloat(f float64) (Ts, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Ts{}, fmt.Errorf("%w: factor %v is not finite", ErrInvalidArgument, f)
	}
	return t.scale(new(big.Rat).SetFloat64(f)), nil
}

func (t Ts) Div(n int64) (Ts, error) {
	if n == 0 {
		return Ts{}, ErrDivisionByZero
	}
	return t.scale(big.NewRat(1, n)), nil
}

func (t Ts) DivFloat(f float64) (Ts, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Ts{}, fmt.Errorf("%w: divisor %v is not finite", ErrInvalidArgument, f)
	}
	if f == 0 {
		return Ts{}, ErrDivisionByZero
	}
	r := new(big.Rat).SetFloat64(f)
	return t.scale(r.Inv(r)), nil
}

// Ratio returns the dimensionless quotient t/o, rounded to the nearest
// float64.
func (t Ts) Ratio(o Ts) (float64, error) {
	if o.IsZero() {
		return 0, ErrDivisionByZero
	}
	f, _ := new(big.Rat).SetFrac(t.units(), o.units()).Float64()
	return f, nil
}

func checkPlaces(places int) error {
	if places < 0 || FracDigits < places {
		return fmt.Errorf("%w: places must be between 0 and %d, got %d",
			ErrInvalidArgument, FracDigits, places)
	}
	return nil
}

// quantize rounds u picoseconds half to even at places fractional digits and
// splits the result into floored whole seconds and the kept digits.
func quantize(u *big.Int, places int) (whole *big.Int, digits int64) {
	q := roundQuoEven(u, big.NewInt(pow10[FracDigits-places]))
	whole, d := new(big.Int).DivMod(q, big.NewInt(pow10[places]), new(big.Int))
	return whole, d.Int64()
}

// Decimal renders t as a signed decimal number of seconds with the given
// number of fractional digits.
func (t Ts) Decimal(places int) (string, error) {
	if err := checkPlaces(places); err != nil {
		return "", err
	}
	u := t.units()
	whole, digits := quantize(new(big.Int).Abs(u), places)
	var b strings.Builder
	if u.Sign() < 0 && (whole.Sign() != 0 || digits != 0) {
		b.WriteByte('-')
	}
	b.WriteString(whole.String())
	if places > 0 {
		fmt.Fprintf(&b, ".%0*d", places, digits)
	}
	return b.String(), nil
}

// ISO8601 renders t as an ISO 8601 date and time in loc. A nil loc or UTC
// renders with a "Z" suffix, any other zone with its numeric offset.
func (t Ts) ISO8601(places int, loc *time.Location) (string, error) {
	if err := checkPlaces(places); err != nil {
		return "", err
	}
	whole, digits := quantize(t.units(), places)
	sec := whole.Int64()
	utc := loc == nil || loc == time.UTC
	if utc {
		loc = time.UTC
	}
	tm := time.Unix(sec, 0).In(loc)
	var b strings.Builder
	b.WriteString(tm.Format("2006-01-02T15:04:05"))
	if places > 0 {
		fmt.Fprintf(&b, ".%0*d", places, digits)
	}
	if utc {
		b.WriteByte('Z')
	} else {
		b.WriteString(tm.Format("-07:00"))
	}
	return b.String(), nil
}

func (t Ts) String() string {
	s, _ := t.Decimal(FracDigits)
	return s
}

func (t Ts) Elapsed() string {
	return t.String() + "s"
}

// Format implements fmt.Formatter: %U renders ISO 8601 in UTC, %L in the
// local zone, %E as elapsed seconds, and every other verb as a decimal.
func (t Ts) Format(f fmt.State, verb rune) {
	var s string
	switch verb {
	case 'U':
		s, _ = t.ISO8601(FracDigits, time.UTC)
	case 'L':
		s, _ = t.ISO8601(FracDigits, time.Local)
	case 'E':
		s = t.Elapsed()
	default:
		s = t.String()
	}
	_, _ = io.WriteString(f, s)
}

func (t Ts) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Ts) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
