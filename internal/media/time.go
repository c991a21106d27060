// Package media describes the read-only inputs of the composition engine:
// rational media time, frame geometry and the tracks of a source clip.
package media

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// DefaultTimescale is used when an adapter has to convert floating point
// seconds into rational time.
const DefaultTimescale = 600

var (
	ErrInvalidTimescale = errors.New("invalid timescale")
	ErrTimeOverflow     = errors.New("time arithmetic overflows int64")
)

// Time is a rational point or length on a media timeline: Value / Scale seconds.
type Time struct {
	Value int64 `json:"value"`
	Scale int64 `json:"scale"`
}

// Zero is the start of every timeline.
var Zero = Time{Value: 0, Scale: 1}

func NewTime(value, scale int64) Time {
	return Time{Value: value, Scale: scale}
}

// TimeFromSeconds converts seconds into rational time at the given scale,
// rounding to the nearest tick.
func TimeFromSeconds(seconds float64, scale int64) Time {
	if scale <= 0 {
		scale = DefaultTimescale
	}
	return Time{Value: int64(math.Round(seconds * float64(scale))), Scale: scale}
}

func (t Time) Valid() bool {
	return t.Scale > 0
}

func (t Time) IsPositive() bool {
	return t.Valid() && t.Value > 0
}

func (t Time) Seconds() float64 {
	if !t.Valid() {
		return 0
	}
	return float64(t.Value) / float64(t.Scale)
}

// Duration converts t to a wall clock duration, truncated to the nanosecond.
func (t Time) Duration() time.Duration {
	if !t.Valid() {
		return 0
	}
	whole := t.Value / t.Scale
	rem := t.Value % t.Scale
	return time.Duration(whole)*time.Second + time.Duration(rem*int64(time.Second)/t.Scale)
}

// Promote rewrites a and b in the least common multiple of their timescales,
// so arithmetic on the pair is exact. It fails with ErrTimeOverflow when the
// common timescale or a rescaled value does not fit in int64.
func Promote(a, b Time) (Time, Time, error) {
	if !a.Valid() || !b.Valid() {
		return Time{}, Time{}, fmt.Errorf("%w: %d and %d", ErrInvalidTimescale, a.Scale, b.Scale)
	}
	if a.Scale == b.Scale {
		return a, b, nil
	}
	scale, ok := mulInt64(a.Scale/gcd(a.Scale, b.Scale), b.Scale)
	if !ok {
		return Time{}, Time{}, fmt.Errorf("%w: lcm of %d and %d", ErrTimeOverflow, a.Scale, b.Scale)
	}
	av, okA := mulInt64(a.Value, scale/a.Scale)
	bv, okB := mulInt64(b.Value, scale/b.Scale)
	if !okA || !okB {
		return Time{}, Time{}, fmt.Errorf("%w: promoting %s and %s", ErrTimeOverflow, a, b)
	}
	return Time{Value: av, Scale: scale}, Time{Value: bv, Scale: scale}, nil
}

// Add returns t+u reduced to lowest terms. Operands are reduced first so
// repeated accumulation does not grow the timescale.
func (t Time) Add(u Time) (Time, error) {
	a, b, err := Promote(t.Normalize(), u.Normalize())
	if err != nil {
		return Time{}, err
	}
	v, ok := addInt64(a.Value, b.Value)
	if !ok {
		return Time{}, fmt.Errorf("%w: %s + %s", ErrTimeOverflow, t, u)
	}
	return Time{Value: v, Scale: a.Scale}.Normalize(), nil
}

func (t Time) Sub(u Time) (Time, error) {
	a, b, err := Promote(t.Normalize(), u.Normalize())
	if err != nil {
		return Time{}, err
	}
	if b.Value == math.MinInt64 {
		return Time{}, fmt.Errorf("%w: %s - %s", ErrTimeOverflow, t, u)
	}
	v, ok := addInt64(a.Value, -b.Value)
	if !ok {
		return Time{}, fmt.Errorf("%w: %s - %s", ErrTimeOverflow, t, u)
	}
	return Time{Value: v, Scale: a.Scale}.Normalize(), nil
}

// Compare returns -1, 0 or +1. Invalid times sort before valid ones.
func (t Time) Compare(u Time) int {
	if !t.Valid() || !u.Valid() {
		switch {
		case t.Valid() == u.Valid():
			return 0
		case !t.Valid():
			return -1
		default:
			return 1
		}
	}
	a, b, err := Promote(t.Normalize(), u.Normalize())
	if err != nil {
		// Cross-multiply without bounds when the common scale overflows.
		l := new(big.Int).Mul(big.NewInt(t.Value), big.NewInt(u.Scale))
		r := new(big.Int).Mul(big.NewInt(u.Value), big.NewInt(t.Scale))
		return l.Cmp(r)
	}
	switch {
	case a.Value < b.Value:
		return -1
	case a.Value > b.Value:
		return 1
	default:
		return 0
	}
}

func (t Time) Equal(u Time) bool {
	return t.Compare(u) == 0
}

func (t Time) Before(u Time) bool {
	return t.Compare(u) < 0
}

// Normalize reduces Value/Scale by their greatest common divisor.
func (t Time) Normalize() Time {
	if !t.Valid() {
		return t
	}
	if t.Value == 0 {
		return Zero
	}
	g := gcd(abs64(t.Value), t.Scale)
	if g < 0 {
		g = -g
	}
	return Time{Value: t.Value / g, Scale: t.Scale / g}
}

func (t Time) String() string {
	return fmt.Sprintf("%d/%d", t.Value, t.Scale)
}

// TimeRange is a rational (start, duration) pair.
type TimeRange struct {
	Start    Time `json:"start"`
	Duration Time `json:"duration"`
}

func (r TimeRange) End() (Time, error) {
	return r.Start.Add(r.Duration)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s +%s)", r.Start, r.Duration)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
