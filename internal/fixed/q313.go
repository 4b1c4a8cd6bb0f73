// Package fixed holds the Q3.13 fixed point type used for QADC scale factors.
package fixed

import "math"

// Q3_13 is an unsigned 16 bit fixed point value with 3 integer and 13
// fractional bits, covering [0, 8).
type Q3_13 uint16

const (
	Shift = 13

	One Q3_13 = 1 << Shift
	Max Q3_13 = math.MaxUint16
)

// Ratio returns num/den as Q3.13, truncating and saturating at Max.
// A zero denominator saturates as well.
func Ratio(num, den uint32) Q3_13 {
	if den == 0 {
		return Max
	}
	q := (uint64(num) << Shift) / uint64(den)
	if q > uint64(Max) {
		return Max
	}
	return Q3_13(q)
}

// FromFloat converts f to Q3.13, clamping to the representable range.
func FromFloat(f float64) Q3_13 {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	q := f * float64(One)
	if q >= float64(Max) {
		return Max
	}
	return Q3_13(q)
}

func (q Q3_13) Float() float64 {
	return float64(q) / float64(One)
}

// Unscale divides ticks by q, i.e. maps a measurement taken on a stretched
// range back onto the nominal one. A zero scale leaves the value unchanged.
func (q Q3_13) Unscale(ticks uint32) uint32 {
	if q == 0 {
		return ticks
	}
	return uint32((uint64(ticks) << Shift) / uint64(q))
}

// Scale multiplies ticks by q.
func (q Q3_13) Scale(ticks uint32) uint32 {
	return uint32((uint64(ticks) * uint64(q)) >> Shift)
}
