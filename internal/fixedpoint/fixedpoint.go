// Package fixedpoint provides the 6-decimal fixed-point representation used
// for all entity-resident scalars.
package fixedpoint

import "math"

// #region fixed-type

// Scale is the fixed-point multiplier: one unit = 1e-6.
const Scale = 1_000_000

// Fixed is a scalar stored as an integer count of 1e-6 units.
type Fixed int64

// One is the fixed-point encoding of 1.0.
const One Fixed = Scale

// #endregion fixed-type

// #region conversion

// FromUnit converts a [0,1] float to fixed-point. Out-of-range inputs are
// clamped before scaling, so FromUnit(1.2) == One. Rounding is half away
// from zero.
func FromUnit(v float64) Fixed {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return Fixed(math.Round(v * Scale))
}

// FromFloat converts a non-negative float to fixed-point without the unit
// clamp. Used for the Hawkes intensity, which exceeds 1.0 under clustering.
// Negative inputs clamp to zero.
func FromFloat(v float64) Fixed {
	if v < 0 {
		v = 0
	}
	return Fixed(math.Round(v * Scale))
}

// Float converts fixed-point back to a float64.
func (f Fixed) Float() float64 {
	return float64(f) / Scale
}

// #endregion conversion

// #region clamp

// ClampOpen restricts f to the open unit interval at fixed-point resolution:
// [1, Scale-1]. Probabilities are stored this way so the odds-form update
// never divides by zero.
func (f Fixed) ClampOpen() Fixed {
	if f < 1 {
		return 1
	}
	if f > Scale-1 {
		return Scale - 1
	}
	return f
}

// #endregion clamp
