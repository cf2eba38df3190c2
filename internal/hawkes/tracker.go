// Package hawkes models clustered event recurrence as a decaying
// self-exciting intensity.
package hawkes

import (
	"math"
	"time"

	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

// #region params

// Params are the point-process constants, injected from configuration.
type Params struct {
	Mu    float64 // baseline rate; intensity never drops below this
	Beta  float64 // exponential decay rate per second
	Alpha float64 // jump added when a triggering event occurs
}

// DefaultParams returns the standard baseline/decay/jump values.
func DefaultParams() Params {
	return Params{Mu: 0.1, Beta: 1.0, Alpha: 0.5}
}

// #endregion params

// #region tracker

// Tracker applies the per-tick intensity update.
type Tracker struct {
	params Params
}

// NewTracker creates a tracker with the given parameters.
func NewTracker(params Params) *Tracker {
	return &Tracker{params: params}
}

// Params returns the tracker's parameters.
func (t *Tracker) Params() Params {
	return t.params
}

// #endregion tracker

// #region step

// Step advances the intensity by elapsed time, adding the excitation jump
// when a triggering event occurred this tick:
//
//	decayed = intensity × exp(−β·Δt)
//	next    = μ + decayed + (α if event)
//
// The result is never below μ. Negative elapsed durations count as zero.
func (t *Tracker) Step(intensity fixedpoint.Fixed, elapsed time.Duration, event bool) fixedpoint.Fixed {
	dt := elapsed.Seconds()
	if dt < 0 {
		dt = 0
	}

	decayed := intensity.Float() * math.Exp(-t.params.Beta*dt)
	next := t.params.Mu + decayed
	if event {
		next += t.params.Alpha
	}
	if next < t.params.Mu {
		next = t.params.Mu
	}
	return fixedpoint.FromFloat(next)
}

// Decay advances the intensity with no triggering event. This is the
// degraded-cycle path used when classifier evidence is unavailable.
func (t *Tracker) Decay(intensity fixedpoint.Fixed, elapsed time.Duration) fixedpoint.Fixed {
	return t.Step(intensity, elapsed, false)
}

// #endregion step
