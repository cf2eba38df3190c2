// Package belief maintains the Bayesian threat estimate for tracked
// entities.
package belief

import (
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

// #region config

// Config holds the estimator's tunable values. Threshold comparisons are
// strict (>), so a posterior sitting exactly on a boundary maps to the
// lower level.
type Config struct {
	CriticalAbove float64 // posterior > this → critical
	HighAbove     float64 // posterior > this → high
	MediumAbove   float64 // posterior > this → medium
	SmoothRetain  float64 // weight of the old prior in the new prior
	Epsilon       float64 // guard keeping probabilities inside (0,1)
}

// DefaultConfig returns the standard thresholds and smoothing weight.
func DefaultConfig() Config {
	return Config{
		CriticalAbove: 0.9,
		HighAbove:     0.7,
		MediumAbove:   0.3,
		SmoothRetain:  0.9,
		Epsilon:       1e-6,
	}
}

// #endregion config

// #region estimator

// Estimator applies the odds-form Bayesian update.
type Estimator struct {
	config Config
}

// NewEstimator creates an estimator with the given configuration.
func NewEstimator(config Config) *Estimator {
	return &Estimator{config: config}
}

// Result is the outcome of one update step.
type Result struct {
	Posterior fixedpoint.Fixed
	NewPrior  fixedpoint.Fixed
	Level     entity.ThreatLevel
	Updated   bool // false when no evidence was incorporated
}

// #endregion estimator

// #region update

// Update incorporates one piece of classifier evidence. likelihoodRatio is
// classifier confidence divided by 0.5. When isThreat is false no evidence
// is incorporated: the belief passes through unchanged and only the level
// is recomputed.
func (e *Estimator) Update(b entity.Belief, likelihoodRatio float64, isThreat bool) Result {
	if !isThreat {
		return Result{
			Posterior: b.Posterior,
			NewPrior:  b.Prior,
			Level:     e.LevelFor(b.Posterior.Float()),
			Updated:   false,
		}
	}

	eps := e.config.Epsilon
	prior := b.Prior.ClampOpen().Float()

	denom := 1 - prior
	if denom < eps {
		denom = eps
	}
	priorOdds := prior / denom
	posteriorOdds := priorOdds * likelihoodRatio
	posterior := posteriorOdds / (1 + posteriorOdds)
	posterior = clampOpen(posterior, eps)

	newPrior := e.config.SmoothRetain*prior + (1-e.config.SmoothRetain)*posterior
	newPrior = clampOpen(newPrior, eps)

	return Result{
		Posterior: fixedpoint.FromUnit(posterior).ClampOpen(),
		NewPrior:  fixedpoint.FromUnit(newPrior).ClampOpen(),
		Level:     e.LevelFor(posterior),
		Updated:   true,
	}
}

// LevelFor maps a posterior to its discrete threat level. First match wins,
// in descending order.
func (e *Estimator) LevelFor(posterior float64) entity.ThreatLevel {
	switch {
	case posterior > e.config.CriticalAbove:
		return entity.ThreatCritical
	case posterior > e.config.HighAbove:
		return entity.ThreatHigh
	case posterior > e.config.MediumAbove:
		return entity.ThreatMedium
	default:
		return entity.ThreatLow
	}
}

// clampOpen keeps p strictly inside (0,1).
func clampOpen(p, eps float64) float64 {
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// #endregion update

// #region likelihood-ratio

// ReferenceConfidence is the classifier confidence treated as uninformative.
const ReferenceConfidence = 0.5

// LikelihoodRatio converts raw classifier confidence into the ratio consumed
// by Update.
func LikelihoodRatio(confidence float64) float64 {
	return confidence / ReferenceConfidence
}

// #endregion likelihood-ratio
