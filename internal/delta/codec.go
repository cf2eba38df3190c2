// Package delta derives the 3-axis delta position from classifier output,
// HD4 phase, and event age.
package delta

import (
	"strings"
	"time"

	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

// #region tactic-table

// tacticProgress maps a classifier tactic label to semantic progress.
// Labels roughly follow kill-chain order; unknown labels land on the
// midpoint.
var tacticProgress = map[string]float64{
	"reconnaissance":       0.1,
	"resource-development": 0.2,
	"initial-access":       0.3,
	"execution":            0.4,
	"persistence":          0.5,
	"privilege-escalation": 0.6,
	"lateral-movement":     0.7,
	"collection":           0.8,
	"exfiltration":         0.9,
	"impact":               1.0,
}

// unknownTacticProgress is the semantic midpoint for unrecognized labels.
const unknownTacticProgress = 0.5

// #endregion tactic-table

// #region recency-bands

// Recency bands for the temporal axis.
const (
	recentWindow = 60 * time.Second
	staleWindow  = 3600 * time.Second
)

// #endregion recency-bands

// #region compute

// Semantic maps a tactic label to its [0,1] semantic progress.
func Semantic(tacticLabel string) float64 {
	if v, ok := tacticProgress[strings.ToLower(strings.TrimSpace(tacticLabel))]; ok {
		return v
	}
	return unknownTacticProgress
}

// Temporal maps event age to recency: under 60s → 1.0, under 3600s → 0.5,
// otherwise 0.0. Negative ages (clock skew) count as fully recent.
func Temporal(age time.Duration) float64 {
	switch {
	case age < recentWindow:
		return 1.0
	case age < staleWindow:
		return 0.5
	default:
		return 0.0
	}
}

// Compute builds the fixed-point delta position from the three axis inputs.
// Each axis clamps to [0,1] before scaling.
func Compute(tacticLabel string, phase entity.HD4Phase, age time.Duration) entity.DeltaPosition {
	return entity.DeltaPosition{
		Semantic:    fixedpoint.FromUnit(Semantic(tacticLabel)),
		Operational: fixedpoint.FromUnit(phase.Operational()),
		Temporal:    fixedpoint.FromUnit(Temporal(age)),
	}
}

// #endregion compute
