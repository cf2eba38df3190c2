// Package entity defines the tracked-entity model and its in-memory store.
package entity

import "github.com/vireosec/hd4-controller/internal/fixedpoint"

// #region hd4-phase

// HD4Phase is the five-stage operational phase of a tracked entity.
type HD4Phase int

const (
	PhaseHunt HD4Phase = iota
	PhaseDetect
	PhaseDisrupt
	PhaseDisable
	PhaseDominate
)

// phaseNames indexes HD4Phase for display.
var phaseNames = [...]string{"hunt", "detect", "disrupt", "disable", "dominate"}

// String returns the lowercase phase name.
func (p HD4Phase) String() string {
	if p < PhaseHunt || p > PhaseDominate {
		return "unknown"
	}
	return phaseNames[p]
}

// Operational returns the phase's position on the operational axis:
// phase index × 0.25, spanning 0.0 (hunt) to 1.0 (dominate).
func (p HD4Phase) Operational() float64 {
	return float64(p) * 0.25
}

// Next advances one phase, saturating at dominate.
func (p HD4Phase) Next() HD4Phase {
	if p >= PhaseDominate {
		return PhaseDominate
	}
	return p + 1
}

// ParsePhase maps a stored phase name back to its enum value.
func ParsePhase(s string) (HD4Phase, bool) {
	for i, name := range phaseNames {
		if name == s {
			return HD4Phase(i), true
		}
	}
	return PhaseHunt, false
}

// #endregion hd4-phase

// #region threat-level

// ThreatLevel is the discrete threat classification derived from the posterior.
type ThreatLevel int

const (
	ThreatLow ThreatLevel = iota
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatNames = [...]string{"low", "medium", "high", "critical"}

// String returns the lowercase level name.
func (l ThreatLevel) String() string {
	if l < ThreatLow || l > ThreatCritical {
		return "unknown"
	}
	return threatNames[l]
}

// ParseThreatLevel maps a stored level name back to its enum value.
func ParseThreatLevel(s string) (ThreatLevel, bool) {
	for i, name := range threatNames {
		if name == s {
			return ThreatLevel(i), true
		}
	}
	return ThreatLow, false
}

// #endregion threat-level

// #region delta-position

// DeltaPosition is the normalized 3-axis coordinate summarizing entity state.
// Each axis is a [0,1] value at fixed-point resolution.
type DeltaPosition struct {
	Semantic    fixedpoint.Fixed // progress inferred from the tactic label
	Operational fixedpoint.Fixed // HD4 phase position
	Temporal    fixedpoint.Fixed // event recency
}

// #endregion delta-position

// #region belief

// Belief is the Bayesian threat estimate carried by an entity.
type Belief struct {
	Prior     fixedpoint.Fixed
	Posterior fixedpoint.Fixed
	Level     ThreatLevel
}

// #endregion belief

// #region routing

// Routing records how the entity's identity hash resolved through the
// archetype cache.
type Routing struct {
	Hash        string
	SlotID      uint32
	ArchetypeID uint64
	ToolID      string
	TriggerCode string
}

// #endregion routing

// #region entity

// Entity is the per-trigger-key tracked state. Exactly one exists per key.
type Entity struct {
	ID         string
	TriggerKey string

	Phase     HD4Phase
	Delta     DeltaPosition
	Belief    Belief
	Intensity fixedpoint.Fixed

	Routing Routing

	CreatedTick int64
	UpdatedTick int64
}

// #endregion entity
