// Package audit checks entity snapshots against the pipeline's numeric
// invariants. Violations are diagnostics for replay and debug runs; they are
// reported, never fatal.
package audit

import (
	"fmt"
	"time"

	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
	"github.com/vireosec/hd4-controller/internal/hawkes"
)

// #region violation

// Violation names one broken invariant on one entity.
type Violation struct {
	TriggerKey string
	Field      string
	Detail     string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.TriggerKey, v.Field, v.Detail)
}

// #endregion violation

// #region auditor

// Auditor holds the parameters the invariants depend on.
type Auditor struct {
	params hawkes.Params
}

// NewAuditor creates an auditor checking against the given Hawkes parameters.
func NewAuditor(params hawkes.Params) *Auditor {
	return &Auditor{params: params}
}

// #endregion auditor

// #region checks

// Check validates one entity snapshot. A clean entity yields nil.
func (a *Auditor) Check(e entity.Entity) []Violation {
	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{
			TriggerKey: e.TriggerKey,
			Field:      field,
			Detail:     fmt.Sprintf(format, args...),
		})
	}

	if !openUnit(e.Belief.Prior) {
		add("belief.prior", "value %d outside open unit interval", int64(e.Belief.Prior))
	}
	if !openUnit(e.Belief.Posterior) {
		add("belief.posterior", "value %d outside open unit interval", int64(e.Belief.Posterior))
	}
	if !closedUnit(e.Delta.Semantic) {
		add("delta.semantic", "value %d outside [0, %d]", int64(e.Delta.Semantic), fixedpoint.Scale)
	}
	if !closedUnit(e.Delta.Operational) {
		add("delta.operational", "value %d outside [0, %d]", int64(e.Delta.Operational), fixedpoint.Scale)
	}
	if !closedUnit(e.Delta.Temporal) {
		add("delta.temporal", "value %d outside [0, %d]", int64(e.Delta.Temporal), fixedpoint.Scale)
	}

	// The intensity floor only holds once the tracker has stepped the
	// entity at least once; a freshly created entity sits at zero.
	if e.Intensity != 0 && e.Intensity.Float() < a.params.Mu {
		add("intensity", "value %v below baseline %v", e.Intensity.Float(), a.params.Mu)
	}
	if e.Intensity < 0 {
		add("intensity", "negative value %d", int64(e.Intensity))
	}

	if e.Phase.String() == "unknown" {
		add("phase", "invalid phase %d", int(e.Phase))
	}
	if e.Belief.Level.String() == "unknown" {
		add("belief.level", "invalid threat level %d", int(e.Belief.Level))
	}
	if e.UpdatedTick < e.CreatedTick {
		add("updated_tick", "update tick %d precedes creation tick %d", e.UpdatedTick, e.CreatedTick)
	}
	return out
}

// CheckAll validates a set of snapshots.
func (a *Auditor) CheckAll(entities []entity.Entity) []Violation {
	var out []Violation
	for _, e := range entities {
		out = append(out, a.Check(e)...)
	}
	return out
}

// CheckBudget reports a violation when a cycle overran its budget.
func CheckBudget(triggerKey string, elapsed, budget time.Duration) *Violation {
	if budget <= 0 || elapsed <= budget {
		return nil
	}
	return &Violation{
		TriggerKey: triggerKey,
		Field:      "cycle_budget",
		Detail:     fmt.Sprintf("cycle took %v, budget %v", elapsed, budget),
	}
}

// openUnit reports whether f sits strictly inside (0,1) at fixed-point
// resolution.
func openUnit(f fixedpoint.Fixed) bool {
	return f >= 1 && f <= fixedpoint.Scale-1
}

func closedUnit(f fixedpoint.Fixed) bool {
	return f >= 0 && f <= fixedpoint.Scale
}

// #endregion checks
