// Package rules maps escalation trigger codes to fire events via a small
// fixed rule table. Evaluation is pure: no I/O, no clock, no allocation of
// identifiers, so identical inputs always produce identical results.
package rules

import (
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

// #region fire-event

// FireEvent is the escalation record produced by a matched rule. It carries
// no id or timestamp; the dispatcher stamps those on the wire envelope so
// evaluation stays byte-deterministic.
type FireEvent struct {
	TriggerCode string
	Action      string
	Severity    entity.ThreatLevel
	Delta       entity.DeltaPosition
}

// #endregion fire-event

// #region rule-table

// rule gates a trigger code on minimum delta-axis positions.
type rule struct {
	action      string
	severity    entity.ThreatLevel
	minSemantic fixedpoint.Fixed
	minTemporal fixedpoint.Fixed
}

// Trigger codes understood by the evaluator.
const (
	CodeDetectSweep      = "hd4.detect.sweep"
	CodeDetectDeepScan   = "hd4.detect.deepscan"
	CodeDisruptContain   = "hd4.disrupt.contain"
	CodeDisableIsolate   = "hd4.disable.isolate"
	CodeDominateLockdown = "hd4.dominate.lockdown"
)

// table is the fixed rule set. Never mutated after init.
var table = map[string]rule{
	CodeDetectSweep: {
		action:   "schedule-sweep",
		severity: entity.ThreatLow,
	},
	CodeDetectDeepScan: {
		action:      "deep-scan",
		severity:    entity.ThreatMedium,
		minTemporal: fixedpoint.FromUnit(0.5),
	},
	CodeDisruptContain: {
		action:      "contain-host",
		severity:    entity.ThreatHigh,
		minSemantic: fixedpoint.FromUnit(0.3),
	},
	CodeDisableIsolate: {
		action:      "isolate-segment",
		severity:    entity.ThreatHigh,
		minSemantic: fixedpoint.FromUnit(0.5),
	},
	CodeDominateLockdown: {
		action:   "lockdown",
		severity: entity.ThreatCritical,
	},
}

// #endregion rule-table

// #region evaluate

// Evaluate looks up triggerCode and, when the delta position clears the
// rule's gates, returns the fire event. Unknown codes and failed gates both
// return nil — a no-op, not an error; the caller may log a diagnostic.
func Evaluate(triggerCode string, d entity.DeltaPosition) *FireEvent {
	r, ok := table[triggerCode]
	if !ok {
		return nil
	}
	if d.Semantic < r.minSemantic || d.Temporal < r.minTemporal {
		return nil
	}
	return &FireEvent{
		TriggerCode: triggerCode,
		Action:      r.action,
		Severity:    r.severity,
		Delta:       d,
	}
}

// Known reports whether triggerCode exists in the rule table.
func Known(triggerCode string) bool {
	_, ok := table[triggerCode]
	return ok
}

// #endregion evaluate
