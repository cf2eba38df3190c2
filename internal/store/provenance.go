package store

import (
	"fmt"
	"time"

	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

// #region decision-entry

// DecisionEntry is one row of per-cycle provenance: what the Decide phase
// concluded for a trigger key and why.
type DecisionEntry struct {
	CycleID    string
	TriggerKey string
	Phase      string
	Decision   string // "escalate" | "hold"
	Reason     string
	Degraded   bool
	Posterior  fixedpoint.Fixed
	Intensity  fixedpoint.Fixed
	CreatedAt  time.Time
}

// #endregion decision-entry

// #region log-decision

// LogDecision writes a provenance entry to the decision_log table.
func (s *Store) LogDecision(entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	degraded := 0
	if entry.Degraded {
		degraded = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO decision_log (cycle_id, trigger_key, phase, decision, reason, degraded, posterior, intensity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CycleID, entry.TriggerKey, entry.Phase, entry.Decision,
		nullIfEmpty(entry.Reason), degraded,
		int64(entry.Posterior), int64(entry.Intensity),
		entry.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decision rows.
func (s *Store) ListDecisions(limit int) ([]DecisionEntry, error) {
	rows, err := s.db.Query(
		`SELECT cycle_id, trigger_key, phase, decision, COALESCE(reason, ''), degraded, posterior, intensity, created_at
		 FROM decision_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var degraded int
		var posterior, intensity int64
		var created string
		if err := rows.Scan(&e.CycleID, &e.TriggerKey, &e.Phase, &e.Decision, &e.Reason, &degraded, &posterior, &intensity, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Degraded = degraded != 0
		e.Posterior = fixedpoint.Fixed(posterior)
		e.Intensity = fixedpoint.Fixed(intensity)
		e.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion log-decision

// #region escalation-outcomes

// EscalationRecord is one dispatched fire event, kept per (archetype,
// trigger code) so escalation history can be queried by processing class.
type EscalationRecord struct {
	CycleID     string
	TriggerKey  string
	ArchetypeID uint64
	TriggerCode string
	Action      string
	Severity    string
	EventID     string
	CreatedAt   time.Time
}

// RecordEscalation persists a dispatched escalation.
func (s *Store) RecordEscalation(rec EscalationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO escalation_outcomes (cycle_id, trigger_key, archetype_id, trigger_code, action, severity, event_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleID, rec.TriggerKey, rec.ArchetypeID, rec.TriggerCode,
		rec.Action, rec.Severity, rec.EventID, rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("record escalation: %w", err)
	}
	return nil
}

// CountEscalations returns how many escalations were dispatched for one
// (archetype, trigger code) pair.
func (s *Store) CountEscalations(archetypeID uint64, triggerCode string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM escalation_outcomes WHERE archetype_id = ? AND trigger_code = ?`,
		archetypeID, triggerCode,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count escalations: %w", err)
	}
	return n, nil
}

// #endregion escalation-outcomes
