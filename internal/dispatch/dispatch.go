// Package dispatch delivers fire events to downstream consumers. The core's
// responsibility ends at producing a well-formed envelope.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vireosec/hd4-controller/internal/rules"
)

// #region envelope

// Envelope wraps a fire event with the identity and timing stamped at
// dispatch time. Rule evaluation itself stays id- and clock-free.
type Envelope struct {
	EventID      string          `json:"event_id"`
	CycleID      string          `json:"cycle_id"`
	TriggerKey   string          `json:"trigger_key"`
	ArchetypeID  uint64          `json:"archetype_id"`
	Fire         rules.FireEvent `json:"fire"`
	DispatchedAt time.Time       `json:"dispatched_at"`
}

// NewEnvelope stamps a fire event for the wire.
func NewEnvelope(cycleID, triggerKey string, archetypeID uint64, fire rules.FireEvent) Envelope {
	return Envelope{
		EventID:      uuid.New().String(),
		CycleID:      cycleID,
		TriggerKey:   triggerKey,
		ArchetypeID:  archetypeID,
		Fire:         fire,
		DispatchedAt: time.Now().UTC(),
	}
}

// #endregion envelope

// #region dispatcher

// Dispatcher receives envelopes produced by the Act phase. Implementations
// must not block the hot cycle beyond their own I/O budget.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) error
}

// #endregion dispatcher
