package entity

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
)

// #region cell

// cell wraps one entity with its own mutex so updates to different keys
// never serialize against each other.
type cell struct {
	mu  sync.Mutex
	ent Entity
}

// #endregion cell

// #region store

// Store is the upsert-only in-memory entity store, keyed by trigger key.
// The map lock is held only for cell lookup and insertion; per-entity
// mutation happens under the cell's own mutex.
type Store struct {
	mu    sync.RWMutex
	cells map[string]*cell
}

// NewStore returns an empty entity store.
func NewStore() *Store {
	return &Store{cells: make(map[string]*cell)}
}

// #endregion store

// #region get-or-create

// GetOrCreate returns a snapshot of the entity for key, creating it on first
// sight. The created flag reports whether this call allocated the entity.
// tick stamps CreatedTick/UpdatedTick on creation.
func (s *Store) GetOrCreate(key string, tick int64) (Entity, bool) {
	s.mu.RLock()
	c, ok := s.cells[key]
	s.mu.RUnlock()
	if ok {
		c.mu.Lock()
		snap := c.ent
		c.mu.Unlock()
		return snap, false
	}

	s.mu.Lock()
	// Re-check: another caller may have created the cell between locks.
	if c, ok = s.cells[key]; !ok {
		c = &cell{ent: newEntity(key, tick)}
		s.cells[key] = c
		s.mu.Unlock()
		return c.ent, true
	}
	s.mu.Unlock()

	c.mu.Lock()
	snap := c.ent
	c.mu.Unlock()
	return snap, false
}

// newEntity builds the initial state for a freshly observed trigger key.
// Prior starts at the 0.5 midpoint; phase starts at hunt.
func newEntity(key string, tick int64) Entity {
	return Entity{
		ID:         uuid.New().String(),
		TriggerKey: key,
		Phase:      PhaseHunt,
		Belief: Belief{
			Prior:     fixedpoint.FromUnit(0.5),
			Posterior: fixedpoint.FromUnit(0.5),
			Level:     ThreatMedium,
		},
		CreatedTick: tick,
		UpdatedTick: tick,
	}
}

// #endregion get-or-create

// #region update

// Update applies mutate to the entity for key under its cell lock and
// returns the resulting snapshot. The entity is created first if absent,
// preserving upsert semantics. tick stamps UpdatedTick.
func (s *Store) Update(key string, tick int64, mutate func(*Entity)) Entity {
	s.mu.RLock()
	c, ok := s.cells[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if c, ok = s.cells[key]; !ok {
			c = &cell{ent: newEntity(key, tick)}
			s.cells[key] = c
		}
		s.mu.Unlock()
	}

	c.mu.Lock()
	mutate(&c.ent)
	c.ent.UpdatedTick = tick
	snap := c.ent
	c.mu.Unlock()
	return snap
}

// #endregion update

// #region introspection

// Get returns a snapshot of the entity for key if it exists.
func (s *Store) Get(key string) (Entity, bool) {
	s.mu.RLock()
	c, ok := s.cells[key]
	s.mu.RUnlock()
	if !ok {
		return Entity{}, false
	}
	c.mu.Lock()
	snap := c.ent
	c.mu.Unlock()
	return snap, true
}

// Len returns the number of tracked entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Snapshot returns copies of all tracked entities, in map order.
func (s *Store) Snapshot() []Entity {
	s.mu.RLock()
	cells := make([]*cell, 0, len(s.cells))
	for _, c := range s.cells {
		cells = append(cells, c)
	}
	s.mu.RUnlock()

	out := make([]Entity, 0, len(cells))
	for _, c := range cells {
		c.mu.Lock()
		out = append(out, c.ent)
		c.mu.Unlock()
	}
	return out
}

// #endregion introspection
