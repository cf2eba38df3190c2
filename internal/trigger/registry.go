// Package trigger maintains the registry of known trigger keys: the identity
// hash, owning tool, and description behind each key the controller accepts.
package trigger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// #region errors

// ErrUnknownTrigger is returned when a cycle observes a key the registry has
// never seen. Unknown keys are rejected before any entity state is touched.
var ErrUnknownTrigger = errors.New("trigger: unknown trigger key")

// #endregion errors

// #region definition

// Definition describes one registered trigger key.
type Definition struct {
	Key         string
	Hash        string // identity hash fed to the archetype router
	ToolID      string
	Description string
}

// #endregion definition

// #region registry

// Registry is the durable trigger-key table with a full in-memory mirror.
// Lookups on the hot path never touch the database.
type Registry struct {
	db *sql.DB

	mu   sync.RWMutex
	defs map[string]Definition
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS trigger_registry (
	key         TEXT PRIMARY KEY,
	hash        TEXT NOT NULL,
	tool_id     TEXT NOT NULL,
	description TEXT
);`

// NewRegistry creates the registry table if needed and loads all definitions
// into memory.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if _, err := db.Exec(registrySchema); err != nil {
		return nil, fmt.Errorf("migrate trigger registry: %w", err)
	}
	r := &Registry{db: db, defs: make(map[string]Definition)}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	rows, err := r.db.Query(`SELECT key, hash, tool_id, COALESCE(description, '') FROM trigger_registry`)
	if err != nil {
		return fmt.Errorf("load trigger registry: %w", err)
	}
	defer rows.Close()

	defs := make(map[string]Definition)
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.Key, &d.Hash, &d.ToolID, &d.Description); err != nil {
			return fmt.Errorf("scan trigger: %w", err)
		}
		defs[d.Key] = d
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()
	return nil
}

// #endregion registry

// #region operations

// Register upserts a definition and updates the in-memory mirror.
func (r *Registry) Register(d Definition) error {
	if d.Key == "" || d.Hash == "" {
		return fmt.Errorf("trigger: definition needs key and hash")
	}
	_, err := r.db.Exec(
		`INSERT INTO trigger_registry (key, hash, tool_id, description)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			hash = excluded.hash,
			tool_id = excluded.tool_id,
			description = excluded.description`,
		d.Key, d.Hash, d.ToolID, d.Description,
	)
	if err != nil {
		return fmt.Errorf("register trigger %s: %w", d.Key, err)
	}

	r.mu.Lock()
	r.defs[d.Key] = d
	r.mu.Unlock()
	return nil
}

// Lookup resolves a trigger key from the in-memory mirror.
func (r *Registry) Lookup(key string) (Definition, error) {
	r.mu.RLock()
	d, ok := r.defs[key]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, key)
	}
	return d, nil
}

// List returns all definitions in map order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// #endregion operations
