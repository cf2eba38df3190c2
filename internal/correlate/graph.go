// Package correlate maintains the co-activation graph: weighted edges
// between trigger keys that fire close together in time. The graph is written
// only by background tasks; cycle decisions never read it inline.
package correlate

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// #region graph

// DefaultDecayRate halves an untouched edge roughly every 20 minutes.
const DefaultDecayRate = 0.0006

// Graph is the SQLite-backed edge store. Edge keys are stored in sorted
// order so (a,b) and (b,a) share one row.
type Graph struct {
	db    *sql.DB
	decay float64 // per-second exponential decay applied on reinforcement
}

const graphSchema = `
CREATE TABLE IF NOT EXISTS correlation_edges (
	key_a      TEXT NOT NULL,
	key_b      TEXT NOT NULL,
	weight     REAL NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (key_a, key_b)
);
CREATE INDEX IF NOT EXISTS idx_edges_key_b ON correlation_edges(key_b);`

// NewGraph creates the edge table if needed. decayRate <= 0 selects the
// default.
func NewGraph(db *sql.DB, decayRate float64) (*Graph, error) {
	if decayRate <= 0 {
		decayRate = DefaultDecayRate
	}
	if _, err := db.Exec(graphSchema); err != nil {
		return nil, fmt.Errorf("migrate correlation graph: %w", err)
	}
	return &Graph{db: db, decay: decayRate}, nil
}

// #endregion graph

// #region edge

// Edge is one co-activation link, weight already decayed to the query time.
type Edge struct {
	KeyA      string
	KeyB      string
	Weight    float64
	UpdatedAt time.Time
}

// Other returns the endpoint that is not key.
func (e Edge) Other(key string) string {
	if e.KeyA == key {
		return e.KeyB
	}
	return e.KeyA
}

// #endregion edge

// #region reinforce

// Reinforce strengthens the edge between a and b: the stored weight decays
// for the time since its last update, then gains one unit. Self-edges are
// ignored.
func (g *Graph) Reinforce(ctx context.Context, a, b string, at time.Time) error {
	if a == b || a == "" || b == "" {
		return nil
	}
	a, b = orderKeys(a, b)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reinforce: %w", err)
	}
	defer tx.Rollback()

	var weight float64
	var updated string
	err = tx.QueryRowContext(ctx,
		`SELECT weight, updated_at FROM correlation_edges WHERE key_a = ? AND key_b = ?`,
		a, b,
	).Scan(&weight, &updated)
	switch err {
	case nil:
		weight = g.decayed(weight, updated, at) + 1
	case sql.ErrNoRows:
		weight = 1
	default:
		return fmt.Errorf("read edge %s-%s: %w", a, b, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO correlation_edges (key_a, key_b, weight, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key_a, key_b) DO UPDATE SET
			weight = excluded.weight,
			updated_at = excluded.updated_at`,
		a, b, weight, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write edge %s-%s: %w", a, b, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reinforce: %w", err)
	}
	return nil
}

// decayed applies exponential decay from the stored update time to at.
func (g *Graph) decayed(weight float64, updated string, at time.Time) float64 {
	then, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return weight
	}
	dt := at.Sub(then).Seconds()
	if dt <= 0 {
		return weight
	}
	return weight * math.Exp(-g.decay*dt)
}

// #endregion reinforce

// #region neighbors

// Neighbors returns the strongest edges touching key, weights decayed to at.
func (g *Graph) Neighbors(ctx context.Context, key string, at time.Time, limit int) ([]Edge, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT key_a, key_b, weight, updated_at FROM correlation_edges
		 WHERE key_a = ? OR key_b = ?`,
		key, key,
	)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", key, err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var updated string
		if err := rows.Scan(&e.KeyA, &e.KeyB, &e.Weight, &updated); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Weight = g.decayed(e.Weight, updated, at)
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func orderKeys(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// #endregion neighbors
