// Package store provides optional SQLite durability for entities, the
// archetype cache, and per-cycle decision provenance. The hot path never
// touches it; persistence happens off-cycle.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vireosec/hd4-controller/internal/archetype"
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/fixedpoint"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS entities (
	trigger_key    TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL,
	phase          TEXT NOT NULL,
	delta_semantic INTEGER NOT NULL,
	delta_operational INTEGER NOT NULL,
	delta_temporal INTEGER NOT NULL,
	prior          INTEGER NOT NULL,
	posterior      INTEGER NOT NULL,
	threat_level   TEXT NOT NULL,
	intensity      INTEGER NOT NULL,
	hash           TEXT NOT NULL,
	slot_id        INTEGER NOT NULL,
	archetype_id   INTEGER NOT NULL,
	tool_id        TEXT,
	trigger_code   TEXT,
	created_tick   INTEGER NOT NULL,
	updated_tick   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS archetype_cache (
	hash         TEXT PRIMARY KEY,
	slot_id      INTEGER NOT NULL,
	archetype_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id     TEXT NOT NULL,
	trigger_key  TEXT NOT NULL,
	phase        TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	degraded     INTEGER NOT NULL DEFAULT 0,
	posterior    INTEGER NOT NULL,
	intensity    INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escalation_outcomes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id     TEXT NOT NULL,
	trigger_key  TEXT NOT NULL,
	archetype_id INTEGER NOT NULL,
	trigger_code TEXT NOT NULL,
	action       TEXT NOT NULL,
	severity     TEXT NOT NULL,
	event_id     TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_key ON decision_log(trigger_key);
CREATE INDEX IF NOT EXISTS idx_escalations_lookup ON escalation_outcomes(archetype_id, trigger_code);
`

// #endregion schema

// #region store

// Store manages the controller's durable state in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for packages that manage their own
// tables (trigger registry, correlation graph).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region entities

// SaveEntity upserts the entity row for its trigger key.
func (s *Store) SaveEntity(e entity.Entity) error {
	_, err := s.db.Exec(
		`INSERT INTO entities (trigger_key, entity_id, phase,
			delta_semantic, delta_operational, delta_temporal,
			prior, posterior, threat_level, intensity,
			hash, slot_id, archetype_id, tool_id, trigger_code,
			created_tick, updated_tick)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(trigger_key) DO UPDATE SET
			phase = excluded.phase,
			delta_semantic = excluded.delta_semantic,
			delta_operational = excluded.delta_operational,
			delta_temporal = excluded.delta_temporal,
			prior = excluded.prior,
			posterior = excluded.posterior,
			threat_level = excluded.threat_level,
			intensity = excluded.intensity,
			hash = excluded.hash,
			slot_id = excluded.slot_id,
			archetype_id = excluded.archetype_id,
			tool_id = excluded.tool_id,
			trigger_code = excluded.trigger_code,
			updated_tick = excluded.updated_tick`,
		e.TriggerKey, e.ID, e.Phase.String(),
		int64(e.Delta.Semantic), int64(e.Delta.Operational), int64(e.Delta.Temporal),
		int64(e.Belief.Prior), int64(e.Belief.Posterior), e.Belief.Level.String(), int64(e.Intensity),
		e.Routing.Hash, e.Routing.SlotID, e.Routing.ArchetypeID,
		nullIfEmpty(e.Routing.ToolID), nullIfEmpty(e.Routing.TriggerCode),
		e.CreatedTick, e.UpdatedTick,
	)
	if err != nil {
		return fmt.Errorf("save entity %s: %w", e.TriggerKey, err)
	}
	return nil
}

// GetEntity point-reads one entity by trigger key.
func (s *Store) GetEntity(key string) (entity.Entity, bool, error) {
	row := s.db.QueryRow(
		`SELECT trigger_key, entity_id, phase,
			delta_semantic, delta_operational, delta_temporal,
			prior, posterior, threat_level, intensity,
			hash, slot_id, archetype_id, tool_id, trigger_code,
			created_tick, updated_tick
		 FROM entities WHERE trigger_key = ?`, key,
	)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return entity.Entity{}, false, nil
	}
	if err != nil {
		return entity.Entity{}, false, fmt.Errorf("get entity %s: %w", key, err)
	}
	return e, true, nil
}

// ListEntities returns the most recently updated entities.
func (s *Store) ListEntities(limit int) ([]entity.Entity, error) {
	rows, err := s.db.Query(
		`SELECT trigger_key, entity_id, phase,
			delta_semantic, delta_operational, delta_temporal,
			prior, posterior, threat_level, intensity,
			hash, slot_id, archetype_id, tool_id, trigger_code,
			created_tick, updated_tick
		 FROM entities ORDER BY updated_tick DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(sc scanner) (entity.Entity, error) {
	var e entity.Entity
	var phase, level string
	var sem, op, tmp, prior, post, intensity int64
	var toolID, code sql.NullString

	err := sc.Scan(
		&e.TriggerKey, &e.ID, &phase,
		&sem, &op, &tmp,
		&prior, &post, &level, &intensity,
		&e.Routing.Hash, &e.Routing.SlotID, &e.Routing.ArchetypeID, &toolID, &code,
		&e.CreatedTick, &e.UpdatedTick,
	)
	if err != nil {
		return entity.Entity{}, err
	}

	e.Phase, _ = entity.ParsePhase(phase)
	e.Delta = entity.DeltaPosition{
		Semantic:    fixedpoint.Fixed(sem),
		Operational: fixedpoint.Fixed(op),
		Temporal:    fixedpoint.Fixed(tmp),
	}
	e.Belief.Prior = fixedpoint.Fixed(prior)
	e.Belief.Posterior = fixedpoint.Fixed(post)
	e.Belief.Level, _ = entity.ParseThreatLevel(level)
	e.Intensity = fixedpoint.Fixed(intensity)
	if toolID.Valid {
		e.Routing.ToolID = toolID.String
	}
	if code.Valid {
		e.Routing.TriggerCode = code.String
	}
	return e, nil
}

// #endregion entities

// #region archetype-cache

// SaveCacheEntry persists one router resolution. Entries are immutable;
// conflicts are ignored.
func (s *Store) SaveCacheEntry(hash string, p archetype.Pair) error {
	_, err := s.db.Exec(
		`INSERT INTO archetype_cache (hash, slot_id, archetype_id)
		 VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING`,
		hash, p.SlotID, p.ArchetypeID,
	)
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// WarmRouter seeds the router from the persisted cache and returns the
// number of entries loaded. Archetype ids survive restarts unrecycled.
func (s *Store) WarmRouter(r *archetype.Router) (int, error) {
	rows, err := s.db.Query(`SELECT hash, slot_id, archetype_id FROM archetype_cache`)
	if err != nil {
		return 0, fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var hash string
		var p archetype.Pair
		if err := rows.Scan(&hash, &p.SlotID, &p.ArchetypeID); err != nil {
			return n, fmt.Errorf("scan cache entry: %w", err)
		}
		if err := r.Seed(hash, p); err != nil {
			return n, fmt.Errorf("seed router: %w", err)
		}
		n++
	}
	return n, rows.Err()
}

// #endregion archetype-cache

// #region helpers

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeFormat is the canonical text timestamp used by the log tables.
const timeFormat = time.RFC3339Nano

// #endregion helpers
