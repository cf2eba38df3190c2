// Package archetype maps opaque identity hashes to cached (slot, archetype)
// pairs in O(1).
package archetype

import (
	"errors"
	"hash/fnv"
	"sync"
)

// #region errors

// ErrInvalidHash is returned for empty or malformed hash input. No state is
// mutated when it is returned.
var ErrInvalidHash = errors.New("archetype: invalid hash")

// #endregion errors

// #region types

// Pair is the cached resolution for one hash. Immutable once created.
type Pair struct {
	SlotID      uint32
	ArchetypeID uint64
}

// Router is the shared hash→archetype cache. Reads take the read lock only;
// misses upgrade to the write lock and re-check before inserting.
type Router struct {
	mu      sync.RWMutex
	entries map[string]Pair
	nextID  uint64
	slots   uint32
}

// #endregion types

// #region constructor

// DefaultSlots is the slot table size used when none is configured.
const DefaultSlots = 1024

// NewRouter creates an empty router with the given slot table size.
func NewRouter(slots uint32) *Router {
	if slots == 0 {
		slots = DefaultSlots
	}
	return &Router{
		entries: make(map[string]Pair),
		nextID:  1,
		slots:   slots,
	}
}

// #endregion constructor

// #region resolve

// Resolve returns the (slot, archetype) pair for hash, allocating a new
// archetype on first sight. Identical hashes always resolve to the identical
// pair, including under concurrent first-time resolution.
func (r *Router) Resolve(hash string) (Pair, error) {
	if !validHash(hash) {
		return Pair{}, ErrInvalidHash
	}

	r.mu.RLock()
	p, ok := r.entries[hash]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: two callers can miss concurrently on the same hash.
	if p, ok = r.entries[hash]; ok {
		return p, nil
	}
	p = Pair{
		SlotID:      r.slotFor(hash),
		ArchetypeID: r.nextID,
	}
	r.nextID++
	r.entries[hash] = p
	return p, nil
}

// slotFor derives a deterministic slot id from the hash bytes.
func (r *Router) slotFor(hash string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return h.Sum32() % r.slots
}

// validHash rejects empty input and interior NUL bytes. The hash is
// otherwise opaque; the engine that produced it owns the format.
func validHash(hash string) bool {
	if hash == "" {
		return false
	}
	for i := 0; i < len(hash); i++ {
		if hash[i] == 0 {
			return false
		}
	}
	return true
}

// #endregion resolve

// #region warm-load

// Seed installs a previously persisted entry without allocating a new id,
// and advances the allocation counter past it. Used for warm start from the
// durable cache; archetype ids are never recycled across restarts.
func (r *Router) Seed(hash string, p Pair) error {
	if !validHash(hash) {
		return ErrInvalidHash
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[hash] = p
	if p.ArchetypeID >= r.nextID {
		r.nextID = p.ArchetypeID + 1
	}
	return nil
}

// Len returns the number of cached entries.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// #endregion warm-load
