// Package storage implements the local storage engine: an in-memory map of
// Entry values merged by Last-Write-Wins, tombstones with bounded GC, and an
// optional BoltDB-backed persistence layer.
package storage

import (
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// Engine is the narrow capability set every backend (in-memory or
// persistent) exposes. Callers never depend on a concrete backend, per the
// "dynamic dispatch over storage backends" design note.
type Engine interface {
	// Get returns the live value for key. Tombstones surface as absent,
	// exactly like a key that was never written.
	Get(key string) (types.Entry, bool, error)

	// Put applies LWW merge: e is accepted iff (e.TimestampMs, e.NodeID) is
	// strictly greater than the stored version, or no version is stored.
	// Replays of an already-seen (NodeID, Seq) are a no-op. Put returns
	// whether e was accepted.
	Put(e types.Entry) (bool, error)

	// GCTombstones removes tombstones whose TimestampMs is older than
	// nowMs - types.TombstoneGraceMillis. Live entries are never collected.
	GCTombstones(nowMs int64) (int, error)

	// AllEntries returns every stored Entry, tombstones included, for
	// anti-entropy digesting and offline queue replay.
	AllEntries() ([]types.Entry, error)

	Close() error
}

// dedupIndexSize bounds the recent-(NodeID,Seq) index. Eviction never
// re-admits a replay because LWW still rejects stale versions on its own;
// the index exists only to drop exact replays cheaply, before the LWW
// comparison even runs.
const dedupIndexSize = 4096

// MemEngine is the in-memory Engine implementation. A single RWMutex
// enforces the single-writer discipline the data model requires to keep
// LWW invariant-preserving under concurrent callers.
type MemEngine struct {
	mu      sync.RWMutex
	entries map[string]types.Entry
	dedup   *lru.Cache[dedupKey, struct{}]
}

type dedupKey struct {
	nodeID string
	seq    uint64
}

// NewMemEngine constructs an empty in-memory engine.
func NewMemEngine() *MemEngine {
	dedup, err := lru.New[dedupKey, struct{}](dedupIndexSize)
	if err != nil {
		// Only returns an error for a non-positive size, which dedupIndexSize
		// never is.
		panic(err)
	}
	return &MemEngine{
		entries: make(map[string]types.Entry),
		dedup:   dedup,
	}
}

func (m *MemEngine) Get(key string) (types.Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || e.IsTombstone {
		return types.Entry{}, false, nil
	}
	return e, true, nil
}

func (m *MemEngine) Put(e types.Entry) (bool, error) {
	if err := validate(e); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dk := dedupKey{nodeID: e.NodeID, seq: e.Seq}
	if _, seen := m.dedup.Get(dk); seen {
		return false, nil
	}

	existing, ok := m.entries[e.Key]
	if ok && existing.Version().Compare(e.Version()) >= 0 {
		// Stored version is newer or a duplicate triple; accept for dedup
		// purposes (it is a legitimate replay of something we already
		// hold) but do not mutate state.
		m.dedup.Add(dk, struct{}{})
		return false, nil
	}

	m.entries[e.Key] = e
	m.dedup.Add(dk, struct{}{})
	return true, nil
}

func (m *MemEngine) GCTombstones(nowMs int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := nowMs - types.TombstoneGraceMillis
	removed := 0
	for k, e := range m.entries {
		if e.IsTombstone && e.TimestampMs < cutoff {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (m *MemEngine) AllEntries() ([]types.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *MemEngine) Close() error { return nil }

func validate(e types.Entry) error {
	if e.Key == "" {
		return merr.New(merr.Validation, "key must not be empty")
	}
	if !utf8.ValidString(e.Key) {
		return merr.New(merr.Validation, "key must be valid UTF-8")
	}
	if len(e.Key) > types.MaxKeyBytes {
		return merr.New(merr.Validation, "key exceeds maximum byte length")
	}
	if !e.IsTombstone {
		if !utf8.Valid(e.Value) {
			return merr.New(merr.Validation, "value must be valid UTF-8")
		}
		if len(e.Value) > types.MaxValueBytes {
			return merr.New(merr.Validation, "value exceeds maximum byte length")
		}
	}
	if e.NodeID == "" || !utf8.ValidString(e.NodeID) {
		return merr.New(merr.Validation, "node_id must be non-empty valid UTF-8")
	}
	return nil
}
