/*
Package storage implements MerkleKV-Mobile's local storage engine.

# Architecture

	┌──────────────────── STORAGE ENGINE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │               MemEngine                      │          │
	│  │  - map[key]Entry, guarded by one RWMutex     │          │
	│  │  - LWW merge: (timestamp_ms, node_id)        │          │
	│  │  - dedup: bounded LRU over (node_id, seq)     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ embeds                                │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            PersistentEngine                  │          │
	│  │  - BoltDB "entries_log" (append-only)        │          │
	│  │  - BoltDB "entries_snapshot" (compacted)      │          │
	│  │  - startup: snapshot load, then log replay   │          │
	│  │  - replay reuses Put — idempotent by LWW     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Single-writer discipline

Every Put/GCTombstones call holds the engine's write lock for the duration
of one key's merge decision — multiple readers, one writer, as the
concurrency model requires. This is what lets LWW remain correct regardless
of arrival order: two concurrent Put calls for the same key always resolve
to whichever compares greater under Entry.Version, never a torn mix.

# Tombstone GC

GCTombstones(nowMs) removes only tombstones whose TimestampMs predates
nowMs - types.TombstoneGraceMillis (24h). Live entries are never touched;
a tombstone removed before its grace period would let a stale replicated
SET resurrect a deleted key, which is exactly the disallowed behavior.

GCRunner (gc.go) is the background loop that actually calls GCTombstones
on a node — the same ticker-plus-stop-channel shape as queue.Runner and
antientropy.Runner — since nothing sweeps for expired tombstones on its
own otherwise.
*/
package storage
