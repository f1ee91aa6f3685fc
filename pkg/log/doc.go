/*
Package log provides structured logging for MerkleKV-Mobile using zerolog.

The log package wraps zerolog to give every component JSON-structured logging
with component-specific child loggers, configurable levels, and helper
functions for the common logging patterns used across the data plane.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  Global Logger ── Init(Config) ── thread-safe, package-wide│
	│       │                                                    │
	│       ├─ WithComponent("transport")                        │
	│       ├─ WithNodeID("node-abc123")                          │
	│       ├─ WithPeerID("node-xyz789")   // anti-entropy/replication peer
	│       └─ WithClientID("mobile-42")   // command processor caller
	│                                                            │
	│  Output: JSON (production) or ConsoleWriter (development)  │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	txLog := log.WithComponent("transport")
	txLog.Info().Str("state", "connected").Msg("mqtt connection established")

	repLog := log.WithComponent("replication").With().Str("peer_node_id", peer).Logger()
	repLog.Warn().Err(err).Msg("dropping malformed replication event")

The components that log (pkg/storage, pkg/transport, pkg/queue,
pkg/antientropy, pkg/lifecycle) take their
zerolog.Logger via WithComponent at construction time rather than reaching
for the package-level Logger directly, so call sites stay testable.

# Log Levels

Debug is for per-message tracing (wire bytes, dedup hits); Info for state
transitions (connect/reconnect, GC sweep counts, anti-entropy session
results); Warn for recoverable drops (malformed inbound event, queue
eviction); Error for persistent failures (persistence I/O, codec corruption
on the local snapshot). Fatal is reserved for startup-time invariant
violations (corrupted persistence snapshot failing its integrity check).
*/
package log
