/*
Package types defines the core data structures shared across MerkleKV-Mobile:
Entry, ReplicationEvent, Command/Response, QueuedOperation, ConnectionState,
and PeerWatermark — the entities named by the data model.

# Core Types

Storage:
  - Entry: one key's current value or tombstone, with (TimestampMs, NodeID)
    ordering and (NodeID, Seq) dedup identity.
  - VersionVector: the (TimestampMs, NodeID) pair VersionVector.Compare
    orders on (an Entry's comes from Entry.Version());
    Seq is deliberately excluded from it.

Replication:
  - ReplicationEvent: the canonical, self-contained wire record of one
    accepted mutation. Numeric/string ops (INCR/DECR/APPEND/PREPEND) carry
    their post-image, never a delta — see DESIGN.md for why.
  - PeerWatermark: highest contiguous Seq applied from one remote NodeID.

Command processing:
  - Command / Response: the client-facing request/response pair. Response.ID
    always equals the Command.ID it answers.
  - QueuedOperation: a codec-encoded ReplicationEvent waiting for the
    transport to reconnect, tagged with a Priority for drain ordering.

All size ceilings (MaxKeyBytes, MaxValueBytes, MaxCommandPayloadBytes,
MaxReplicationEventBytes) and the tombstone grace period live here as
package constants so every component enforces the same numbers.
*/
package types
