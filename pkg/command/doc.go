/*
Package command implements the command processor.

Dispatch mirrors the teacher's WarrenFSM.Apply switch-over-op shape, but
with no Raft log underneath it: the switch in apply() is the synchronous
write path itself, invoked directly from the public façade.

Numeric ops (INCR/DECR) and string ops (APPEND/PREPEND) replicate their
post-image as a plain SET, per spec.md's resolution of the delta-vs-
post-image open question — the local entry and the ReplicationEvent sent
to peers carry the same post-image bytes, so LWW on apply at a peer is the
only conflict-resolution rule either side needs.

The idempotency cache (github.com/hashicorp/golang-lru/v2/expirable) is
keyed by Command.ID with a 10-minute TTL; a repeated ID returns the cached
Response without re-running apply().
*/
package command
