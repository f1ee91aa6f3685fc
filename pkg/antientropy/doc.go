/*
Package antientropy implements the anti-entropy protocol: a 256-bucket
xxhash digest of the keyspace, compared pairwise between nodes so a node
that missed replication events (a dropped message, an extended offline
period) catches up without a full resync.

	Compute(local entries) → Digest
	     │
	     ▼ (via Exchanger, over the transport)
	Diff(local, remote) → mismatched buckets
	     │
	     ▼
	RequestEntries(mismatched) → apply through storage.Engine.Put

Put's existing LWW and dedup rules make repair idempotent: an entry the
local engine already has at an equal-or-greater version is simply not
applied again.

Runner drives this on a fixed interval, one peer at a time, each round
bounded by a soft deadline so a stalled peer cannot stall the whole cycle.
SetIntervalFunc and SetDeferFunc let the lifecycle adapter retune or
entirely skip a cycle under a degraded battery profile, since a round of
anti-entropy is exactly the non-critical background traffic that profile
exists to shed.
*/
package antientropy
