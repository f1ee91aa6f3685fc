/*
Package events provides an in-memory event broker for local pub/sub within
a single MerkleKV-Mobile node process.

Broker decouples its publishers, pkg/transport and pkg/replication, from
whatever observes them — chiefly the pkg/client façade's
connection_state() stream — so neither package needs to import its
observers just to report what happened.

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each, drop-when-full)

Publish never blocks on a slow subscriber: broadcast uses a non-blocking
send per subscriber channel, so one stalled consumer cannot back up the
whole bus.
*/
package events
