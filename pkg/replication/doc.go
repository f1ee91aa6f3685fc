/*
Package replication implements the outbound Publisher and inbound
Applier halves of the replication pipeline.

Publisher owns the only writer of this node's outbound seq — an atomic
counter that pkg/client.New seeds from the highest Seq among this node's
entries in storage, so a restart continues past every seq still recorded
there.

Applier owns PeerWatermark bookkeeping: HighestSeq only advances when an
applied event's Seq is exactly one past the current watermark, so a gap
(missed event) is visible to pkg/antientropy as "watermark stalled", not
silently skipped over.

Applier publishes each applied event on pkg/events.Broker so the public
façade's connection_state()-adjacent observers can watch replication
activity without a direct dependency on this package; Publisher does not
use the broker.
*/
package replication
