// Package replication implements the Publisher and Subscriber/Applier
// halves of the replication pipeline: allocating and encoding outbound
// ReplicationEvents, and validating, decoding, and applying inbound ones
// while tracking per-peer watermarks.
package replication

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/merklekv-mobile/pkg/codec"
	"github.com/cuemby/merklekv-mobile/pkg/events"
	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// Publisher allocates a per-node monotonic seq and hands encoded events to
// whatever outbound sink the caller supplies — either the connected
// transport or the offline queue.
type Publisher struct {
	nodeID string
	seq    atomic.Uint64
}

// NewPublisher seeds the sequence counter from lastSeq, the highest value
// this node previously persisted, so a restart never reuses a seq.
func NewPublisher(nodeID string, lastSeq uint64) *Publisher {
	p := &Publisher{nodeID: nodeID}
	p.seq.Store(lastSeq)
	return p
}

// Next allocates the next ReplicationEvent for a local mutation and
// returns both the event and its wire-encoded form.
func (p *Publisher) Next(e types.Entry) (types.ReplicationEvent, []byte, error) {
	seq := p.seq.Add(1)
	e.NodeID = p.nodeID
	e.Seq = seq

	ev := types.ReplicationEvent{
		Op:          opForEntry(e),
		Key:         e.Key,
		Value:       e.Value,
		IsTombstone: e.IsTombstone,
		TimestampMs: e.TimestampMs,
		NodeID:      e.NodeID,
		Seq:         e.Seq,
	}

	encoded, err := codec.Encode(ev)
	if err != nil {
		return types.ReplicationEvent{}, nil, err
	}
	metrics.ReplicationEventsPublished.Inc()
	return ev, encoded, nil
}

func opForEntry(e types.Entry) types.Op {
	if e.IsTombstone {
		return types.OpDelete
	}
	return types.OpSet
}

// Applier decodes and validates inbound replication payloads, applies
// them through a storage.Engine, and tracks contiguous per-peer
// watermarks.
type Applier struct {
	engine storage.Engine
	broker *events.Broker

	mu         sync.Mutex
	watermarks map[string]uint64
}

// NewApplier constructs an Applier bound to engine, publishing lifecycle
// notifications on broker.
func NewApplier(engine storage.Engine, broker *events.Broker) *Applier {
	return &Applier{
		engine:     engine,
		broker:     broker,
		watermarks: make(map[string]uint64),
	}
}

// ApplyEncoded decodes payload and applies it. Decode failures are
// reported as merr.Codec and the event is dropped without affecting the
// rest of the stream, per spec.md §4.7/§7.
func (a *Applier) ApplyEncoded(payload []byte) error {
	ev, err := codec.Decode(payload)
	if err != nil {
		metrics.ReplicationEventsApplied.WithLabelValues("decode_error").Inc()
		return err
	}
	return a.Apply(ev)
}

// Apply validates and applies one already-decoded event.
func (a *Applier) Apply(ev types.ReplicationEvent) error {
	if len(ev.Value) > types.MaxValueBytes {
		metrics.ReplicationEventsApplied.WithLabelValues("oversize").Inc()
		return merr.New(merr.Validation, "replication event value exceeds maximum byte length")
	}

	accepted, err := a.engine.Put(ev.Entry())
	if err != nil {
		metrics.ReplicationEventsApplied.WithLabelValues("storage_error").Inc()
		return err
	}

	a.advanceWatermark(ev.NodeID, ev.Seq)

	if a.broker != nil {
		outcome := "applied"
		if !accepted {
			outcome = "stale"
		}
		a.broker.Publish(&events.Event{
			Type:    events.EventReplicationApplied,
			Message: outcome,
			Metadata: map[string]string{
				"peer_node_id": ev.NodeID,
				"key":          ev.Key,
			},
		})
	}

	if accepted {
		metrics.ReplicationEventsApplied.WithLabelValues("applied").Inc()
	} else {
		metrics.ReplicationEventsApplied.WithLabelValues("stale").Inc()
	}
	return nil
}

// advanceWatermark advances PeerWatermark[nodeID] only when seq is exactly
// one past the current watermark — strictly contiguous, as anti-entropy
// needs to tell "caught up" from "gap exists" without re-deriving it from
// storage.
func (a *Applier) advanceWatermark(nodeID string, seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watermarks[nodeID]+1 == seq || a.watermarks[nodeID] == 0 && seq == 1 {
		a.watermarks[nodeID] = seq
	}
}

// Watermark returns the current contiguous high-water seq for a peer.
func (a *Applier) Watermark(nodeID string) types.PeerWatermark {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.PeerWatermark{NodeID: nodeID, HighestSeq: a.watermarks[nodeID]}
}
