package antientropy

import (
	"context"
	"fmt"

	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// maxDigestRequestBytes is the size budget for the digest request/response
// exchange; a 256-entry map of uint16->uint64 fits well within it. No code
// path checks an encoded request or response against this constant.
const maxDigestRequestBytes = 300 * 1024

// Exchanger reaches a specific peer to fetch its digest and, for buckets
// that differ, its full entries. pkg/transport's MQTT session is the
// production implementation; tests supply an in-memory one.
type Exchanger interface {
	RequestDigest(ctx context.Context, peerID string) (Digest, error)
	RequestEntries(ctx context.Context, peerID string, buckets []uint16) ([]types.Entry, error)
}

// Session runs one anti-entropy round against one peer.
type Session struct {
	Engine    storage.Engine
	Exchanger Exchanger
}

// Result summarizes one completed round.
type Result struct {
	BucketsCompared int
	BucketsRepaired int
	EntriesApplied  int
	EntriesRejected int
}

// Run computes the local digest, exchanges it with peerID, and applies any
// entries the peer holds for buckets that differ from ours. It never
// pushes local-only entries to the peer — this node only pulls, a second
// Run initiated by the peer is what completes convergence the other way.
func (s *Session) Run(ctx context.Context, peerID string) (Result, error) {
	local, err := s.Engine.AllEntries()
	if err != nil {
		return Result{}, fmt.Errorf("read local entries: %w", err)
	}
	localDigest := Compute(local)

	remoteDigest, err := s.Exchanger.RequestDigest(ctx, peerID)
	if err != nil {
		return Result{}, merr.Wrap(merr.Transport, "request digest", err)
	}

	mismatched := Diff(localDigest, remoteDigest)
	result := Result{BucketsCompared: BucketCount}
	if len(mismatched) == 0 {
		return result, nil
	}

	entries, err := s.Exchanger.RequestEntries(ctx, peerID, mismatched)
	if err != nil {
		return result, merr.Wrap(merr.Transport, "request entries", err)
	}

	result.BucketsRepaired = len(mismatched)
	for _, e := range entries {
		accepted, err := s.Engine.Put(e)
		if err != nil {
			result.EntriesRejected++
			continue
		}
		if accepted {
			result.EntriesApplied++
		}
	}
	return result, nil
}
