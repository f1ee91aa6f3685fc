// Package antientropy implements bucket-digest anti-entropy: periodic,
// pairwise comparison of a coarse summary of stored state so two nodes
// that drifted apart (a missed replication event, a long offline period)
// converge without replaying their entire history.
package antientropy

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// BucketCount is the fixed number of buckets a key space is partitioned
// into. Coarser than per-key comparison, fine enough that a mismatch
// touches a small slice of keys rather than the whole keyspace.
const BucketCount = 256

// Digest summarizes one node's stored state as one hash per bucket.
type Digest map[uint16]uint64

// BucketFor returns the bucket a key falls into.
func BucketFor(key string) uint16 {
	return uint16(xxhash.Sum64String(key) % BucketCount)
}

// Compute derives a Digest from a snapshot of entries. Entries are grouped
// by bucket and folded in key order so the result is independent of the
// slice's original ordering.
func Compute(entries []types.Entry) Digest {
	byBucket := make(map[uint16][]types.Entry, BucketCount)
	for _, e := range entries {
		b := BucketFor(e.Key)
		byBucket[b] = append(byBucket[b], e)
	}

	digest := make(Digest, len(byBucket))
	for b, es := range byBucket {
		sort.Slice(es, func(i, j int) bool { return es[i].Key < es[j].Key })

		h := xxhash.New()
		for _, e := range es {
			_, _ = h.WriteString(e.Key)
			_, _ = h.WriteString(e.NodeID)
			var buf [24]byte
			putUint64(buf[0:8], uint64(e.TimestampMs))
			putUint64(buf[8:16], e.Seq)
			putUint64(buf[16:24], boolToUint64(e.IsTombstone))
			_, _ = h.Write(buf[:])
		}
		digest[b] = h.Sum64()
	}
	return digest
}

// Diff returns the buckets present in either digest with a differing hash
// (or present in only one side) — the buckets worth exchanging full
// entries for.
func Diff(local, remote Digest) []uint16 {
	seen := make(map[uint16]struct{}, len(local)+len(remote))
	var mismatched []uint16
	for b, lh := range local {
		seen[b] = struct{}{}
		if rh, ok := remote[b]; !ok || rh != lh {
			mismatched = append(mismatched, b)
		}
	}
	for b := range remote {
		if _, ok := seen[b]; ok {
			continue
		}
		mismatched = append(mismatched, b)
	}
	sort.Slice(mismatched, func(i, j int) bool { return mismatched[i] < mismatched[j] })
	return mismatched
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
