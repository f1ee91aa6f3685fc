package antientropy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/merklekv-mobile/pkg/antientropy"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	req := antientropy.Request{
		RequestID:     "req-1",
		ReplyToNodeID: "node-a",
		Kind:          antientropy.KindEntries,
		Buckets:       []uint16{3, 7},
	}

	b, err := antientropy.EncodeRequest(req)
	require.NoError(t, err)

	got, err := antientropy.DecodeRequest(b)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	resp := antientropy.Response{
		RequestID: "req-1",
		Entries:   []types.Entry{{Key: "k", NodeID: "node-a", TimestampMs: 1}},
	}

	b, err := antientropy.EncodeResponse(resp)
	require.NoError(t, err)

	got, err := antientropy.DecodeResponse(b)
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestRespondDigest(t *testing.T) {
	eng := storage.NewMemEngine()
	_, err := eng.Put(types.Entry{Key: "k", NodeID: "node-a", TimestampMs: 1})
	require.NoError(t, err)

	resp := antientropy.Respond(eng, antientropy.Request{RequestID: "req-1", Kind: antientropy.KindDigest})
	require.Equal(t, "req-1", resp.RequestID)
	require.Empty(t, resp.Error)
	require.NotEmpty(t, resp.Digest)
}

func TestRespondEntriesFiltersByBucket(t *testing.T) {
	eng := storage.NewMemEngine()
	_, err := eng.Put(types.Entry{Key: "alpha", NodeID: "node-a", TimestampMs: 1})
	require.NoError(t, err)
	_, err = eng.Put(types.Entry{Key: "beta", NodeID: "node-a", TimestampMs: 1})
	require.NoError(t, err)

	wantBucket := antientropy.BucketFor("alpha")
	resp := antientropy.Respond(eng, antientropy.Request{
		RequestID: "req-2",
		Kind:      antientropy.KindEntries,
		Buckets:   []uint16{wantBucket},
	})

	for _, e := range resp.Entries {
		require.Equal(t, wantBucket, antientropy.BucketFor(e.Key))
	}
	require.Contains(t, keysOf(resp.Entries), "alpha")
}

func TestRespondUnknownKind(t *testing.T) {
	eng := storage.NewMemEngine()
	resp := antientropy.Respond(eng, antientropy.Request{RequestID: "req-3", Kind: "bogus"})
	require.NotEmpty(t, resp.Error)
}

func keysOf(entries []types.Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}
