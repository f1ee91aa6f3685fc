package storage_test

import (
	"testing"

	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
	"github.com/stretchr/testify/require"
)

func entry(key, value string, ts int64, node string, seq uint64) types.Entry {
	return types.Entry{Key: key, Value: []byte(value), TimestampMs: ts, NodeID: node, Seq: seq}
}

func TestLWWConcurrentWritesConvergeToHigherNodeID(t *testing.T) {
	eng := storage.NewMemEngine()

	okA, err := eng.Put(entry("k", "v1", 1000, "A", 1))
	require.NoError(t, err)
	require.True(t, okA)

	okB, err := eng.Put(entry("k", "v2", 1000, "B", 1))
	require.NoError(t, err)
	require.True(t, okB)

	got, ok, err := eng.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(got.Value))
}

func TestStaleReplayIgnored(t *testing.T) {
	eng := storage.NewMemEngine()

	_, err := eng.Put(entry("k", "v", 2000, "A", 1))
	require.NoError(t, err)

	accepted, err := eng.Put(entry("k", "v-old", 1500, "A", 2))
	require.NoError(t, err)
	require.False(t, accepted)

	got, ok, _ := eng.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", string(got.Value))
}

func TestDeleteThenOlderSetStaysDeleted(t *testing.T) {
	eng := storage.NewMemEngine()

	del := entry("k", "", 3000, "A", 1)
	del.IsTombstone = true
	_, err := eng.Put(del)
	require.NoError(t, err)

	_, err = eng.Put(entry("k", "v", 2999, "A", 2))
	require.NoError(t, err)

	_, ok, _ := eng.Get("k")
	require.False(t, ok)
}

func TestDedupIgnoresReplayOfSameNodeSeq(t *testing.T) {
	eng := storage.NewMemEngine()

	first, err := eng.Put(entry("k", "v", 1000, "A", 1))
	require.NoError(t, err)
	require.True(t, first)

	// A later, "newer"-looking write that replays an already-seen (node,seq)
	// is a no-op regardless of what LWW alone would say.
	replay := entry("k", "v2", 5000, "A", 1)
	second, err := eng.Put(replay)
	require.NoError(t, err)
	require.False(t, second)

	got, _, _ := eng.Get("k")
	require.Equal(t, "v", string(got.Value))
}

func TestGCTombstoneRespectsGracePeriod(t *testing.T) {
	eng := storage.NewMemEngine()
	now := int64(2_000_000_000_000)

	old := entry("old", "", now-25*60*60*1000, "A", 1)
	old.IsTombstone = true
	_, err := eng.Put(old)
	require.NoError(t, err)

	recent := entry("recent", "", now-20*60*60*1000, "A", 2)
	recent.IsTombstone = true
	_, err = eng.Put(recent)
	require.NoError(t, err)

	removed, err := eng.GCTombstones(now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	removedAgain, err := eng.GCTombstones(now)
	require.NoError(t, err)
	require.Equal(t, 0, removedAgain)
}

func TestValidationRejectsOversizeKey(t *testing.T) {
	eng := storage.NewMemEngine()
	bigKey := make([]byte, types.MaxKeyBytes+1)
	for i := range bigKey {
		bigKey[i] = 'a'
	}

	_, err := eng.Put(entry(string(bigKey), "v", 1000, "A", 1))
	require.Error(t, err)
}

func TestPersistentEngineReplaysAfterRestart(t *testing.T) {
	dir := t.TempDir()

	eng, err := storage.NewPersistentEngine(dir)
	require.NoError(t, err)
	_, err = eng.Put(entry("counter", "5", 1000, "A", 1))
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	reopened, err := storage.NewPersistentEngine(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get("counter")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "5", string(got.Value))
}
