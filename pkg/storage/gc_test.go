package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/merklekv-mobile/pkg/types"
)

func TestGCRunnerSweepRemovesExpiredTombstones(t *testing.T) {
	eng := NewMemEngine()
	nowMs := time.Now().UnixMilli()

	old := types.Entry{Key: "old", TimestampMs: nowMs - 25*60*60*1000, NodeID: "A", Seq: 1, IsTombstone: true}
	_, err := eng.Put(old)
	require.NoError(t, err)

	r := NewGCRunner(eng)
	r.sweep()

	_, ok, err := eng.Get("old")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGCRunnerStartStop(t *testing.T) {
	eng := NewMemEngine()
	r := NewGCRunner(eng)

	r.Start()
	r.Stop()
}
