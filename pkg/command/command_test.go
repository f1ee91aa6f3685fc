package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/merklekv-mobile/pkg/command"
	"github.com/cuemby/merklekv-mobile/pkg/replication"
	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

type fakeOutbound struct {
	connected bool
	published [][]byte
	queued    []types.QueuedOperation
}

func (f *fakeOutbound) Connected() bool { return f.connected }
func (f *fakeOutbound) Publish(encoded []byte) error {
	f.published = append(f.published, encoded)
	return nil
}
func (f *fakeOutbound) Enqueue(op types.QueuedOperation) { f.queued = append(f.queued, op) }

func newProcessor(connected bool) (*command.Processor, *fakeOutbound, storage.Engine) {
	eng := storage.NewMemEngine()
	pub := replication.NewPublisher("node-A", 0)
	out := &fakeOutbound{connected: connected}
	return command.New(eng, pub, out, types.PriorityNormal), out, eng
}

func TestSetThenGet(t *testing.T) {
	p, out, _ := newProcessor(true)

	resp := p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdSet, Key: "k", Value: "v"})
	require.Equal(t, types.StatusOK, resp.Status)
	require.Len(t, out.published, 1)

	resp = p.Dispatch(context.Background(), types.Command{ID: "2", Op: types.CmdGet, Key: "k"})
	require.Equal(t, types.StatusOK, resp.Status)
	require.Equal(t, "v", resp.Value)
}

func TestDisconnectedWriteEnqueues(t *testing.T) {
	p, out, _ := newProcessor(false)

	resp := p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdSet, Key: "k", Value: "v"})
	require.Equal(t, types.StatusOK, resp.Status)
	require.Empty(t, out.published)
	require.Len(t, out.queued, 1)
}

func TestDeleteEnqueuesHighPriority(t *testing.T) {
	p, out, _ := newProcessor(false)
	p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdDelete, Key: "k"})
	require.Len(t, out.queued, 1)
	require.Equal(t, types.PriorityHigh, out.queued[0].Priority)
}

func TestRepeatedIDReturnsCachedResponse(t *testing.T) {
	p, out, _ := newProcessor(true)

	r1 := p.Dispatch(context.Background(), types.Command{ID: "same", Op: types.CmdSet, Key: "k", Value: "v1"})
	r2 := p.Dispatch(context.Background(), types.Command{ID: "same", Op: types.CmdSet, Key: "k", Value: "v2"})

	require.Equal(t, r1, r2)
	require.Len(t, out.published, 1, "second dispatch must not re-apply")
}

func TestDispatchAssignsIDWhenEmpty(t *testing.T) {
	p, _, _ := newProcessor(true)

	resp := p.Dispatch(context.Background(), types.Command{Op: types.CmdSet, Key: "k", Value: "v"})
	require.NotEmpty(t, resp.ID)

	resp2 := p.Dispatch(context.Background(), types.Command{Op: types.CmdSet, Key: "k", Value: "v2"})
	require.NotEmpty(t, resp2.ID)
	require.NotEqual(t, resp.ID, resp2.ID, "each empty-ID command gets its own uuid, not a shared cache key")
}

func TestIncrementFromAbsentTreatsAsZero(t *testing.T) {
	p, _, _ := newProcessor(true)
	resp := p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdIncr, Key: "counter", Amount: 1})
	require.Equal(t, types.StatusOK, resp.Status)
	require.Equal(t, int64(1), resp.Value)
}

func TestIncrementOverflow(t *testing.T) {
	p, _, eng := newProcessor(true)
	_, err := eng.Put(types.Entry{Key: "counter", Value: []byte("9223372036854775807"), TimestampMs: 1, NodeID: "node-A", Seq: 1})
	require.NoError(t, err)

	resp := p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdIncr, Key: "counter", Amount: 1})
	require.Equal(t, types.StatusError, resp.Status)
	require.Equal(t, "OVERFLOW_ARITHMETIC", resp.Error.Code)
}

func TestIncrementNonNumericIsTypeMismatch(t *testing.T) {
	p, _, eng := newProcessor(true)
	_, err := eng.Put(types.Entry{Key: "k", Value: []byte("not-a-number"), TimestampMs: 1, NodeID: "node-A", Seq: 1})
	require.NoError(t, err)

	resp := p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdIncr, Key: "k", Amount: 1})
	require.Equal(t, types.StatusError, resp.Status)
	require.Equal(t, "TYPE_MISMATCH", resp.Error.Code)
}

func TestAppendAndPrepend(t *testing.T) {
	p, _, _ := newProcessor(true)
	p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdSet, Key: "k", Value: "b"})
	resp := p.Dispatch(context.Background(), types.Command{ID: "2", Op: types.CmdAppend, Key: "k", Value: "c"})
	require.Equal(t, "bc", resp.Value)

	resp = p.Dispatch(context.Background(), types.Command{ID: "3", Op: types.CmdPrepend, Key: "k", Value: "a"})
	require.Equal(t, "abc", resp.Value)
}

func TestMSetPartialFailureReportsPerKey(t *testing.T) {
	p, _, _ := newProcessor(true)
	bigValue := make([]byte, types.MaxValueBytes+1)
	for i := range bigValue {
		bigValue[i] = 'a'
	}

	resp := p.Dispatch(context.Background(), types.Command{
		ID: "1", Op: types.CmdMSet,
		KVs: map[string]string{"ok": "v", "bad": string(bigValue)},
	})
	require.Equal(t, types.StatusOK, resp.Status)
	require.True(t, resp.Values["ok"].Found)
	require.NotNil(t, resp.Values["bad"].Error)
}

func TestMGetReportsFoundAndMissing(t *testing.T) {
	p, _, _ := newProcessor(true)
	p.Dispatch(context.Background(), types.Command{ID: "1", Op: types.CmdSet, Key: "k1", Value: "v1"})

	resp := p.Dispatch(context.Background(), types.Command{ID: "2", Op: types.CmdMGet, Keys: []string{"k1", "k2"}})
	require.True(t, resp.Values["k1"].Found)
	require.False(t, resp.Values["k2"].Found)
}
