package queue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/merklekv-mobile/pkg/queue"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	published []string
}

func (f *fakePublisher) Connected() bool { return f.connected }

func (f *fakePublisher) PublishQueued(op types.QueuedOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, op.OperationID)
	return nil
}

func TestDrainOnceUsesConcurrencyFuncAsBatchSize(t *testing.T) {
	q := queue.New(100, 0, 0)
	for i := 0; i < 5; i++ {
		q.Enqueue(op(string(rune('a'+i)), types.PriorityNormal, int64(i)))
	}

	pub := &fakePublisher{connected: true}
	r := queue.NewRunner(q, pub)
	r.SetConcurrencyFunc(func() int { return 2 })

	r.DrainOnce()

	require.Len(t, pub.published, 2)
	require.Equal(t, 3, q.Len())
}

func TestDrainOnceFallsBackToDefaultBatchSizeWhenFuncReturnsZero(t *testing.T) {
	q := queue.New(100, 0, 0)
	for i := 0; i < 3; i++ {
		q.Enqueue(op(string(rune('a'+i)), types.PriorityNormal, int64(i)))
	}

	pub := &fakePublisher{connected: true}
	r := queue.NewRunner(q, pub)
	r.SetConcurrencyFunc(func() int { return 0 })

	r.DrainOnce()

	require.Len(t, pub.published, 3)
}
