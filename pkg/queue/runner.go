package queue

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// defaultDrainInterval is how often the runner attempts a drain while the
// transport reports connected; the ticker is the only trigger, so a
// reconnect is followed by a drain at the next tick.
const defaultDrainInterval = 2 * time.Second

// Publisher is the narrow capability the runner needs from the transport/
// replication layer: publish one encoded operation, QoS=1, and report
// whether it was accepted.
type Publisher interface {
	PublishQueued(op types.QueuedOperation) error
	Connected() bool
}

// ConcurrencyFunc returns the current drain batch size, re-read before
// every drain so the lifecycle adapter's Outputs.MaxConcurrentOperations
// can cap it under a degraded power profile.
type ConcurrencyFunc func() int

// Runner drains the queue on a ticker whenever the transport is connected.
type Runner struct {
	queue       *Queue
	publisher   Publisher
	batchSize   int
	concurrency ConcurrencyFunc
	logger      zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewRunner constructs a Runner with the spec default batch size.
func NewRunner(q *Queue, publisher Publisher) *Runner {
	return &Runner{
		queue:     q,
		publisher: publisher,
		batchSize: DefaultBatchSize,
		logger:    log.WithComponent("queue"),
		stopCh:    make(chan struct{}),
	}
}

// SetConcurrencyFunc replaces the per-drain batch size source, e.g. with
// one backed by the lifecycle adapter's current
// Outputs.MaxConcurrentOperations.
func (r *Runner) SetConcurrencyFunc(f ConcurrencyFunc) {
	r.mu.Lock()
	r.concurrency = f
	r.mu.Unlock()
}

func (r *Runner) currentBatchSize() int {
	r.mu.Lock()
	f := r.concurrency
	r.mu.Unlock()
	if f == nil {
		return r.batchSize
	}
	if n := f(); n > 0 {
		return n
	}
	return r.batchSize
}

// Start begins the background drain loop.
func (r *Runner) Start() {
	go r.run()
}

// Stop stops the loop.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

func (r *Runner) run() {
	ticker := time.NewTicker(defaultDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.DrainOnce()
		case <-r.stopCh:
			return
		}
	}
}

// DrainOnce publishes at most one batch, requeueing failures up to
// MaxRetries and dropping anything beyond it. Safe to call directly on a
// connected transition as well as from the ticker.
func (r *Runner) DrainOnce() {
	if !r.publisher.Connected() {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.QueueDrainDuration)

	batch := r.queue.DrainBatch(r.currentBatchSize())
	for _, op := range batch {
		if err := r.publisher.PublishQueued(op); err != nil {
			r.queue.MarkFailed()
			if retained := r.queue.Requeue(op, err.Error()); !retained {
				r.logger.Warn().
					Str("operation_id", op.OperationID).
					Int("attempts", op.Attempts).
					Msg("dropping operation after exhausting retries")
				metrics.QueueDroppedTotal.WithLabelValues("retries_exhausted").Inc()
			}
			continue
		}
		r.queue.MarkProcessed()
	}

	r.reportDepth()
}

func (r *Runner) reportDepth() {
	stats := r.queue.Stats(nowMillis())
	for p, n := range stats.CountByPriority {
		metrics.QueueDepth.WithLabelValues(p.String()).Set(float64(n))
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
