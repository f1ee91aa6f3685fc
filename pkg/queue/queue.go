// Package queue implements the offline operation queue: a bounded
// priority queue for operations produced while the transport is not
// connected, drained in priority-then-FIFO order once it reconnects.
// The queue is held in memory only; its contents do not survive a
// process restart.
package queue

import (
	"sync"
	"time"

	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// Defaults per spec.
const (
	DefaultMaxOperations = 1000
	DefaultMaxAge        = 24 * time.Hour
	DefaultBatchSize     = 10
	DefaultMaxRetries    = 5
)

var priorityOrder = []types.Priority{types.PriorityHigh, types.PriorityNormal, types.PriorityLow}

// Stats summarizes queue occupancy for observability.
type Stats struct {
	CountByPriority map[types.Priority]int
	TotalProcessed  int
	TotalFailed     int
	TotalDropped    int
	OldestAgeMs     int64
}

// Queue holds QueuedOperations in three priority lanes, FIFO within each.
type Queue struct {
	mu              sync.Mutex
	lanes           map[types.Priority][]types.QueuedOperation
	maxOperations   int
	maxAge          time.Duration
	maxRetries      int
	totalProcessed  int
	totalFailed     int
	totalDropped    int
}

// New constructs a Queue with the given bounds. Zero values fall back to
// the spec defaults.
func New(maxOperations int, maxAge time.Duration, maxRetries int) *Queue {
	if maxOperations <= 0 {
		maxOperations = DefaultMaxOperations
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{
		lanes: map[types.Priority][]types.QueuedOperation{
			types.PriorityHigh:   nil,
			types.PriorityNormal: nil,
			types.PriorityLow:    nil,
		},
		maxOperations: maxOperations,
		maxAge:        maxAge,
		maxRetries:    maxRetries,
	}
}

// Enqueue adds op, evicting the oldest operation from the lowest non-empty
// priority lane if the queue is at capacity.
func (q *Queue) Enqueue(op types.QueuedOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sizeLocked() >= q.maxOperations {
		q.evictOneLocked()
	}
	q.lanes[op.Priority] = append(q.lanes[op.Priority], op)
}

// sizeLocked returns the total queued operation count; caller holds mu.
func (q *Queue) sizeLocked() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// evictOneLocked drops the oldest item in the lowest non-empty priority
// lane — low before normal before high — per the overflow policy.
func (q *Queue) evictOneLocked() {
	for i := len(priorityOrder) - 1; i >= 0; i-- {
		p := priorityOrder[i]
		lane := q.lanes[p]
		if len(lane) > 0 {
			q.lanes[p] = lane[1:]
			q.totalDropped++
			return
		}
	}
}

// DropExpired removes operations older than maxAge as of nowMs, counting
// them as dropped.
func (q *Queue) DropExpired(nowMs int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := nowMs - q.maxAge.Milliseconds()
	dropped := 0
	for p, lane := range q.lanes {
		kept := lane[:0:0]
		for _, op := range lane {
			if op.QueuedAtMs < cutoff {
				dropped++
				continue
			}
			kept = append(kept, op)
		}
		q.lanes[p] = kept
	}
	q.totalDropped += dropped
	return dropped
}

// DrainBatch returns up to batchSize operations in priority-then-FIFO
// order, removing them from the queue. The caller is responsible for
// publishing them and reporting the outcome via MarkProcessed/MarkFailed.
func (q *Queue) DrainBatch(batchSize int) []types.QueuedOperation {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []types.QueuedOperation
	for _, p := range priorityOrder {
		lane := q.lanes[p]
		for len(lane) > 0 && len(batch) < batchSize {
			batch = append(batch, lane[0])
			lane = lane[1:]
		}
		q.lanes[p] = lane
		if len(batch) >= batchSize {
			break
		}
	}
	return batch
}

// Requeue puts op back at the front of its priority lane, for a failed
// publish attempt that should be retried; it increments Attempts and
// drops the operation instead once MaxRetries is exceeded.
func (q *Queue) Requeue(op types.QueuedOperation, lastErr string) (retained bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	op.Attempts++
	op.LastError = lastErr
	if op.Attempts > q.maxRetries {
		q.totalDropped++
		return false
	}
	q.lanes[op.Priority] = append([]types.QueuedOperation{op}, q.lanes[op.Priority]...)
	return true
}

// MarkProcessed records a successful publish.
func (q *Queue) MarkProcessed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.totalProcessed++
}

// MarkFailed records a failed publish attempt (before any requeue decision).
func (q *Queue) MarkFailed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.totalFailed++
}

// Stats reports current occupancy and lifetime counters.
func (q *Queue) Stats(nowMs int64) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[types.Priority]int, 3)
	var oldest int64
	for p, lane := range q.lanes {
		counts[p] = len(lane)
		for _, op := range lane {
			age := nowMs - op.QueuedAtMs
			if age > oldest {
				oldest = age
			}
		}
	}
	return Stats{
		CountByPriority: counts,
		TotalProcessed:  q.totalProcessed,
		TotalFailed:     q.totalFailed,
		TotalDropped:    q.totalDropped,
		OldestAgeMs:     oldest,
	}
}

// Len returns the total number of currently queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}
