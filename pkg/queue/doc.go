/*
Package queue implements the offline operation queue.

Three FIFO lanes — high, normal, low — share one capacity bound and one
age bound. Enqueue evicts the oldest item from the lowest non-empty lane
when at capacity; DrainBatch walks high, then normal, then low, taking
FIFO order within each lane, matching spec.md §4.5's "evict oldest within
the lowest non-empty priority first" / "drain in priority then FIFO
order".

Runner (runner.go) drives DrainBatch on a ticker, the same run()-plus-
stopCh shape used by pkg/antientropy.Runner and the teacher's reconciler.
*/
package queue
