/*
Package lifecycle derives transport/queue tuning from battery inputs the
host feeds in via Inputs — this package has no OS battery API access
itself.

Derive is a pure function, table-driven from spec.md §4.10's thresholds.
Adapter wraps it with atomic swap-in-place semantics: a caller updates
Inputs only at an idle boundary (between offline-queue drain batches, or
before a transport reconnect), grounded on the teacher's
health.Status.Update hysteresis pattern of folding in one observation at a
time rather than reacting mid-operation.
*/
package lifecycle
