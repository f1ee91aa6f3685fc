/*
Package transport is the only package that owns an MQTT client handle.

state.go's StateMachine implements the lifecycle disconnected →
connecting → connected → (reconnecting | disconnected) → suspended as a
plain, network-free object — a direct generalization of the teacher's
"state transitions as methods on a guarded struct" idiom. backoff.go
implements the full-jitter reconnect schedule (base 1s, cap 60s).
transport.go wires both to github.com/eclipse/paho.mqtt.golang: paho's
OnConnect/ConnectionLost callbacks drive the StateMachine, and
Transport's own reconnectLoop goroutine owns the cancellable sleep
between attempts (paho's built-in auto-reconnect is disabled so this
package is the single source of truth for the schedule).

Transport satisfies the narrow interfaces pkg/queue and pkg/antientropy
depend on (Publisher, Exchanger) without either package importing paho
directly. pkg/command reaches it through pkg/client's outboundAdapter,
which implements command.Outbound over Transport and the queue.

The reconnectLoop escalates to suspended on its own once consecutive
failures cross suspendAfterFailures, and Suspend/Resume let the lifecycle
adapter force the same transition under a critical battery profile and
lift it again. UpdateKeepAlive lets the lifecycle adapter retune the next
Connect's keep-alive interval.
*/
package transport
