package transport

import (
	"sync"
	"time"

	"github.com/cuemby/merklekv-mobile/pkg/health"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// StateMachine implements the connection lifecycle of spec.md §4.4:
// disconnected → connecting → connected → (reconnecting | disconnected) →
// suspended. It never touches the network itself — Transport drives it
// from paho callbacks and decides what to do with the derived state
// (when to sleep, when to publish). This is the "async control flow as a
// state machine object" design note applied directly.
type StateMachine struct {
	mu      sync.Mutex
	state   types.ConnectionState
	attempt int
	status  *health.Status
}

// NewStateMachine starts in the disconnected state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		state:  types.StateDisconnected,
		status: health.NewStatus(),
	}
}

// State returns the current state.
func (m *StateMachine) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectRequested transitions disconnected/suspended → connecting, on a
// user connect() call or queued work needing the transport.
func (m *StateMachine) ConnectRequested() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateConnecting
}

// ConnAckSucceeded transitions → connected and resets the consecutive-
// failure counter, per spec.md: "resets on successful CONNACK".
func (m *StateMachine) ConnAckSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateConnected
	m.attempt = 0
	m.status.Update(health.Result{Healthy: true, CheckedAt: time.Now()}, health.DefaultConfig())
}

// ConnectFailed folds in one failed connect/CONNACK attempt and
// transitions to reconnecting, tracking the attempt count the backoff
// schedule uses.
func (m *StateMachine) ConnectFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateReconnecting
	m.status.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, health.DefaultConfig())
	m.attempt++
}

// ConnectionLost transitions connected → reconnecting on an unexpected
// network loss.
func (m *StateMachine) ConnectionLost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateReconnecting
	m.status.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, health.DefaultConfig())
	m.attempt++
}

// Disconnected transitions to the terminal disconnected state on an
// explicit user disconnect() call. The backoff loop is expected to have
// already been cancelled by the caller.
func (m *StateMachine) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateDisconnected
	m.attempt = 0
}

// Suspended transitions to suspended, used when the lifecycle adapter or
// repeated reconnect failures (ConsecutiveFailures reaching the
// transport's suspendAfterFailures) call for
// backing off entirely rather than retrying immediately.
func (m *StateMachine) Suspended() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateSuspended
}

// ConsecutiveFailures exposes the hysteresis-tracked count for callers
// deciding connecting → reconnecting → suspended escalation.
func (m *StateMachine) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.ConsecutiveFailures
}

// Attempt returns the current attempt count used to compute the next
// reconnect delay. It does not change the count.
func (m *StateMachine) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}
