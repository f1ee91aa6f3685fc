package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/merklekv-mobile/pkg/types"
)

func TestStateMachineStartsDisconnected(t *testing.T) {
	m := NewStateMachine()
	require.Equal(t, types.StateDisconnected, m.State())
}

func TestStateMachineConnectLifecycle(t *testing.T) {
	m := NewStateMachine()
	m.ConnectRequested()
	require.Equal(t, types.StateConnecting, m.State())

	m.ConnAckSucceeded()
	require.Equal(t, types.StateConnected, m.State())
	require.Equal(t, 0, m.Attempt())
}

func TestStateMachineFailedConnectTracksAttempts(t *testing.T) {
	m := NewStateMachine()
	m.ConnectRequested()
	m.ConnectFailed()
	m.ConnectFailed()
	require.Equal(t, types.StateReconnecting, m.State())
	require.Equal(t, 2, m.Attempt())
	require.Equal(t, 2, m.ConsecutiveFailures())
}

func TestStateMachineSuccessResetsAttemptAndFailures(t *testing.T) {
	m := NewStateMachine()
	m.ConnectRequested()
	m.ConnectFailed()
	m.ConnectFailed()
	m.ConnAckSucceeded()
	require.Equal(t, 0, m.Attempt())
	require.Equal(t, 0, m.ConsecutiveFailures())
}

func TestStateMachineConnectionLostFromConnected(t *testing.T) {
	m := NewStateMachine()
	m.ConnectRequested()
	m.ConnAckSucceeded()
	m.ConnectionLost()
	require.Equal(t, types.StateReconnecting, m.State())
}

func TestStateMachineDisconnectResetsAttempt(t *testing.T) {
	m := NewStateMachine()
	m.ConnectRequested()
	m.ConnectFailed()
	m.Disconnected()
	require.Equal(t, types.StateDisconnected, m.State())
	require.Equal(t, 0, m.Attempt())
}

func TestStateMachineSuspended(t *testing.T) {
	m := NewStateMachine()
	m.Suspended()
	require.Equal(t, types.StateSuspended, m.State())
}
