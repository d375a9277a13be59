package connection

import "github.com/unithub/unithub-ble/pkg/device"

// State is a connection manager lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

var stateNames = []string{"idle", "scanning", "connecting", "connected", "disconnecting", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status maps s onto the connection status shown in a device snapshot.
func (s State) Status() device.ConnectionStatus {
	switch s {
	case StateConnecting:
		return device.StatusConnecting
	case StateConnected:
		return device.StatusConnected
	case StateFailed:
		return device.StatusFailed
	}
	return device.StatusDisconnected
}

// Transition reports a state change. Err is set when the change was caused by a failure.
type Transition struct {
	From, To State
	DeviceID string
	Err      error
}

// StateHandler is invoked after every transition, outside of any lock held by the Manager.
type StateHandler func(Transition)
