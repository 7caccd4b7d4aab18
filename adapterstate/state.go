// Package adapterstate follows the power state of the adapter and its connected devices and
// runs the timeout while the adapter is powered without any connection
package adapterstate

import (
	"fmt"

	"github.com/hannesrauhe/bttimeout/connectors/bluez"
)

// State of the adapter as far as the timeout is concerned
type State int

const (
	PoweredOff State = iota
	// powered, no device connected, a timeout session is usually running
	PoweredOnIdle
	// powered with at least one connected device
	PoweredOnActive
)

func (s State) String() string {
	switch s {
	case PoweredOff:
		return "PoweredOff"
	case PoweredOnIdle:
		return "PoweredOnIdle"
	case PoweredOnActive:
		return "PoweredOnActive"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stack answers the questions needed to find the initial state
type Stack interface {
	AdapterPowered() (bool, error)
	ConnectedDevices() ([]bluez.DeviceID, error)
}
