package bluez

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// DeviceID is the object path BlueZ assigned to a peer, e.g. /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF
type DeviceID string

// EventKind is the type of a semantic adapter event
type EventKind int

const (
	AdapterPoweredOn EventKind = iota
	AdapterPoweredOff
	DeviceConnected
	DeviceDisconnected
	DeviceRemoved
)

var eventKindNames = map[EventKind]string{
	AdapterPoweredOn:   "AdapterPoweredOn",
	AdapterPoweredOff:  "AdapterPoweredOff",
	DeviceConnected:    "DeviceConnected",
	DeviceDisconnected: "DeviceDisconnected",
	DeviceRemoved:      "DeviceRemoved",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is what the observer hands to the state machine, Device is empty for adapter events
type Event struct {
	Kind   EventKind
	Device DeviceID
}

func (e Event) String() string {
	if e.Device == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%v(%v)", e.Kind, e.Device)
}

// isDeviceOf reports whether path is a descendant of the adapter path
func isDeviceOf(path dbus.ObjectPath, adapterPath string) bool {
	return strings.HasPrefix(string(path), adapterPath+"/")
}
