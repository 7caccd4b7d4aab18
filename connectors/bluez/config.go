package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/hannesrauhe/bttimeout/utils"
)

// DBusConfig names the BlueZ objects the daemon talks to
type DBusConfig struct {
	Service      string `yaml:"service"`
	AdapterIface string `yaml:"adapter_iface"`
	AdapterPath  string `yaml:"adapter_path"`
	DeviceIface  string `yaml:"device_iface"`
	// size of the channel between the observer and the state machine
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultDBusConfig matches a stock BlueZ 5 installation with a single controller
var DefaultDBusConfig = DBusConfig{
	Service:      "org.bluez",
	AdapterIface: "org.bluez.Adapter1",
	AdapterPath:  "/org/bluez/hci0",
	DeviceIface:  "org.bluez.Device1",
	EventBuffer:  16,
}

// Validate checks the section before any connection to the bus is made
func (c *DBusConfig) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("%w: dbus.service must not be empty", utils.ErrInvalidConfig)
	}
	if c.AdapterIface == "" || c.DeviceIface == "" {
		return fmt.Errorf("%w: dbus.adapter_iface and dbus.device_iface must not be empty", utils.ErrInvalidConfig)
	}
	if !dbus.ObjectPath(c.AdapterPath).IsValid() || c.AdapterPath == "/" {
		return fmt.Errorf("%w: dbus.adapter_path \"%v\" is not a valid adapter object path", utils.ErrInvalidConfig, c.AdapterPath)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("%w: dbus.event_buffer must be positive", utils.ErrInvalidConfig)
	}
	return nil
}
