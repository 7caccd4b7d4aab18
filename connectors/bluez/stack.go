package bluez

import (
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/sirupsen/logrus"
)

// Stack performs the calls the daemon makes into BlueZ: reading the initial adapter state and
// switching the adapter off
type Stack struct {
	config  DBusConfig
	log     logrus.FieldLogger
	adapter *bluez.Client
	objects *bluez.ObjectManager
}

// NewStack prepares clients for the configured adapter, the system bus connection is made lazily
// by the first call
func NewStack(logger logrus.FieldLogger, config DBusConfig) (*Stack, error) {
	objects, err := bluez.NewObjectManager(config.Service, "/")
	if err != nil {
		return nil, fmt.Errorf("bluez: cannot create object manager client: %w", err)
	}
	adapter := bluez.NewClient(&bluez.Config{
		Name:  config.Service,
		Iface: config.AdapterIface,
		Path:  dbus.ObjectPath(config.AdapterPath),
		Bus:   bluez.SystemBus,
	})
	return &Stack{config: config, log: logger.WithField("component", "stack"), adapter: adapter, objects: objects}, nil
}

// AdapterPowered reads the Powered property of the adapter
func (s *Stack) AdapterPowered() (bool, error) {
	v, err := s.adapter.GetProperty(poweredProperty)
	if err != nil {
		return false, fmt.Errorf("bluez: cannot read %v.%v of %v: %w", s.config.AdapterIface, poweredProperty, s.config.AdapterPath, err)
	}
	powered, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("bluez: %v of %v is %T, not bool", poweredProperty, s.config.AdapterPath, v.Value())
	}
	return powered, nil
}

// ConnectedDevices lists the devices of the adapter whose Connected property is true
func (s *Stack) ConnectedDevices() ([]DeviceID, error) {
	objs, err := s.objects.GetManagedObjects()
	if err != nil {
		return nil, fmt.Errorf("bluez: cannot list managed objects: %w", err)
	}
	return connectedDevices(objs, s.config), nil
}

func connectedDevices(objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant, config DBusConfig) []DeviceID {
	devices := []DeviceID{}
	for path, ifaces := range objs {
		if !isDeviceOf(path, config.AdapterPath) {
			continue
		}
		props, ok := ifaces[config.DeviceIface]
		if !ok {
			continue
		}
		v, ok := props[connectedProperty]
		if !ok {
			continue
		}
		if connected, ok := v.Value().(bool); ok && connected {
			devices = append(devices, DeviceID(path))
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices
}

// PowerOff sets the Powered property of the adapter to false. The resulting state change is only
// trusted once it is observed as a signal.
func (s *Stack) PowerOff() error {
	s.log.Infof("Switching off adapter %v", s.config.AdapterPath)
	if err := s.adapter.SetProperty(poweredProperty, false); err != nil {
		return fmt.Errorf("bluez: cannot switch off %v: %w", s.config.AdapterPath, err)
	}
	return nil
}

// Close releases the clients
func (s *Stack) Close() {
	s.adapter.Disconnect()
	s.objects.Close()
}
