package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	propertiesIface    = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"

	propertiesChangedSignal = propertiesIface + ".PropertiesChanged"
	interfacesAddedSignal   = objectManagerIface + ".InterfacesAdded"
	interfacesRemovedSignal = objectManagerIface + ".InterfacesRemoved"

	poweredProperty   = "Powered"
	connectedProperty = "Connected"
)

// ErrSubscriptionLost is reported when the signal channel closes while the daemon is running
var ErrSubscriptionLost = errors.New("bluez: signal subscription lost")

// ErrMalformedSignal is returned by the decoder for signals that match the filter but cannot be
// read; such signals are dropped
var ErrMalformedSignal = errors.New("bluez: malformed signal")

// Observer turns BlueZ signals of one adapter into Events
type Observer struct {
	conn    *dbus.Conn
	config  DBusConfig
	log     logrus.FieldLogger
	signals chan *dbus.Signal
	matches [][]dbus.MatchOption

	errLck sync.Mutex
	err    error
}

func newObserver(logger logrus.FieldLogger, config DBusConfig) *Observer {
	return &Observer{
		config: config,
		log:    logger.WithField("component", "observer"),
		matches: [][]dbus.MatchOption{
			{
				dbus.WithMatchInterface(propertiesIface),
				dbus.WithMatchMember("PropertiesChanged"),
				dbus.WithMatchPathNamespace(dbus.ObjectPath(config.AdapterPath)),
			},
			{
				dbus.WithMatchSender(config.Service),
				dbus.WithMatchInterface(objectManagerIface),
				dbus.WithMatchMember("InterfacesAdded"),
			},
			{
				dbus.WithMatchSender(config.Service),
				dbus.WithMatchInterface(objectManagerIface),
				dbus.WithMatchMember("InterfacesRemoved"),
			},
		},
	}
}

// NewObserver installs the match rules on conn. An error here means the daemon has no event
// source and must not start.
func NewObserver(logger logrus.FieldLogger, conn *dbus.Conn, config DBusConfig) (*Observer, error) {
	o := newObserver(logger, config)
	o.conn = conn

	for _, m := range o.matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			o.removeMatches()
			return nil, fmt.Errorf("bluez: cannot subscribe to signals: %w", err)
		}
	}
	o.signals = make(chan *dbus.Signal, config.EventBuffer)
	conn.Signal(o.signals)
	o.log.Infof("Subscribed to BlueZ signals for %v", config.AdapterPath)
	return o, nil
}

func (o *Observer) removeMatches() {
	for _, m := range o.matches {
		if err := o.conn.RemoveMatchSignal(m...); err != nil {
			o.log.Debugf("Cannot remove match rule: %v", err)
		}
	}
}

// Listen starts forwarding events until ctx is done or the bus connection goes away. The
// returned channel is closed in both cases, Err tells them apart.
func (o *Observer) Listen(ctx context.Context) <-chan Event {
	events := make(chan Event, o.config.EventBuffer)
	go o.run(ctx, o.signals, events)
	return events
}

func (o *Observer) run(ctx context.Context, signals <-chan *dbus.Signal, events chan<- Event) {
	defer close(events)
	for {
		select {
		case <-ctx.Done():
			o.setErr(ctx.Err())
			return
		case sig, ok := <-signals:
			if !ok {
				o.log.Error("Signal channel closed, lost connection to the system bus")
				o.setErr(ErrSubscriptionLost)
				return
			}
			evs, err := o.decode(sig)
			if err != nil {
				o.log.Warnf("Dropping signal %v from %v: %v", sig.Name, sig.Path, err)
				continue
			}
			for _, ev := range evs {
				o.log.Debugf("Received %v", ev)
				select {
				case events <- ev:
				case <-ctx.Done():
					o.setErr(ctx.Err())
					return
				}
			}
		}
	}
}

func (o *Observer) setErr(err error) {
	o.errLck.Lock()
	defer o.errLck.Unlock()
	o.err = err
}

// Err returns why the event channel was closed, nil while it is open
func (o *Observer) Err() error {
	o.errLck.Lock()
	defer o.errLck.Unlock()
	return o.err
}

// Close removes the match rules and detaches from the connection, the connection itself is
// owned by the caller
func (o *Observer) Close() {
	if o.conn == nil {
		return
	}
	o.conn.RemoveSignal(o.signals)
	o.removeMatches()
}

// decode returns the events carried by sig. Signals unrelated to the adapter yield no events
// and no error.
func (o *Observer) decode(sig *dbus.Signal) ([]Event, error) {
	if sig == nil {
		return nil, nil
	}
	switch sig.Name {
	case propertiesChangedSignal:
		return o.decodePropertiesChanged(sig)
	case interfacesAddedSignal:
		return o.decodeInterfacesAdded(sig)
	case interfacesRemovedSignal:
		return o.decodeInterfacesRemoved(sig)
	}
	return nil, nil
}

// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
func (o *Observer) decodePropertiesChanged(sig *dbus.Signal) ([]Event, error) {
	if len(sig.Body) < 2 {
		return nil, fmt.Errorf("%w: PropertiesChanged with %d arguments", ErrMalformedSignal, len(sig.Body))
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: interface name is %T", ErrMalformedSignal, sig.Body[0])
	}

	var property string
	switch {
	case iface == o.config.AdapterIface && string(sig.Path) == o.config.AdapterPath:
		property = poweredProperty
	case iface == o.config.DeviceIface && isDeviceOf(sig.Path, o.config.AdapterPath):
		property = connectedProperty
	default:
		return nil, nil
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("%w: changed properties are %T", ErrMalformedSignal, sig.Body[1])
	}
	v, ok := changed[property]
	if !ok {
		return nil, nil
	}
	value, ok := v.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %v is %T, not bool", ErrMalformedSignal, property, v.Value())
	}

	if property == poweredProperty {
		return []Event{poweredEvent(value)}, nil
	}
	if value {
		return []Event{{Kind: DeviceConnected, Device: DeviceID(sig.Path)}}, nil
	}
	return []Event{{Kind: DeviceDisconnected, Device: DeviceID(sig.Path)}}, nil
}

// Body: [object_path ObjectPath, interfaces map[string]map[string]Variant]
func (o *Observer) decodeInterfacesAdded(sig *dbus.Signal) ([]Event, error) {
	if len(sig.Body) < 2 {
		return nil, fmt.Errorf("%w: InterfacesAdded with %d arguments", ErrMalformedSignal, len(sig.Body))
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("%w: object path is %T", ErrMalformedSignal, sig.Body[0])
	}

	var iface, property string
	switch {
	case string(path) == o.config.AdapterPath:
		iface, property = o.config.AdapterIface, poweredProperty
	case isDeviceOf(path, o.config.AdapterPath):
		iface, property = o.config.DeviceIface, connectedProperty
	default:
		return nil, nil
	}

	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("%w: interfaces are %T", ErrMalformedSignal, sig.Body[1])
	}
	props, ok := ifaces[iface]
	if !ok {
		return nil, nil
	}
	v, ok := props[property]
	if !ok {
		return nil, nil
	}
	value, ok := v.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %v is %T, not bool", ErrMalformedSignal, property, v.Value())
	}

	if property == poweredProperty {
		return []Event{poweredEvent(value)}, nil
	}
	if !value {
		// a freshly discovered device that is not connected does not change anything
		return nil, nil
	}
	return []Event{{Kind: DeviceConnected, Device: DeviceID(path)}}, nil
}

// Body: [object_path ObjectPath, interfaces []string]
func (o *Observer) decodeInterfacesRemoved(sig *dbus.Signal) ([]Event, error) {
	if len(sig.Body) < 2 {
		return nil, fmt.Errorf("%w: InterfacesRemoved with %d arguments", ErrMalformedSignal, len(sig.Body))
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("%w: object path is %T", ErrMalformedSignal, sig.Body[0])
	}
	ifaces, ok := sig.Body[1].([]string)
	if !ok {
		return nil, fmt.Errorf("%w: interfaces are %T", ErrMalformedSignal, sig.Body[1])
	}

	for _, iface := range ifaces {
		if iface == o.config.AdapterIface && string(path) == o.config.AdapterPath {
			return []Event{{Kind: AdapterPoweredOff}}, nil
		}
		if iface == o.config.DeviceIface && isDeviceOf(path, o.config.AdapterPath) {
			return []Event{{Kind: DeviceRemoved, Device: DeviceID(path)}}, nil
		}
	}
	return nil, nil
}

func poweredEvent(powered bool) Event {
	if powered {
		return Event{Kind: AdapterPoweredOn}
	}
	return Event{Kind: AdapterPoweredOff}
}
