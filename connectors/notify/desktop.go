package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/hannesrauhe/bttimeout/base"
	"github.com/sirupsen/logrus"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"
	// let the notification server pick how long a notification stays on screen
	serverDefaultExpiry = int32(-1)
)

// DesktopNotifier shows notifications through org.freedesktop.Notifications on the session bus
type DesktopNotifier struct {
	config  DesktopConfig
	log     logrus.FieldLogger
	connect func() (*dbus.Conn, dbus.BusObject, error)

	lck         sync.Mutex
	conn        *dbus.Conn
	obj         dbus.BusObject
	lastID      uint32
	lastSession string
}

var _ Notifier = &DesktopNotifier{}

// NewDesktopNotifier does not connect yet, the session bus may not be up when the daemon starts
func NewDesktopNotifier(logger logrus.FieldLogger, config DesktopConfig) *DesktopNotifier {
	return &DesktopNotifier{config: config, log: logger.WithField("component", "desktop"), connect: connectSessionBus}
}

func connectSessionBus() (*dbus.Conn, dbus.BusObject, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to session bus: %w", err)
	}
	return conn, conn.Object(notificationsService, notificationsPath), nil
}

func (d *DesktopNotifier) Notify(ctx *base.Context, n Notification) error {
	d.lck.Lock()
	defer d.lck.Unlock()

	if d.obj == nil {
		conn, obj, err := d.connect()
		if err != nil {
			return fmt.Errorf("desktop: %w", err)
		}
		d.conn, d.obj = conn, obj
	}

	replaces := uint32(0)
	if d.config.ReplacePrevious && n.Session != "" && n.Session == d.lastSession {
		replaces = d.lastID
	}
	var id uint32
	call := d.obj.CallWithContext(ctx.GoContext, notifyMethod, 0,
		d.config.AppName, replaces, n.Icon, n.Title, n.Body, []string{}, map[string]dbus.Variant{}, serverDefaultExpiry)
	if err := call.Store(&id); err != nil {
		// the notification server or the whole session may be gone, reconnect next time
		d.closeLocked()
		d.lastID, d.lastSession = 0, ""
		return fmt.Errorf("desktop: %v failed: %w", notifyMethod, err)
	}

	if n.Kind == KindPoweredOff {
		d.lastID, d.lastSession = 0, ""
	} else {
		d.lastID, d.lastSession = id, n.Session
	}
	ctx.GetLogger().Debugf("Desktop notification %d shown (replaced %d)", id, replaces)
	return nil
}

// Close drops the session bus connection
func (d *DesktopNotifier) Close() {
	d.lck.Lock()
	defer d.lck.Unlock()
	d.closeLocked()
}

func (d *DesktopNotifier) closeLocked() {
	if d.conn != nil {
		d.conn.Close()
	}
	d.conn, d.obj = nil, nil
}
