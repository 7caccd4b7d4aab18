package notify

import (
	"github.com/sirupsen/logrus"
)

// NewNotifier builds the notifier for all enabled backends. The returned function releases their
// connections.
func NewNotifier(logger logrus.FieldLogger, config Config) (Notifier, func()) {
	if !config.Enabled {
		logger.Info("Notifications are disabled")
		return Discard{}, func() {}
	}

	notifiers := Multi{}
	shutdown := []func(){}
	if config.Desktop.Enabled {
		d := NewDesktopNotifier(logger, config.Desktop)
		notifiers = append(notifiers, d)
		shutdown = append(shutdown, d.Close)
	}
	if config.MQTT.Enabled {
		m := NewMQTTNotifier(logger, config.MQTT)
		notifiers = append(notifiers, m)
		shutdown = append(shutdown, m.Shutdown)
	}
	if config.Telegram.Enabled {
		notifiers = append(notifiers, NewTelegramNotifier(logger, config.Telegram))
	}
	if len(notifiers) == 0 {
		logger.Warn("Notifications are enabled, but no backend is")
	}

	return notifiers, func() {
		for _, f := range shutdown {
			f()
		}
	}
}
