package main

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
)

// sdNotify is a no-op when the daemon is not started by systemd
func sdNotify(logger logrus.FieldLogger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.Warnf("Cannot notify systemd about %q: %v", state, err)
	}
}

// startWatchdog pings the systemd watchdog at half the configured interval until ctx is done
func startWatchdog(ctx context.Context, logger logrus.FieldLogger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warnf("Cannot read watchdog settings: %v", err)
		return
	}
	if interval == 0 {
		return
	}
	logger.Debugf("Pinging systemd watchdog every %v", interval/2)
	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sdNotify(logger, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
