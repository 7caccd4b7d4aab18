package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	logrus "github.com/sirupsen/logrus"

	"github.com/hannesrauhe/bttimeout/adapterstate"
	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/connectors/bluez"
	"github.com/hannesrauhe/bttimeout/connectors/notify"
	"github.com/hannesrauhe/bttimeout/timeout"
	"github.com/hannesrauhe/bttimeout/utils"
)

// time given to running notifications and a pending power-off when shutting down
const shutdownGrace = 5 * time.Second

func main() {
	var configpath string
	var verbose, version bool
	flag.StringVar(&configpath, "c", utils.GetDefaultPath("bluetooth-timeout"), "Specify config file to use")
	flag.BoolVar(&verbose, "v", false, "Verbose output")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.Parse()

	if version {
		fmt.Println(utils.BuildFullVersion())
		return
	}

	logger := logrus.StandardLogger()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	cr, err := utils.NewConfigReader(logger.WithField("component", "config"), configpath)
	if err != nil {
		logger.Fatal(err)
	}
	cfg, err := readConfig(cr)
	if err != nil {
		logger.Fatal(err)
	}
	configureLogging(cfg.Logging, logger, verbose)
	if err := cr.WriteBackConfigIfChanged(); err != nil {
		logger.Warnf("Cannot write default configuration: %v", err)
	}

	os.Exit(run(logger, cfg))
}

// run returns the exit code of the daemon
func run(logger *logrus.Logger, cfg *daemonConfig) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting %v with a timeout of %v", utils.BuildFullVersion(), utils.HumanDuration(cfg.Timeout.Timeout))

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Errorf("Cannot connect to the system bus: %v", err)
		return 1
	}
	defer conn.Close()

	// subscribe before reading the initial state, so no change in between is lost
	observer, err := bluez.NewObserver(logger, conn, cfg.DBus)
	if err != nil {
		logger.Error(err)
		return 1
	}
	defer observer.Close()
	events := observer.Listen(ctx)

	stack, err := bluez.NewStack(logger, cfg.DBus)
	if err != nil {
		logger.Error(err)
		return 1
	}
	defer stack.Close()

	notifier, shutdownNotifier := notify.NewNotifier(logger, cfg.Notifications)
	defer shutdownNotifier()
	effects := adapterstate.NewSideEffects(stack, notifier)
	machine := adapterstate.NewMachine(logger, cfg.Timeout, timeout.RealClock, effects)

	if err := machine.Init(base.NewContextFrom(ctx, logger, "init"), stack); err != nil {
		logger.Warnf("%v, waiting for the adapter to show up", err)
	}

	sdNotify(logger, daemon.SdNotifyReady)
	startWatchdog(ctx, logger)

	err = machine.Run(ctx, events)
	sdNotify(logger, daemon.SdNotifyStopping)
	waitForSideEffects(logger, effects)

	if err != nil {
		if errors.Is(err, bluez.ErrSubscriptionLost) {
			logger.Errorf("Stopping, no more events from BlueZ: %v", observer.Err())
		} else {
			logger.Errorf("Stopping: %v", err)
		}
		return 1
	}
	logger.Infof("Stopped after %v", utils.Uptime())
	return 0
}

func waitForSideEffects(logger logrus.FieldLogger, effects *adapterstate.SideEffects) {
	done := make(chan struct{})
	go func() {
		effects.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logger.Warnf("Side effects still running after %v, exiting anyway", shutdownGrace)
	}
}
