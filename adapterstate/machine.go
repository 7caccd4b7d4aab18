package adapterstate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/connectors/bluez"
	"github.com/hannesrauhe/bttimeout/timeout"
	"github.com/sirupsen/logrus"
)

const expiryBuffer = 16

// Machine owns the adapter state and the timeout controller. Events and timer expiries are
// processed one at a time by Run, nothing else may touch the Machine while Run is active.
type Machine struct {
	config     timeout.Config
	log        logrus.FieldLogger
	controller *timeout.Controller

	expiries chan timeout.Expiry
	done     chan struct{}
	stopOnce sync.Once

	state   State
	devices map[bluez.DeviceID]bool
}

// NewMachine creates a Machine in state PoweredOff, call Init to load the real state
func NewMachine(logger logrus.FieldLogger, config timeout.Config, clock timeout.Clock, actions timeout.Actions) *Machine {
	m := &Machine{
		config:   config,
		log:      logger.WithField("component", "adapterstate"),
		expiries: make(chan timeout.Expiry, expiryBuffer),
		done:     make(chan struct{}),
		state:    PoweredOff,
		devices:  map[bluez.DeviceID]bool{},
	}
	m.controller = timeout.NewController(logger, clock, actions, m.post)
	return m
}

// post runs on timer goroutines
func (m *Machine) post(e timeout.Expiry) {
	select {
	case m.expiries <- e:
	case <-m.done:
	}
}

// Init reads the adapter state from the stack and starts a timeout if the adapter is powered
// without connections. On error the Machine stays PoweredOff and waits for events.
func (m *Machine) Init(ctx *base.Context, stack Stack) error {
	powered, err := stack.AdapterPowered()
	if err != nil {
		return fmt.Errorf("cannot read initial adapter state: %w", err)
	}
	if !powered {
		ctx.GetLogger().Info("Adapter is powered off")
		return nil
	}

	devices, err := stack.ConnectedDevices()
	if err != nil {
		return fmt.Errorf("cannot read initially connected devices: %w", err)
	}
	for _, d := range devices {
		m.devices[d] = true
	}
	if len(m.devices) > 0 {
		m.state = PoweredOnActive
		ctx.GetLogger().Infof("Adapter is powered with %d connected devices", len(m.devices))
		return nil
	}
	m.state = PoweredOnIdle
	ctx.GetLogger().Info("Adapter is powered without connected devices")
	m.startTimeout(ctx)
	return nil
}

// Run processes events and expiries until ctx is cancelled or the event source goes away. The
// live session is cancelled when Run returns. Events already queued when an expiry is picked up
// are handled first, so a connect observed before a checkpoint always cancels it.
func (m *Machine) Run(ctx context.Context, events <-chan bluez.Event) error {
	defer m.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if stop, err := m.receive(ctx, ev, ok); stop {
				return err
			}
		case e := <-m.expiries:
			if stop, err := m.drainEvents(ctx, events); stop {
				return err
			}
			m.handleExpiry(e)
		}
	}
}

// receive handles one read from the event channel, stop is true once the channel is closed
func (m *Machine) receive(ctx context.Context, ev bluez.Event, ok bool) (bool, error) {
	if !ok {
		if ctx.Err() != nil {
			return true, nil
		}
		return true, bluez.ErrSubscriptionLost
	}
	m.HandleEvent(base.NewContextFrom(ctx, m.log, "event:"+ev.String()), ev)
	return false, nil
}

func (m *Machine) drainEvents(ctx context.Context, events <-chan bluez.Event) (bool, error) {
	for {
		select {
		case ev, ok := <-events:
			if stop, err := m.receive(ctx, ev, ok); stop {
				return true, err
			}
		default:
			return false, nil
		}
	}
}

func (m *Machine) stop() {
	m.controller.Cancel()
	m.stopOnce.Do(func() { close(m.done) })
}

// HandleEvent applies a single event to the state
func (m *Machine) HandleEvent(ctx *base.Context, ev bluez.Event) {
	from := m.state

	switch ev.Kind {
	case bluez.AdapterPoweredOn:
		switch {
		case m.state == PoweredOff:
			m.state = PoweredOnIdle
			m.startTimeout(ctx)
		case m.state == PoweredOnIdle && !m.controller.Active():
			// the last power-off request did not go through
			ctx.GetLogger().Info("Adapter is still powered, restarting timeout")
			m.startTimeout(ctx)
		default:
			m.ignore(ctx, ev)
			return
		}

	case bluez.AdapterPoweredOff:
		if m.state == PoweredOff {
			m.ignore(ctx, ev)
			return
		}
		m.controller.Cancel()
		m.devices = map[bluez.DeviceID]bool{}
		m.state = PoweredOff

	case bluez.DeviceConnected:
		switch m.state {
		case PoweredOnIdle:
			m.controller.Cancel()
			m.devices[ev.Device] = true
			m.state = PoweredOnActive
		case PoweredOnActive:
			m.devices[ev.Device] = true
		default:
			m.ignore(ctx, ev)
			return
		}

	case bluez.DeviceDisconnected, bluez.DeviceRemoved:
		if m.state != PoweredOnActive || !m.devices[ev.Device] {
			m.ignore(ctx, ev)
			return
		}
		delete(m.devices, ev.Device)
		if len(m.devices) == 0 {
			m.state = PoweredOnIdle
			m.controller.Reset(ctx, m.config.Timeout, m.config.Warnings)
		}

	default:
		m.ignore(ctx, ev)
		return
	}

	ctx.GetLogger().WithFields(logrus.Fields{"from": from, "to": m.state, "devices": len(m.devices)}).Infof("Processed %v", ev)
}

func (m *Machine) ignore(ctx *base.Context, ev bluez.Event) {
	ctx.GetLogger().WithFields(logrus.Fields{"state": m.state, "devices": len(m.devices)}).Debugf("Ignoring %v", ev)
}

func (m *Machine) startTimeout(ctx *base.Context) {
	m.controller.Start(ctx, m.config.Timeout, m.config.Warnings)
}

func (m *Machine) handleExpiry(e timeout.Expiry) {
	if m.controller.Dispatch(e) == timeout.Expired {
		m.log.Debug("Waiting for the adapter to report that it is powered off")
	}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// ConnectedDevices returns the tracked devices in lexical order
func (m *Machine) ConnectedDevices() []bluez.DeviceID {
	devices := make([]bluez.DeviceID, 0, len(m.devices))
	for d := range m.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices
}

// TimeoutActive reports whether a timeout session is live
func (m *Machine) TimeoutActive() bool {
	return m.controller.Active()
}
