package adapterstate

import (
	"sync"
	"time"

	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/connectors/notify"
	"github.com/hannesrauhe/bttimeout/timeout"
)

const notifyTimeout = 10 * time.Second

// PowerSwitch turns the adapter off
type PowerSwitch interface {
	PowerOff() error
}

// SideEffects performs warnings and the power-off in the background, so the Machine keeps
// processing events while a notification server or BlueZ is slow to answer. Failures are logged
// and not retried. Notifications are tagged with the reason of the session context, which is
// unique per session.
type SideEffects struct {
	power    PowerSwitch
	notifier notify.Notifier
	wg       sync.WaitGroup
}

var _ timeout.Actions = &SideEffects{}

func NewSideEffects(power PowerSwitch, notifier notify.Notifier) *SideEffects {
	return &SideEffects{power: power, notifier: notifier}
}

func (s *SideEffects) Warn(ctx *base.Context, remaining time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		nctx, cancel := base.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		n := notify.Warning(remaining)
		n.Session = ctx.GetReason()
		if err := s.notifier.Notify(nctx, n); err != nil {
			ctx.GetLogger().Errorf("Failed to send warning: %v", err)
		}
	}()
}

func (s *SideEffects) PowerOff(ctx *base.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.power.PowerOff(); err != nil {
			ctx.GetLogger().Errorf("Failed to switch off adapter: %v", err)
			return
		}
		ctx.GetLogger().Info("Adapter switched off")
		nctx, cancel := base.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		n := notify.PoweredOff()
		n.Session = ctx.GetReason()
		if err := s.notifier.Notify(nctx, n); err != nil {
			ctx.GetLogger().Errorf("Failed to send power-off notification: %v", err)
		}
	}()
}

// Wait blocks until all started side effects are done
func (s *SideEffects) Wait() {
	s.wg.Wait()
}
