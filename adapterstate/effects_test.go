package adapterstate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/connectors/notify"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type fakePower struct {
	err   error
	calls int
}

func (p *fakePower) PowerOff() error {
	p.calls++
	return p.err
}

type recordingNotifier struct {
	lck      sync.Mutex
	got      []notify.Kind
	sessions []string
}

func (r *recordingNotifier) Notify(ctx *base.Context, n notify.Notification) error {
	r.lck.Lock()
	defer r.lck.Unlock()
	r.got = append(r.got, n.Kind)
	r.sessions = append(r.sessions, n.Session)
	return errors.New("no notification server")
}

func TestSideEffectsPowerOffNotifies(t *testing.T) {
	power := &fakePower{}
	n := &recordingNotifier{}
	s := NewSideEffects(power, n)

	session := base.WithField(testContext(), "session", "4")
	s.Warn(session, time.Minute)
	s.Wait()
	s.PowerOff(session)
	s.Wait()

	assert.Equal(t, power.calls, 1)
	assert.DeepEqual(t, n.got, []notify.Kind{notify.KindWarning, notify.KindPoweredOff})
	assert.DeepEqual(t, n.sessions, []string{"session:4", "session:4"})
}

func TestSideEffectsFailedPowerOffDoesNotNotify(t *testing.T) {
	power := &fakePower{err: errors.New("org.bluez.Error.Busy")}
	n := &recordingNotifier{}
	s := NewSideEffects(power, n)

	s.PowerOff(testContext())
	s.Wait()

	assert.Equal(t, power.calls, 1)
	assert.Assert(t, is.Len(n.got, 0))
}
