// Package timeout implements the countdown that switches the adapter off. The controller never
// runs side effects on timer goroutines: due checkpoints are posted back to the owner, which
// hands them to Dispatch from the same goroutine that issues Start and Cancel. That way a
// Cancel always wins against a checkpoint that is already due but not yet dispatched.
package timeout

import (
	"sort"
	"strconv"
	"time"

	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/utils"
	"github.com/sirupsen/logrus"
)

// Actions are the side effects of a session
type Actions interface {
	Warn(ctx *base.Context, remaining time.Duration)
	PowerOff(ctx *base.Context)
}

// Expiry identifies a checkpoint of a session that became due
type Expiry struct {
	session uint64
	offset  time.Duration // 0 is the deadline itself
}

// DispatchResult tells the owner what Dispatch did with an Expiry
type DispatchResult int

const (
	// Stale expiries belong to a cancelled session or were already dispatched
	Stale DispatchResult = iota
	Warned
	Expired
)

type session struct {
	id       uint64
	ctx      *base.Context
	deadline time.Time
	offsets  []time.Duration
	fired    map[time.Duration]bool
	timers   []Timer
}

// Controller owns at most one live countdown. It is not safe for concurrent use, all methods
// must be called from the owner goroutine.
type Controller struct {
	clock   Clock
	actions Actions
	post    func(Expiry)
	log     logrus.FieldLogger

	lastID  uint64
	current *session
}

// NewController creates a Controller. post is called on timer goroutines and must hand the
// Expiry to the owner goroutine, which then calls Dispatch.
func NewController(logger logrus.FieldLogger, clock Clock, actions Actions, post func(Expiry)) *Controller {
	return &Controller{clock: clock, actions: actions, post: post, log: logger.WithField("component", "timeout")}
}

// Start arms a new session that ends total from now. It does nothing if a session is live.
func (c *Controller) Start(ctx *base.Context, total time.Duration, warnings []time.Duration) bool {
	if c.current != nil {
		ctx.GetLogger().Warnf("Timeout session %d is still active, not starting a new one", c.current.id)
		return false
	}

	c.lastID++
	s := &session{
		id:       c.lastID,
		ctx:      base.WithField(ctx, "session", strconv.FormatUint(c.lastID, 10)),
		deadline: c.clock.Now().Add(total),
		offsets:  effectiveOffsets(total, warnings),
		fired:    map[time.Duration]bool{},
	}
	for _, w := range warnings {
		if w >= total {
			s.ctx.GetLogger().Debugf("Skipping warning %v, it is not shorter than the timeout of %v", w, total)
		}
	}

	for _, o := range s.offsets {
		s.timers = append(s.timers, c.schedule(s.id, total-o, o))
	}
	s.timers = append(s.timers, c.schedule(s.id, total, 0))
	c.current = s

	s.ctx.GetLogger().Infof("Started timeout: adapter will be switched off at %v unless a device connects", s.deadline.Format(time.TimeOnly))
	return true
}

func (c *Controller) schedule(id uint64, after time.Duration, offset time.Duration) Timer {
	return c.clock.AfterFunc(after, func() {
		c.post(Expiry{session: id, offset: offset})
	})
}

// Reset cancels the live session, if any, and starts a new one
func (c *Controller) Reset(ctx *base.Context, total time.Duration, warnings []time.Duration) {
	c.Cancel()
	c.Start(ctx, total, warnings)
}

// Cancel ends the live session. No checkpoint of it is dispatched afterwards, even if it is
// already due. Returns false if there was no session.
func (c *Controller) Cancel() bool {
	s := c.current
	if s == nil {
		return false
	}
	for _, t := range s.timers {
		t.Stop()
	}
	s.fired = map[time.Duration]bool{}
	c.current = nil
	s.ctx.GetLogger().Infof("Cancelled timeout, %v were left", utils.HumanDuration(s.deadline.Sub(c.clock.Now())))
	return true
}

// Active reports whether a session is live
func (c *Controller) Active() bool {
	return c.current != nil
}

// Deadline returns the deadline of the live session
func (c *Controller) Deadline() (time.Time, bool) {
	if c.current == nil {
		return time.Time{}, false
	}
	return c.current.deadline, true
}

// Dispatch runs the side effect of a due checkpoint if it belongs to the live session and has
// not run before. Reaching the deadline ends the session.
func (c *Controller) Dispatch(e Expiry) DispatchResult {
	s := c.current
	if s == nil || s.id != e.session {
		c.log.Debugf("Dropping checkpoint %v of inactive session %d", e.offset, e.session)
		return Stale
	}

	if e.offset == 0 {
		c.current = nil
		for _, t := range s.timers {
			t.Stop()
		}
		s.ctx.GetLogger().Info("Timeout reached, switching off adapter")
		c.actions.PowerOff(s.ctx)
		return Expired
	}

	if s.fired[e.offset] {
		return Stale
	}
	s.fired[e.offset] = true
	s.ctx.GetLogger().Infof("Adapter will be switched off in %v", utils.HumanDuration(e.offset))
	c.actions.Warn(s.ctx, e.offset)
	return Warned
}

// effectiveOffsets returns the distinct warnings shorter than total, longest first
func effectiveOffsets(total time.Duration, warnings []time.Duration) []time.Duration {
	seen := map[time.Duration]bool{}
	offsets := []time.Duration{}
	for _, w := range warnings {
		if w <= 0 || w >= total || seen[w] {
			continue
		}
		seen[w] = true
		offsets = append(offsets, w)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] > offsets[j] })
	return offsets
}
