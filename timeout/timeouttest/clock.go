// Package timeouttest provides a manually advanced clock for tests of the countdown
package timeouttest

import (
	"sort"
	"sync"
	"time"

	"github.com/hannesrauhe/bttimeout/timeout"
)

// Clock only moves when Advance is called. Due callbacks run synchronously inside Advance, in
// the order they are due, with Now reporting their due time.
type Clock struct {
	lck    sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

type timer struct {
	clock   *Clock
	due     time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

var _ timeout.Clock = &Clock{}

// NewClock returns a Clock starting at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.now
}

// AfterFunc schedules f to run d after the current fake time
func (c *Clock) AfterFunc(d time.Duration, f func()) timeout.Timer {
	c.lck.Lock()
	defer c.lck.Unlock()
	c.seq++
	t := &timer{clock: c, due: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every callback that becomes due
func (c *Clock) Advance(d time.Duration) {
	c.lck.Lock()
	target := c.now.Add(d)
	for {
		next := c.nextDue(target)
		if next == nil {
			break
		}
		next.fired = true
		c.now = next.due
		c.lck.Unlock()
		next.f()
		c.lck.Lock()
	}
	c.now = target
	c.lck.Unlock()
}

func (c *Clock) nextDue(target time.Time) *timer {
	pending := []*timer{}
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.due.After(target) {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].due.Equal(pending[j].due) {
			return pending[i].seq < pending[j].seq
		}
		return pending[i].due.Before(pending[j].due)
	})
	return pending[0]
}

// Pending returns the number of callbacks that are neither stopped nor fired
func (c *Clock) Pending() int {
	c.lck.Lock()
	defer c.lck.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *timer) Stop() bool {
	t.clock.lck.Lock()
	defer t.clock.lck.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
