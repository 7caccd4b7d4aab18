package timeouttest

import (
	"sync"
	"time"

	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/timeout"
)

// Call is a recorded side effect, At is relative to the creation of the Recorder
type Call struct {
	At        time.Duration
	PowerOff  bool
	Remaining time.Duration
}

// Recorder implements timeout.Actions and remembers when it was called
type Recorder struct {
	lck   sync.Mutex
	clock *Clock
	start time.Time
	calls []Call
}

var _ timeout.Actions = &Recorder{}

// NewRecorder measures call times on clock, starting now
func NewRecorder(clock *Clock) *Recorder {
	return &Recorder{clock: clock, start: clock.Now()}
}

func (r *Recorder) Warn(ctx *base.Context, remaining time.Duration) {
	r.lck.Lock()
	defer r.lck.Unlock()
	r.calls = append(r.calls, Call{At: r.clock.Now().Sub(r.start), Remaining: remaining})
}

func (r *Recorder) PowerOff(ctx *base.Context) {
	r.lck.Lock()
	defer r.lck.Unlock()
	r.calls = append(r.calls, Call{At: r.clock.Now().Sub(r.start), PowerOff: true})
}

// Calls returns all recorded calls in order
func (r *Recorder) Calls() []Call {
	r.lck.Lock()
	defer r.lck.Unlock()
	return append([]Call{}, r.calls...)
}

// Warning is shorthand for an expected warning call
func Warning(at time.Duration, remaining time.Duration) Call {
	return Call{At: at, Remaining: remaining}
}

// PowerOff is shorthand for an expected power-off call
func PowerOff(at time.Duration) Call {
	return Call{At: at, PowerOff: true}
}
