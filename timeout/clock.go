package timeout

import "time"

// Clock is the time source of the controller, replaced by timeouttest.Clock in tests
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback that can be stopped
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock is backed by the time package
var RealClock Clock = realClock{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
