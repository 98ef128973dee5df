package transcript

import "time"

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms debounce timers. The session orchestrator supplies one
// that runs callbacks on its event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, f func()) Timer

// AfterFunc calls fn(d, f).
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer {
	return fn(d, f)
}

// RealScheduler runs callbacks on their own goroutine via time.AfterFunc.
var RealScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})
