package history

import "time"

// Timer is a pending single-shot callback.
type Timer interface {
	// Stop prevents the callback from running if it has not started.
	Stop() bool
}

// Scheduler creates single-shot timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules callbacks with time.AfterFunc.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
