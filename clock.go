package main

import "time"

// Clock schedules the waiter's timers. Tests drive it by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// stopTimer cancels *t if set and clears it.
func stopTimer(t *Timer) {
	if *t == nil {
		return
	}
	(*t).Stop()
	*t = nil
}
