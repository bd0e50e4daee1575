package main

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var testEpoch = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// fakeClock fires timers only from Advance, in due order, outside its lock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// timersWith returns the timers scheduled with delay d, oldest first.
func (c *fakeClock) timersWith(d time.Duration) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if t.delay == d {
			out = append(out, t)
		}
	}
	return out
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	delay time.Duration
	seq   int
	f     func()

	stopped bool
	fired   bool
	stops   int
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stops++
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) stopCount() int {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stops
}

// fakeChannel records how the waiter drives it. Disconnect leaves handlers in
// place so tests can check that the waiter unregisters them itself.
type fakeChannel struct {
	completed handlerSet[PaymentCompletedEvent]
	lost      handlerSet[error]

	mu            sync.Mutex
	subscribes    []string
	subscribeErrs []error
	onSubscribe   func()
	disconnects   int
	unregisters   int
}

func (c *fakeChannel) Subscribe(transactionID string) error {
	c.mu.Lock()
	c.subscribes = append(c.subscribes, transactionID)
	var err error
	if len(c.subscribeErrs) > 0 {
		err = c.subscribeErrs[0]
		c.subscribeErrs = c.subscribeErrs[1:]
	}
	hook := c.onSubscribe
	c.mu.Unlock()

	if hook != nil && err == nil {
		hook()
	}
	return err
}

func (c *fakeChannel) OnPaymentCompleted(h PaymentCompletedHandler) func() {
	return c.counted(c.completed.add(h))
}

func (c *fakeChannel) OnConnectionLost(h ConnectionLostHandler) func() {
	return c.counted(c.lost.add(h))
}

func (c *fakeChannel) counted(unregister func()) func() {
	return func() {
		c.mu.Lock()
		c.unregisters++
		c.mu.Unlock()
		unregister()
	}
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeChannel) deliver(raw string) {
	emitPaymentCompleted(zerolog.Nop(), []byte(raw), &c.completed)
}

func (c *fakeChannel) loseConnection(err error) {
	c.lost.emit(err)
}

func (c *fakeChannel) subscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribes)
}

func (c *fakeChannel) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeChannel) unregisterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unregisters
}

// navRecorder collects navigations.
type navRecorder struct {
	mu   sync.Mutex
	navs []Navigation
}

func (r *navRecorder) Navigate(n Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navs = append(r.navs, n)
}

func (r *navRecorder) all() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.navs...)
}
