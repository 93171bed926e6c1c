package osal

import "time"

// Timer is a periodic software timer that invokes a callback from its own
// goroutine, the Go shape of the spec's OS timer primitive (period,
// auto-reload, expired callback, opaque param). The VCP only ever needs the
// auto-reload inspect tick, so there is no one-shot variant.
type Timer struct {
	ticker  *time.Ticker
	stop    chan struct{}
	expired func()
}

// NewPeriodic starts a timer that calls expired every period until Stop is
// called.
func NewPeriodic(period time.Duration, expired func()) *Timer {
	t := &Timer{ticker: time.NewTicker(period), stop: make(chan struct{}), expired: expired}
	go t.runPeriodic()
	return t
}

func (t *Timer) runPeriodic() {
	for {
		select {
		case <-t.ticker.C:
			t.expired()
		case <-t.stop:
			return
		}
	}
}

// Stop cancels the timer. Safe to call once.
func (t *Timer) Stop() {
	close(t.stop)
	t.ticker.Stop()
}

// MonotonicNow is the OS clock primitive: a monotonic millisecond reading.
// Go's time.Now() already carries a monotonic component, so this is a thin
// wrapper kept only to name the OS-interface concept from spec.md §6.
func MonotonicNow() time.Time {
	return time.Now()
}
