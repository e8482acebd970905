package core

import (
	"sync"
	"time"
)

// Timer is a cancellable timer handle.
type Timer interface {
	// Stop cancels the timer. It reports whether the timer was active.
	Stop() bool
	// Reset restarts the timer with a new duration.
	Reset(d time.Duration) bool
}

// Timers creates the timers the autosave scheduler runs on.
type Timers interface {
	// AfterFunc calls f once on its own goroutine after d.
	AfterFunc(d time.Duration, f func()) Timer
	// Every calls f every d until stopped. Calls never overlap.
	Every(d time.Duration, f func()) Timer
}

// RealTimers returns Timers backed by the runtime clock.
func RealTimers() Timers {
	return realTimers{}
}

type realTimers struct{}

func (realTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realTimers) Every(d time.Duration, f func()) Timer {
	t := &tickerTimer{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.loop(f)
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) loop(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case <-t.done:
				return
			default:
			}
			f()
		}
	}
}

func (t *tickerTimer) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

func (t *tickerTimer) Reset(d time.Duration) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	t.ticker.Reset(d)
	return true
}
