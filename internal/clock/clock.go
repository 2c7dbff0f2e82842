// Package clock abstracts wall time and timers so the rain state machine can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents any future firing. It reports whether the timer was still
	// pending.
	Stop() bool
}

// Clock provides the current time and callback-style timers.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once, in its own goroutine, after d.
	AfterFunc(d time.Duration, f func()) Timer
	// Every calls f each time d elapses until the returned Timer is stopped.
	Every(d time.Duration, f func()) Timer
}

// Real is the production Clock backed by package time.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) Every(d time.Duration, f func()) Timer {
	t := &ticker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				f()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

type ticker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
