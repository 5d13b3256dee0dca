// Package clock abstracts wall time and deferred callbacks so the drill
// cycle and detection pipeline can be tested without real timers.
package clock

import "time"

// Timer is a cancellable deferred callback.
type Timer interface {
	// Stop prevents the callback from firing. Reports whether it was
	// still pending.
	Stop() bool
}

// Clock supplies current time and deferred execution.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the production clock backed by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }
