// Package clock abstracts time so debounce and retry timing can be driven
// deterministically in tests.
//
// Production code takes a Clock and uses Real(); tests use Fake() and move
// time forward with Advance. Only the operations the session needs are
// modelled: reading the time and scheduling a cancellable callback.
package clock

import "time"

// Clock provides the current time and delayed callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine (Real) or synchronously from
	// Advance (Fake) once d has elapsed. The returned Timer cancels it.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable pending callback.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the callback from firing. It returns false if the timer
// already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	return t.stopFunc()
}
