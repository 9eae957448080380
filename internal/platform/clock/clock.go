// Package clock abstracts wall time so limit-window resets and operation
// timestamps are controllable in tests.
package clock

import "time"

// Clock supplies the current logical time.
type Clock interface {
	Now() time.Time
}

// System is the production clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a test clock that returns a settable instant.
type Fixed struct {
	Time time.Time
}

func (f *Fixed) Now() time.Time { return f.Time }

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) { f.Time = f.Time.Add(d) }
