package clock

import "time"

// Clock supplies the current time. All deadline math goes through it so tests
// can pin "now".
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Func adapts a function to the Clock interface.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }
